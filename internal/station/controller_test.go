package station

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"seriallinker/internal/config"
	"seriallinker/internal/sensors"
	"seriallinker/internal/services/mes"
)

func TestNewRequiresDependencies(t *testing.T) {
	cfg := config.Default()
	if _, err := New(nil, Dependencies{}, nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := New(&cfg, Dependencies{Sensors: newLevelPort()}, nil); err == nil {
		t.Fatal("expected error for missing actuator")
	}

	h := newHarness(t)
	cfg.Station.DefaultBoard = "pcb_999"
	deps := Dependencies{Sensors: h.port, Actuator: h.act, Decoder: h.dec, Linker: h.link, Recorder: h.c.recorder}
	if _, err := New(&cfg, deps, nil); err == nil {
		t.Fatal("expected error for unknown default board")
	}
}

func TestStartsLoggedOutAndIgnoresInputs(t *testing.T) {
	h := newHarness(t)
	h.port.setBoard(true)
	h.press()
	h.tick()

	st := h.c.Status()
	if st.State != StateLoggedOut || st.Session != nil {
		t.Fatalf("expected logged out without session, got %+v", st)
	}
	if st.Display.Text != "LOG IN TO START" {
		t.Fatalf("unexpected display %+v", st.Display)
	}
	if h.act.callCount() != 0 {
		t.Fatal("no cycle may start while logged out")
	}
	if !st.Inputs.BoardPresent {
		t.Fatal("status should report the last sampled inputs")
	}
}

func TestLoginWithBoardPresentWaitsForRemoval(t *testing.T) {
	h := newHarness(t)
	h.port.setBoard(true)
	h.startSession("pcb_273")
	h.tick()
	h.tick()
	if got := h.state(); got != StateWaitRemove {
		t.Fatalf("expected WaitRemove while board present, got %s", got)
	}
	if d := h.c.Status().Display; d.Text != "REMOVE BOARD" {
		t.Fatalf("unexpected display %+v", d)
	}
	h.press()
	if got := h.state(); got != StateWaitRemove {
		t.Fatalf("start must not skip board removal, got %s", got)
	}
	h.port.setBoard(false)
	h.tick()
	if got := h.state(); got != StateWaitBoard {
		t.Fatalf("expected WaitBoard, got %s", got)
	}
}

func TestBoardReinsertionThenPressLinks(t *testing.T) {
	h := newHarness(t)
	h.toWaitStart(t, "pcb_273")

	h.port.setBoard(false)
	h.tick()
	if got := h.state(); got != StateWaitBoard {
		t.Fatalf("expected WaitBoard after removal, got %s", got)
	}
	h.port.setBoard(true)
	h.tick()
	if got := h.state(); got != StateWaitStart {
		t.Fatalf("expected WaitStart after reinsertion, got %s", got)
	}
	h.press()
	if got := h.state(); got != StateLinking {
		t.Fatalf("expected Linking after fresh press, got %s", got)
	}
	if d := h.c.Status().Display; d.Text != "LINKING..." || d.PulseColor == "" {
		t.Fatalf("expected pulsing linking display, got %+v", d)
	}

	h.finishCycle(t)
	if got := h.state(); got != StatePass {
		t.Fatalf("expected Pass, got %s", got)
	}
	h.tick()
	if got := h.state(); got != StatePass {
		t.Fatalf("Pass must hold while the board is present, got %s", got)
	}
	h.port.setBoard(false)
	h.tick()
	if got := h.state(); got != StateWaitBoard {
		t.Fatalf("expected WaitBoard after removing a passed board, got %s", got)
	}

	pairs, singles := h.link.counts()
	if pairs != 1 || singles != 0 {
		t.Fatalf("expected one pair call, got pairs=%d singles=%d", pairs, singles)
	}
	if got := h.link.pairs[0]; got != [3]string{"4711", "1026054858", "1026054859"} {
		t.Fatalf("unexpected pair call %v", got)
	}

	want := []State{StateWaitRemove, StateWaitBoard, StateWaitStart, StateWaitBoard, StateWaitStart, StateLinking, StatePass, StateWaitBoard}
	if got := h.sink.states(); !slices.Equal(got, want) {
		t.Fatalf("display sequence = %v, want %v", got, want)
	}
}

func TestInterlockBlocksLinking(t *testing.T) {
	tests := []struct {
		name   string
		open   func(p *levelPort)
		close  func(p *levelPort)
		detail string
	}{
		{
			name:   "enable off",
			open:   func(p *levelPort) { p.enabled = false },
			close:  func(p *levelPort) { p.enabled = true },
			detail: "Enable switch off",
		},
		{
			name:   "curtain blocked",
			open:   func(p *levelPort) { p.curtain = false },
			close:  func(p *levelPort) { p.curtain = true },
			detail: "Light curtain blocked",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.toWaitStart(t, "pcb_273")
			h.port.set(tt.open)
			h.press()
			if got := h.state(); got != StateWaitStart {
				t.Fatalf("expected WaitStart with interlock open, got %s", got)
			}
			if d := h.c.Status().Display; d.Detail != tt.detail {
				t.Fatalf("display detail = %q, want %q", d.Detail, tt.detail)
			}

			h.port.set(tt.close)
			h.tick()
			if got := h.state(); got != StateWaitStart {
				t.Fatalf("a refused press must not be replayed, got %s", got)
			}
			h.press()
			if got := h.state(); got != StateLinking {
				t.Fatalf("expected Linking after a fresh press, got %s", got)
			}
			h.finishCycle(t)
		})
	}
}

func TestHeldStartTriggersOneCycle(t *testing.T) {
	h := newHarness(t)
	h.toWaitStart(t, "pcb_273")

	h.port.setStart(true)
	h.tick()
	if got := h.state(); got != StateLinking {
		t.Fatalf("expected Linking, got %s", got)
	}
	h.finishCycle(t)
	for range 5 {
		h.tick()
	}
	h.port.setBoard(false)
	h.tick()
	h.port.setBoard(true)
	h.tick()
	for range 5 {
		h.tick()
	}
	if got := h.state(); got != StateWaitStart {
		t.Fatalf("held start must not relink, got %s", got)
	}
	if got := h.c.Status().Started; got != 1 {
		t.Fatalf("expected one cycle, got %d", got)
	}

	h.port.setStart(false)
	h.tick()
	h.press()
	if got := h.state(); got != StateLinking {
		t.Fatalf("expected Linking after release and press, got %s", got)
	}
	h.finishCycle(t)
	if got := h.act.callCount(); got != 2 {
		t.Fatalf("expected two captures, got %d", got)
	}
}

func TestLinkingWaitsForCompletionOnly(t *testing.T) {
	h := newHarness(t)
	h.link.release = make(chan struct{})
	h.toWaitStart(t, "pcb_273")
	h.press()

	h.port.setBoard(false)
	for range 3 {
		h.press()
	}
	st := h.c.Status()
	if st.State != StateLinking || !st.InFlight || st.Started != 1 {
		t.Fatalf("expected a single in-flight cycle, got %+v", st)
	}

	close(h.link.release)
	h.finishCycle(t)
	st = h.c.Status()
	if st.State != StateWaitBoard {
		t.Fatalf("expected WaitBoard once the result lands with no board, got %s", st.State)
	}
	if st.InFlight || st.Completed != 1 || st.LastCycle == nil || !st.LastCycle.Success {
		t.Fatalf("unexpected status after completion: %+v", st)
	}
	states := h.sink.states()
	if len(states) < 2 || states[len(states)-2] != StatePass {
		t.Fatalf("expected Pass to be shown before WaitBoard, got %v", states)
	}
}

func TestTickSurvivesPanic(t *testing.T) {
	h := newHarness(t)
	h.startSession("pcb_273")
	h.port.set(func(p *levelPort) { p.panics = 1 })
	h.tick()
	if got := h.state(); got != StateWaitRemove {
		t.Fatalf("panicking tick must not change state, got %s", got)
	}
	h.tick()
	if got := h.state(); got != StateWaitBoard {
		t.Fatalf("next tick should run normally, got %s", got)
	}
}

func TestSensorFaultNotifiesOnTransition(t *testing.T) {
	h := newHarness(t, func(h *harness, deps *Dependencies) {
		deps.Sensors = healthPort{h.port}
	})
	degraded := &sensors.Health{Name: "mqtt inputs", Ready: false, Detail: "stale for 3s"}

	h.tick()
	h.port.set(func(p *levelPort) { p.health = degraded })
	h.tick()
	h.tick()
	expectMessage(t, h.notifier.faults, "mqtt inputs")
	expectNone(t, h.notifier.faults)
	if st := h.c.Status(); st.InputHealth == nil || st.InputHealth.Ready {
		t.Fatalf("expected degraded input health in status, got %+v", st.InputHealth)
	}

	h.port.set(func(p *levelPort) { p.health = nil })
	h.tick()
	h.port.set(func(p *levelPort) { p.health = degraded })
	h.tick()
	expectMessage(t, h.notifier.faults, "mqtt inputs")
}

func TestCommandsRunOnLoop(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- h.c.Run(ctx) }()
	waitFor(t, "loop running", func() bool { return h.c.Status().Running })

	if err := h.c.Run(ctx); err == nil {
		t.Fatal("second Run should fail")
	}
	if _, err := h.c.SelectBoard(ctx, "pcb_999"); !errors.Is(err, ErrUnknownBoard) {
		t.Fatalf("expected ErrUnknownBoard, got %v", err)
	}
	if err := h.c.Logout(ctx); !errors.Is(err, ErrLoggedOut) {
		t.Fatalf("expected ErrLoggedOut, got %v", err)
	}

	session, err := h.c.Login(ctx, "jdoe", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if session.OperatorID != "4711" || session.OperatorName != "Jane Doe" || session.BoardType != "pcb_273" || !session.DoubleSided {
		t.Fatalf("unexpected session %+v", session)
	}
	waitFor(t, "WaitBoard", func() bool { return h.state() == StateWaitBoard })
	if _, err := h.c.Login(ctx, "jdoe", "secret"); !errors.Is(err, ErrLoggedIn) {
		t.Fatalf("expected ErrLoggedIn, got %v", err)
	}

	info, err := h.c.SelectBoard(ctx, "pcb_single")
	if err != nil {
		t.Fatalf("SelectBoard: %v", err)
	}
	if info.DoubleSided {
		t.Fatalf("expected single-sided board, got %+v", info)
	}
	if st := h.c.Status(); st.Session == nil || st.Session.BoardType != "pcb_single" || st.Session.DoubleSided {
		t.Fatalf("session not updated: %+v", st.Session)
	}

	if err := h.c.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if st := h.c.Status(); st.State != StateLoggedOut || st.Session != nil || st.Board != "pcb_single" {
		t.Fatalf("unexpected status after logout: %+v", st)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	if err := h.c.Logout(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestLoginRejected(t *testing.T) {
	h := newHarness(t, func(_ *harness, deps *Dependencies) {
		deps.Auth = fakeAuth{err: mes.ErrRejected}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.c.Run(ctx) }()
	waitFor(t, "loop running", func() bool { return h.c.Status().Running })

	if _, err := h.c.Login(ctx, "jdoe", "wrong"); !errors.Is(err, mes.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if got := h.state(); got != StateLoggedOut {
		t.Fatalf("expected LoggedOut after rejection, got %s", got)
	}
}

func TestLogoutRefusedWhileLinking(t *testing.T) {
	h := newHarness(t)
	h.link.release = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.c.Run(ctx) }()
	waitFor(t, "loop running", func() bool { return h.c.Status().Running })

	if _, err := h.c.Login(ctx, "jdoe", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	h.port.setBoard(true)
	waitFor(t, "WaitStart", func() bool { return h.state() == StateWaitStart })
	h.port.setStart(true)
	waitFor(t, "Linking", func() bool { return h.state() == StateLinking })

	if err := h.c.Logout(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy from Logout, got %v", err)
	}
	if _, err := h.c.SelectBoard(ctx, "pcb_274"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy from SelectBoard, got %v", err)
	}

	close(h.link.release)
	waitFor(t, "Pass", func() bool { return h.state() == StatePass })
	if err := h.c.Logout(ctx); err != nil {
		t.Fatalf("Logout after completion: %v", err)
	}
	cancel()
	<-errc
}

func TestBoardsSorted(t *testing.T) {
	h := newHarness(t)
	boards := h.c.Boards()
	names := make([]string, 0, len(boards))
	for _, b := range boards {
		names = append(names, b.Name)
	}
	if !slices.Equal(names, []string{"pcb_273", "pcb_274", "pcb_single"}) {
		t.Fatalf("unexpected boards %v", names)
	}
}

func TestDisplayFor(t *testing.T) {
	tests := []struct {
		state State
		text  string
		color string
		pulse bool
	}{
		{StateLoggedOut, "LOG IN TO START", ColorIdle, false},
		{StateWaitRemove, "REMOVE BOARD", ColorIdle, false},
		{StateWaitBoard, "WAITING FOR BOARD", ColorIdle, false},
		{StateWaitStart, "LOADED - PRESS START", ColorLoaded, false},
		{StateLinking, "LINKING...", ColorLinking, true},
		{StatePass, "LINKING SUCCESSFUL", ColorPass, false},
		{StateFail, "LINKING FAILED", ColorFail, false},
	}
	for _, tt := range tests {
		d := DisplayFor(tt.state, "detail")
		if d.Text != tt.text || d.Color != tt.color || (d.PulseColor != "") != tt.pulse {
			t.Errorf("DisplayFor(%s) = %+v", tt.state, d)
		}
	}
	if d := DisplayFor(StateFail, "No code decoded"); d.Detail != "No code decoded" {
		t.Errorf("fail display should carry the message, got %+v", d)
	}
	if d := DisplayFor(StateWaitBoard, "ignored"); d.Detail != "" {
		t.Errorf("wait display should not carry a detail, got %+v", d)
	}
}

func expectMessage(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("notification = %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for notification %q", want)
	}
}

func expectNone(t *testing.T, ch <-chan string) {
	t.Helper()
	select {
	case got := <-ch:
		t.Fatalf("unexpected notification %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}
