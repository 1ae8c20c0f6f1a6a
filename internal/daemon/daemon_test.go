package daemon_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"seriallinker/internal/daemon"
	"seriallinker/internal/logging"
	"seriallinker/internal/resultlog"
	"seriallinker/internal/station"
	"seriallinker/internal/testsupport"
)

func newDaemon(t *testing.T, opts ...testsupport.ConfigOption) (*daemon.Daemon, *testsupport.Station) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.NewStation(t, cfg)
	d, err := daemon.New(cfg, daemon.Components{
		Controller: st.Controller,
		History:    st.History,
		Sensors:    st.Sensors,
		Capture:    st.Capture,
		LogPath:    "linker.log",
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d, st
}

func waitForState(t *testing.T, d *daemon.Daemon, want station.State) daemon.Status {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		st := d.Status(context.Background())
		if st.Station.State == want {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; state=%s display=%q", want, st.Station.State, st.Station.Display.Text)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewRequiresController(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := daemon.New(cfg, daemon.Components{}, nil); err == nil {
		t.Fatal("expected error without controller")
	}
}

func TestDaemonStartStop(t *testing.T) {
	d, _ := newDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}

	status := d.Status(ctx)
	if !status.Running || !status.Station.Running {
		t.Fatalf("expected running daemon and station, got %+v", status)
	}
	if status.StartedAt.IsZero() || status.PID == 0 {
		t.Fatalf("expected start time and pid, got %+v", status)
	}
	if status.LockPath == "" || status.HistoryPath == "" {
		t.Fatalf("expected lock and history paths, got %+v", status)
	}

	d.Stop()
	status = d.Status(ctx)
	if status.Running || status.Station.Running {
		t.Fatalf("expected stopped daemon, got %+v", status)
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	d.Stop()
}

func TestSecondInstanceRefused(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := testsupport.NewStation(t, cfg)
	second := testsupport.NewStation(t, cfg)

	a, err := daemon.New(cfg, daemon.Components{Controller: first.Controller}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	b, err := daemon.New(cfg, daemon.Components{Controller: second.Controller}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { a.Stop(); b.Stop() })

	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := b.Start(ctx); err == nil {
		t.Fatal("expected lock contention error")
	}
}

func TestSimulatedCycleEndToEnd(t *testing.T) {
	d, st := newDaemon(t)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	session, err := d.Login(ctx, " alice ", testsupport.Password)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if session.OperatorID != "ALICE" || session.BoardType != "pcb_273" {
		t.Fatalf("unexpected session: %+v", session)
	}
	waitForState(t, d, station.StateWaitBoard)

	if res, err := d.Sim("board"); err != nil || !res.Inputs.BoardPresent {
		t.Fatalf("Sim board: %+v %v", res, err)
	}
	waitForState(t, d, station.StateWaitStart)
	if _, err := d.Sim("start"); err != nil {
		t.Fatalf("Sim start: %v", err)
	}
	status := waitForState(t, d, station.StatePass)

	if status.Station.LastCycle == nil || !status.Station.LastCycle.Success {
		t.Fatalf("expected successful last cycle, got %+v", status.Station.LastCycle)
	}
	if st.Linker.CallCount() != 1 {
		t.Fatalf("expected one link call, got %d", st.Linker.CallCount())
	}
	if status.Today.Total != 1 || status.Today.Passed != 1 {
		t.Fatalf("unexpected today stats: %+v", status.Today)
	}

	records, err := d.History(ctx, resultlog.Query{Limit: 10})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(records) != 1 || records[0].Operator != "Alice" {
		t.Fatalf("unexpected history: %+v", records)
	}

	if err := d.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	waitForState(t, d, station.StateLoggedOut)
}

func TestSelectBoardAndBoards(t *testing.T) {
	d, _ := newDaemon(t)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	info, err := d.SelectBoard(ctx, "pcb_274")
	if err != nil {
		t.Fatalf("SelectBoard: %v", err)
	}
	if info.Name != "pcb_274" {
		t.Fatalf("unexpected board info: %+v", info)
	}
	if _, err := d.SelectBoard(ctx, "nope"); !errors.Is(err, station.ErrUnknownBoard) {
		t.Fatalf("expected ErrUnknownBoard, got %v", err)
	}
	if got := d.Status(ctx).Station.Board; got != "pcb_274" {
		t.Fatalf("board = %q", got)
	}
	if boards := d.Boards(); len(boards) < 2 {
		t.Fatalf("expected board table, got %+v", boards)
	}
}

func TestSimRequiresSimulatedInputs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.NewStation(t, cfg)
	d, err := daemon.New(cfg, daemon.Components{Controller: st.Controller}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if _, err := d.Sim("board"); !errors.Is(err, daemon.ErrSimUnavailable) {
		t.Fatalf("expected ErrSimUnavailable, got %v", err)
	}
}

func TestSimActions(t *testing.T) {
	d, _ := newDaemon(t)

	res, err := d.Sim("ENABLE")
	if err != nil {
		t.Fatalf("Sim enable: %v", err)
	}
	if res.Action != "enable" || res.Inputs.Enabled {
		t.Fatalf("expected enable toggled off, got %+v", res)
	}
	if res, _ := d.Sim("curtain"); res.Inputs.CurtainClear {
		t.Fatalf("expected curtain blocked, got %+v", res)
	}
	if _, err := d.Sim("blank-left"); err != nil {
		t.Fatalf("Sim blank-left: %v", err)
	}
	if _, err := d.Sim("explode"); err == nil {
		t.Fatal("expected error for unknown action")
	}
}

func TestTestNotification(t *testing.T) {
	d, _ := newDaemon(t)
	sent, msg, err := d.TestNotification(context.Background())
	if err != nil || sent || msg != "ntfy topic not configured" {
		t.Fatalf("unexpected result without topic: %v %q %v", sent, msg, err)
	}

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d, _ = newDaemon(t, testsupport.WithNtfyTopic(srv.URL))
	sent, msg, err = d.TestNotification(context.Background())
	if err != nil || !sent {
		t.Fatalf("expected notification sent, got %v %q %v", sent, msg, err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected 1 request, got %d", hits.Load())
	}
}

func TestEventsWithoutBuffer(t *testing.T) {
	d, _ := newDaemon(t)
	if events := d.Events(0, 10); events != nil {
		t.Fatalf("expected nil events, got %+v", events)
	}
}
