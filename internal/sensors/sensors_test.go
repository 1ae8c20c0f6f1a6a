package sensors

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"seriallinker/internal/config"
)

func TestSimulatedStartIsOneShot(t *testing.T) {
	sim := NewSimulated()
	if snap := Read(sim); snap.BoardPresent || snap.StartPressed || !snap.Enabled || !snap.CurtainClear {
		t.Fatalf("unexpected initial snapshot: %+v", snap)
	}

	sim.PressStart()
	if !sim.State().StartPressed {
		t.Fatal("State should expose the latched press without consuming it")
	}
	if !Read(sim).StartPressed {
		t.Fatal("expected latched press on first read")
	}
	if Read(sim).StartPressed {
		t.Fatal("press must be consumed by the first read")
	}

	if !sim.ToggleBoard() || sim.ToggleEnable() || sim.ToggleCurtain() {
		t.Fatal("unexpected toggle results")
	}
	snap := Read(sim)
	if !snap.BoardPresent || snap.Enabled || snap.CurtainClear {
		t.Fatalf("unexpected snapshot after toggles: %+v", snap)
	}
}

func TestSnapshotReady(t *testing.T) {
	if (Snapshot{StartPressed: true, Enabled: true}).Ready() {
		t.Fatal("curtain blocked must not be ready")
	}
	if !(Snapshot{StartPressed: true, Enabled: true, CurtainClear: true}).Ready() {
		t.Fatal("expected ready")
	}
}

func TestEdgeLatchesRisingEdgeOnce(t *testing.T) {
	var e Edge
	e.Observe(true)
	e.Observe(true)
	if !e.Take() {
		t.Fatal("expected rising edge")
	}
	e.Observe(true)
	if e.Take() {
		t.Fatal("held level must not re-trigger")
	}
	e.Observe(false)
	e.Observe(true)
	if !e.Take() {
		t.Fatal("expected second edge after release")
	}
	e.Observe(false)
	e.Observe(true)
	e.Reset()
	if e.Take() {
		t.Fatal("reset should drop pending edge")
	}
}

func writePin(t *testing.T, root string, pin int, value string) {
	t.Helper()
	dir := filepath.Join(root, "gpio"+strconv.Itoa(pin))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "value"), []byte(value+"\n"), 0o644); err != nil {
		t.Fatalf("write pin: %v", err)
	}
}

func TestGPIOActiveLowAndFailClosed(t *testing.T) {
	root := t.TempDir()
	port := NewGPIO(GPIOConfig{Root: root, ActiveLow: true, BoardPin: 1, StartPin: 2, EnablePin: 3, CurtainPin: 4}, nil)

	writePin(t, root, 1, "0")
	writePin(t, root, 2, "1")
	writePin(t, root, 3, "0")
	// curtain pin 4 missing: must read as not clear

	snap := Read(port)
	if !snap.BoardPresent || snap.StartPressed || !snap.Enabled || snap.CurtainClear {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if h := port.Health(); h.Ready {
		t.Fatalf("expected degraded health with missing pin, got %+v", h)
	}

	writePin(t, root, 4, "0")
	writePin(t, root, 2, "0")
	if !port.StartPressed() {
		t.Fatal("expected start edge")
	}
	if port.StartPressed() {
		t.Fatal("held button must not re-trigger")
	}
	if !port.CurtainClear() {
		t.Fatal("expected curtain clear after pin appears")
	}
	if h := port.Health(); !h.Ready {
		t.Fatalf("expected recovered health, got %+v", h)
	}

	writePin(t, root, 3, "garbage")
	if port.Enabled() {
		t.Fatal("garbage value must fail closed")
	}
}

func TestGPIOHeldStartSurvivesReadFault(t *testing.T) {
	root := t.TempDir()
	port := NewGPIO(GPIOConfig{Root: root, BoardPin: 1, StartPin: 2, EnablePin: 3, CurtainPin: 4}, nil)

	writePin(t, root, 2, "1")
	presses := 0
	if port.StartPressed() {
		presses++
	}
	writePin(t, root, 2, "garbage")
	if port.StartPressed() {
		presses++
	}
	writePin(t, root, 2, "1")
	for range 3 {
		if port.StartPressed() {
			presses++
		}
	}
	if presses != 1 {
		t.Fatalf("held button produced %d presses, want 1", presses)
	}

	writePin(t, root, 2, "0")
	if port.StartPressed() {
		t.Fatal("release must not report a press")
	}
	writePin(t, root, 2, "1")
	if !port.StartPressed() {
		t.Fatal("expected press after release")
	}
}

func TestGPIOHealthReportsLowestFaultedPin(t *testing.T) {
	root := t.TempDir()
	port := NewGPIO(GPIOConfig{Root: root, BoardPin: 7, StartPin: 2, EnablePin: 5, CurtainPin: 9}, nil)

	for range 5 {
		_ = Read(port)
		h := port.Health()
		if h.Ready {
			t.Fatal("expected degraded health with no pins exported")
		}
		if !strings.HasPrefix(h.Detail, "pin 2:") || !strings.HasSuffix(h.Detail, "(+3 more)") {
			t.Fatalf("unexpected health detail %q", h.Detail)
		}
	}
}

type fakeSubscriber struct {
	topic   string
	handler func(string, []byte) error
	err     error
}

func (f *fakeSubscriber) Subscribe(topic string, _ byte, handler func(string, []byte) error) error {
	f.topic = topic
	f.handler = handler
	return f.err
}

func TestMQTTPortTracksLevelsAndStaleness(t *testing.T) {
	sub := &fakeSubscriber{}
	port, err := NewMQTT(sub, MQTTConfig{TopicPrefix: "cell/inputs/", StaleAfter: time.Second}, nil)
	if err != nil {
		t.Fatalf("NewMQTT: %v", err)
	}
	if sub.topic != "cell/inputs/+" {
		t.Fatalf("unexpected subscription topic %q", sub.topic)
	}
	now := time.Unix(1000, 0)
	port.now = func() time.Time { return now }

	if port.BoardPresent() || port.Enabled() {
		t.Fatal("inputs without data must fail closed")
	}

	for topic, payload := range map[string]string{
		"cell/inputs/board":   "1",
		"cell/inputs/enable":  "on",
		"cell/inputs/curtain": "true",
		"cell/inputs/other":   "1",
	} {
		if err := sub.handler(topic, []byte(payload)); err != nil {
			t.Fatalf("handle %s: %v", topic, err)
		}
	}
	if err := sub.handler("cell/inputs/start", []byte("1")); err != nil {
		t.Fatalf("handle start: %v", err)
	}

	snap := Read(port)
	if !snap.BoardPresent || !snap.StartPressed || !snap.Enabled || !snap.CurtainClear {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if port.StartPressed() {
		t.Fatal("start must be one-shot")
	}
	if h := port.Health(); !h.Ready {
		t.Fatalf("expected healthy port, got %+v", h)
	}

	now = now.Add(2 * time.Second)
	if port.BoardPresent() || port.CurtainClear() {
		t.Fatal("stale inputs must fail closed")
	}
	if h := port.Health(); h.Ready {
		t.Fatal("expected stale health")
	}

	if err := sub.handler("cell/inputs/board", []byte("maybe")); err == nil {
		t.Fatal("expected parse error for unknown level")
	}
}

func TestNewSelectsDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Sensors.Driver = config.SensorDriverSim
	port, err := New(&cfg, nil, nil)
	if err != nil {
		t.Fatalf("New sim: %v", err)
	}
	if _, ok := port.(*Simulated); !ok {
		t.Fatalf("expected *Simulated, got %T", port)
	}

	cfg.Sensors.Driver = config.SensorDriverMQTT
	if _, err := New(&cfg, nil, nil); err == nil {
		t.Fatal("expected error without subscriber")
	}

	sub := &fakeSubscriber{err: errors.New("not connected")}
	if _, err := New(&cfg, sub, nil); err == nil {
		t.Fatal("expected subscribe error to surface")
	}

	cfg.Sensors.Driver = config.SensorDriverGPIO
	if _, err := New(&cfg, nil, nil); err != nil {
		t.Fatalf("New gpio: %v", err)
	}
}
