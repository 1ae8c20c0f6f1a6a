package station

import (
	"context"
	"encoding/csv"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"seriallinker/internal/capture"
	"seriallinker/internal/config"
	"seriallinker/internal/resultlog"
	"seriallinker/internal/sensors"
	"seriallinker/internal/services/mes"
	"seriallinker/internal/telemetry"
)

// levelPort exposes the start input as a level and converts it to presses the
// way the hardware ports do.
type levelPort struct {
	mu      sync.Mutex
	board   bool
	start   bool
	enabled bool
	curtain bool
	edge    sensors.Edge
	panics  int
	health  *sensors.Health
}

func newLevelPort() *levelPort {
	return &levelPort{enabled: true, curtain: true}
}

func (p *levelPort) BoardPresent() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panics > 0 {
		p.panics--
		panic("sensor driver exploded")
	}
	return p.board
}

func (p *levelPort) StartPressed() bool {
	p.mu.Lock()
	level := p.start
	p.mu.Unlock()
	p.edge.Observe(level)
	return p.edge.Take()
}

func (p *levelPort) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

func (p *levelPort) CurtainClear() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.curtain
}

func (p *levelPort) set(fn func(p *levelPort)) {
	p.mu.Lock()
	fn(p)
	p.mu.Unlock()
}

func (p *levelPort) setBoard(v bool) { p.set(func(p *levelPort) { p.board = v }) }
func (p *levelPort) setStart(v bool) { p.set(func(p *levelPort) { p.start = v }) }

type healthPort struct {
	*levelPort
}

func (p healthPort) Health() sensors.Health {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.health == nil {
		return sensors.Health{Name: "test inputs", Ready: true}
	}
	return *p.health
}

type fakeActuator struct {
	dir string
	err error

	mu     sync.Mutex
	calls  int
	boards []capture.Board
}

func (a *fakeActuator) Capture(_ context.Context, board capture.Board) (capture.Result, error) {
	a.mu.Lock()
	a.calls++
	a.boards = append(a.boards, board)
	a.mu.Unlock()

	left := filepath.Join(a.dir, board.Name+"_left.jpg")
	if err := os.WriteFile(left, []byte("left image"), 0o644); err != nil {
		return capture.Result{}, err
	}
	result := capture.Result{Left: left}
	if board.DoubleSided {
		result.Right = filepath.Join(a.dir, board.Name+"_right.jpg")
		if err := os.WriteFile(result.Right, []byte("right image"), 0o644); err != nil {
			return capture.Result{}, err
		}
	}
	if a.err != nil {
		return result, a.err
	}
	return result, nil
}

func (a *fakeActuator) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// fakeDecoder maps the side suffix of an artifact name to a code.
type fakeDecoder struct {
	left  string
	right string
}

func (d *fakeDecoder) Decode(_ context.Context, path string) (string, bool) {
	code := d.left
	if strings.HasSuffix(path, "_right.jpg") {
		code = d.right
	}
	return code, code != ""
}

type fakeLinker struct {
	outcome mes.Outcome
	release chan struct{}

	mu     sync.Mutex
	pairs  [][3]string
	single [][2]string
}

func (l *fakeLinker) wait() {
	if l.release != nil {
		<-l.release
	}
}

func (l *fakeLinker) LinkPair(_ context.Context, operatorID, left, right string) mes.Outcome {
	l.wait()
	l.mu.Lock()
	l.pairs = append(l.pairs, [3]string{operatorID, left, right})
	l.mu.Unlock()
	return l.outcome
}

func (l *fakeLinker) LinkSingle(_ context.Context, operatorID, code string) mes.Outcome {
	l.wait()
	l.mu.Lock()
	l.single = append(l.single, [2]string{operatorID, code})
	l.mu.Unlock()
	return l.outcome
}

func (l *fakeLinker) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pairs), len(l.single)
}

type fakeAuth struct {
	operator mes.Operator
	err      error
}

func (a fakeAuth) Login(context.Context, string, string) (mes.Operator, error) {
	return a.operator, a.err
}

type recordingSink struct {
	mu       sync.Mutex
	displays []Display
	cycles   []CycleSummary
}

func (s *recordingSink) ShowDisplay(d Display) {
	s.mu.Lock()
	s.displays = append(s.displays, d)
	s.mu.Unlock()
}

func (s *recordingSink) CycleFinished(c CycleSummary) {
	s.mu.Lock()
	s.cycles = append(s.cycles, c)
	s.mu.Unlock()
}

func (s *recordingSink) states() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]State, 0, len(s.displays))
	for _, d := range s.displays {
		out = append(out, d.State)
	}
	return out
}

type recordingTelemetry struct {
	mu          sync.Mutex
	cycles      []telemetry.CycleMetrics
	transitions int
}

func (r *recordingTelemetry) CycleCompleted(m telemetry.CycleMetrics) {
	r.mu.Lock()
	r.cycles = append(r.cycles, m)
	r.mu.Unlock()
}

func (r *recordingTelemetry) StateChanged(string, string) {
	r.mu.Lock()
	r.transitions++
	r.mu.Unlock()
}

type fakeNotifier struct {
	failures chan string
	faults   chan string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{failures: make(chan string, 8), faults: make(chan string, 8)}
}

func (n *fakeNotifier) NotifyStationStarted(context.Context, string, string) error { return nil }
func (n *fakeNotifier) NotifyStationStopped(context.Context, string) error         { return nil }
func (n *fakeNotifier) NotifyCycleFailed(_ context.Context, _, _, message string) error {
	n.failures <- message
	return nil
}
func (n *fakeNotifier) NotifySensorFault(_ context.Context, _, input, _ string) error {
	n.faults <- input
	return nil
}
func (n *fakeNotifier) NotifyError(context.Context, error, string) error { return nil }
func (n *fakeNotifier) TestNotification(context.Context) error          { return errors.New("unused") }

type harness struct {
	c         *Controller
	cfg       config.Config
	port      *levelPort
	act       *fakeActuator
	dec       *fakeDecoder
	link      *fakeLinker
	sink      *recordingSink
	tel       *recordingTelemetry
	notifier  *fakeNotifier
	logger    *slog.Logger
	resultDir string
	backupDir string
}

func newHarness(t *testing.T, mutate ...func(h *harness, deps *Dependencies)) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Station.PollIntervalMs = 20
	cfg.Boards["pcb_single"] = config.Board{Label: "Single", Sides: 1}

	h := &harness{
		cfg:       cfg,
		port:      newLevelPort(),
		act:       &fakeActuator{dir: t.TempDir()},
		dec:       &fakeDecoder{left: "1026054858", right: "1026054859"},
		link:      &fakeLinker{outcome: mes.Outcome{Success: true, Message: "Linked successfully"}},
		sink:      &recordingSink{},
		tel:       &recordingTelemetry{},
		notifier:  newFakeNotifier(),
		resultDir: t.TempDir(),
		backupDir: t.TempDir(),
	}
	deps := Dependencies{
		Sensors:   h.port,
		Actuator:  h.act,
		Decoder:   h.dec,
		Linker:    h.link,
		Auth:      fakeAuth{operator: mes.Operator{ID: "4711", Name: "jane doe"}},
		Recorder:  resultlog.NewRecorder(resultlog.NewDailyLog(h.resultDir), resultlog.NewBackup(h.backupDir), nil, nil),
		Notifier:  h.notifier,
		Telemetry: h.tel,
		Display:   h.sink,
	}
	for _, fn := range mutate {
		fn(h, &deps)
	}
	c, err := New(&h.cfg, deps, h.logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.c = c
	return h
}

// startSession logs an operator in without the command loop.
func (h *harness) startSession(board string) {
	b := h.c.boards[board]
	h.c.mu.Lock()
	h.c.board = board
	h.c.session = Session{OperatorID: "4711", OperatorName: "Jane Doe", BoardType: board, DoubleSided: b.DoubleSided()}
	h.c.mu.Unlock()
	h.c.transition(context.Background(), StateWaitRemove, "")
}

func (h *harness) tick() {
	h.c.tick(context.Background())
}

func (h *harness) state() State {
	return h.c.Status().State
}

// toWaitStart drives a fresh session to WaitStart with a board loaded.
func (h *harness) toWaitStart(t *testing.T, board string) {
	t.Helper()
	h.startSession(board)
	h.tick()
	h.port.setBoard(true)
	h.tick()
	if got := h.state(); got != StateWaitStart {
		t.Fatalf("expected WaitStart, got %s", got)
	}
}

// press produces one physical press and release across two ticks.
func (h *harness) press() {
	h.port.setStart(true)
	h.tick()
	h.port.setStart(false)
}

// finishCycle waits for the in-flight cycle and delivers its completion.
func (h *harness) finishCycle(t *testing.T) {
	t.Helper()
	h.c.cycles.Wait()
	h.tick()
}

func (h *harness) logRows(t *testing.T) [][]string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(h.resultDir, "link_log_*.csv"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	var rows [][]string
	for _, path := range matches {
		file, err := os.Open(path)
		if err != nil {
			t.Fatalf("open log: %v", err)
		}
		records, err := csv.NewReader(file).ReadAll()
		file.Close()
		if err != nil {
			t.Fatalf("read log: %v", err)
		}
		if len(records) > 0 {
			rows = append(rows, records[1:]...)
		}
	}
	return rows
}

func (h *harness) backups(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.backupDir)
	if err != nil {
		t.Fatalf("read backups: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
