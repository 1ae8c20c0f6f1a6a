package testsupport

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"seriallinker/internal/capture"
	"seriallinker/internal/config"
	"seriallinker/internal/logging"
	"seriallinker/internal/resultlog"
	"seriallinker/internal/sensors"
	"seriallinker/internal/services/mes"
	"seriallinker/internal/station"
)

// Password is the only password StubAuth accepts.
const Password = "secret"

// Station bundles a simulate-mode controller with handles to its simulated edges.
type Station struct {
	Controller *station.Controller
	Sensors    *sensors.Simulated
	Capture    *capture.Simulated
	History    *resultlog.History
	Linker     *StubLinker
}

// NewStation builds a controller on simulated inputs and capture, a stub
// decoder and link service, and a real recorder writing under cfg's paths.
func NewStation(t testing.TB, cfg *config.Config) *Station {
	t.Helper()

	history, err := resultlog.OpenHistory(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { _ = history.Close() })

	logger := logging.NewNop()
	recorder := resultlog.NewRecorder(
		resultlog.NewDailyLog(cfg.Paths.ResultDir),
		resultlog.NewBackup(cfg.Paths.FailedImageDir),
		history,
		logger,
	)
	inputs := sensors.NewSimulated()
	sim := capture.NewSimulated(capture.SimulatedConfig{Dir: cfg.Paths.CaptureDir})
	linker := &StubLinker{}

	ctrl, err := station.New(cfg, station.Dependencies{
		Sensors:  inputs,
		Actuator: sim,
		Decoder:  StubDecoder{},
		Linker:   linker,
		Auth:     StubAuth{},
		Recorder: recorder,
	}, logger)
	if err != nil {
		t.Fatalf("station.New: %v", err)
	}
	return &Station{Controller: ctrl, Sensors: inputs, Capture: sim, History: history, Linker: linker}
}

// StubDecoder reads the file name as the code; blank simulated captures are
// not distinguishable, so callers that need a miss use a missing path.
type StubDecoder struct{}

func (StubDecoder) Decode(_ context.Context, path string) (string, bool) {
	if path == "" {
		return "", false
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.ToUpper(name), true
}

// StubLinker records calls and succeeds unless Fail is set.
type StubLinker struct {
	mu    sync.Mutex
	Fail  string
	calls int
}

// CallCount reports how many link or depanel calls were made.
func (l *StubLinker) CallCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func (l *StubLinker) LinkPair(_ context.Context, _, left, right string) mes.Outcome {
	return l.outcome("Linked " + left + "+" + right)
}

func (l *StubLinker) LinkSingle(_ context.Context, _, code string) mes.Outcome {
	return l.outcome("Depanelled " + code)
}

func (l *StubLinker) outcome(msg string) mes.Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.Fail != "" {
		return mes.Outcome{Message: l.Fail}
	}
	return mes.Outcome{Success: true, Message: msg}
}

// StubAuth accepts any username with Password.
type StubAuth struct{}

func (StubAuth) Login(_ context.Context, username, password string) (mes.Operator, error) {
	if password != Password {
		return mes.Operator{}, errors.Join(mes.ErrRejected, errors.New("bad password"))
	}
	return mes.Operator{ID: strings.ToUpper(username), Name: username}, nil
}
