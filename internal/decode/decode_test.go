package decode

import (
	"context"
	"errors"
	"testing"

	"seriallinker/internal/capture"
	"seriallinker/internal/config"
)

type fakeEngine struct {
	codes map[string]string
	err   error
	panic bool
	scans int
}

func (f *fakeEngine) Scan(_ context.Context, path string) (string, error) {
	f.scans++
	if f.panic {
		panic("engine crashed")
	}
	if f.err != nil {
		return "", f.err
	}
	if code, ok := f.codes[path]; ok {
		return code, nil
	}
	return "", ErrNoCode
}

func (f *fakeEngine) Close() error { return nil }

func TestReaderBuildsEngineOnce(t *testing.T) {
	engine := &fakeEngine{codes: map[string]string{"/img/left.jpg": " 1026054858\r\n"}}
	builds := 0
	r := NewReader("fake", func() (Engine, error) {
		builds++
		return engine, nil
	}, nil)

	for i := 0; i < 3; i++ {
		code, ok := r.Decode(context.Background(), "/img/left.jpg")
		if !ok || code != "1026054858" {
			t.Fatalf("Decode = %q, %v", code, ok)
		}
	}
	if builds != 1 {
		t.Fatalf("expected one engine build, got %d", builds)
	}
}

func TestReaderAbsorbsFailures(t *testing.T) {
	tests := []struct {
		name   string
		reader *Reader
		path   string
	}{
		{"empty path", NewReader("fake", func() (Engine, error) { return &fakeEngine{}, nil }, nil), ""},
		{"no code", NewReader("fake", func() (Engine, error) { return &fakeEngine{}, nil }, nil), "/img/x.jpg"},
		{"engine error", NewReader("fake", func() (Engine, error) { return &fakeEngine{err: errors.New("io")}, nil }, nil), "/img/x.jpg"},
		{"engine panic", NewReader("fake", func() (Engine, error) { return &fakeEngine{panic: true}, nil }, nil), "/img/x.jpg"},
		{"build failure", NewReader("fake", func() (Engine, error) { return nil, errors.New("no license") }, nil), "/img/x.jpg"},
		{"blank code", NewReader("fake", func() (Engine, error) { return &fakeEngine{codes: map[string]string{"/img/x.jpg": "\x1d "}}, nil }, nil), "/img/x.jpg"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if code, ok := tc.reader.Decode(context.Background(), tc.path); ok || code != "" {
				t.Fatalf("expected no code, got %q", code)
			}
		})
	}
}

func TestDecodeSides(t *testing.T) {
	engine := &fakeEngine{codes: map[string]string{"L": "1026054858"}}
	r := NewReader("fake", func() (Engine, error) { return engine, nil }, nil)

	out := DecodeSides(context.Background(), r, "L", "R")
	if !out.LeftOK || out.Left != "1026054858" || out.RightOK || out.Right != "" {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	out = DecodeSides(context.Background(), r, "", "")
	if out.LeftOK || out.RightOK {
		t.Fatalf("expected no codes for missing artifacts: %+v", out)
	}
	if engine.scans != 2 {
		t.Fatalf("missing artifacts must not reach the engine, scans=%d", engine.scans)
	}
}

func TestNewSelectsEngine(t *testing.T) {
	cfg := config.Default()
	if _, err := New(&cfg, nil); err != nil {
		t.Fatalf("New zxing: %v", err)
	}
	cfg.Decoder.Engine = "vendor"
	if _, err := New(&cfg, nil); err == nil {
		t.Fatal("expected error for unknown engine")
	}
}

func TestZXingDecodesSimulatedCapture(t *testing.T) {
	sim := capture.NewSimulated(capture.SimulatedConfig{Dir: t.TempDir()})
	result, err := sim.Capture(context.Background(), capture.Board{Name: "pcb_273", DoubleSided: true})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	r := NewReader("zxing", func() (Engine, error) { return newZXingEngine(true), nil }, nil)
	out := DecodeSides(context.Background(), r, result.Left, result.Right)
	if !out.LeftOK || out.Left != capture.SimulatedCode("pcb_273", "left", 1) {
		t.Fatalf("left = %q (%v)", out.Left, out.LeftOK)
	}
	if !out.RightOK || out.Right != capture.SimulatedCode("pcb_273", "right", 1) {
		t.Fatalf("right = %q (%v)", out.Right, out.RightOK)
	}

	sim.BlankNext(false, true)
	result, err = sim.Capture(context.Background(), capture.Board{Name: "pcb_273", DoubleSided: true})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	out = DecodeSides(context.Background(), r, result.Left, result.Right)
	if !out.LeftOK || out.RightOK {
		t.Fatalf("expected only left to decode, got %+v", out)
	}
}

func TestZXingMissingFile(t *testing.T) {
	if _, err := newZXingEngine(false).Scan(context.Background(), "/does/not/exist.jpg"); err == nil {
		t.Fatal("expected error for missing image")
	}
}
