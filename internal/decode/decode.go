package decode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"seriallinker/internal/config"
	"seriallinker/internal/logging"
	"seriallinker/internal/textutil"
)

// ErrNoCode reports that an engine inspected the image and found no code.
var ErrNoCode = errors.New("no code found")

// Engine reads the first code from an image.
type Engine interface {
	Scan(ctx context.Context, path string) (string, error)
	Close() error
}

// Decoder is the contract the work cycle depends on.
type Decoder interface {
	Decode(ctx context.Context, path string) (string, bool)
}

// Outcome holds the per-side decode result of one cycle.
type Outcome struct {
	Left    string `json:"left,omitempty"`
	Right   string `json:"right,omitempty"`
	LeftOK  bool   `json:"left_ok"`
	RightOK bool   `json:"right_ok"`
}

// Reader is the shared decode handle. The engine is built once, on the first
// Decode, and reused afterwards.
type Reader struct {
	name   string
	build  func() (Engine, error)
	logger *slog.Logger

	once    sync.Once
	engine  Engine
	initErr error
}

// NewReader wraps an engine constructor.
func NewReader(name string, build func() (Engine, error), logger *slog.Logger) *Reader {
	return &Reader{
		name:   name,
		build:  build,
		logger: logging.NewComponentLogger(logger, "decoder"),
	}
}

// New returns a Reader for the engine selected in cfg.Decoder.
func New(cfg *config.Config, logger *slog.Logger) (*Reader, error) {
	d := cfg.Decoder
	var build func() (Engine, error)
	switch d.Engine {
	case config.DecoderEngineZXing:
		build = func() (Engine, error) { return newZXingEngine(d.TryHarder), nil }
	case config.DecoderEngineServer:
		build = func() (Engine, error) {
			return newServerEngine(ServerConfig{
				Addr:     d.ServerAddr,
				Timeout:  time.Duration(d.TimeoutSeconds) * time.Second,
				Poll:     time.Duration(d.PollIntervalMs) * time.Millisecond,
				Template: d.TemplatePath,
				Share: Share{
					Mount:   d.ShareMount,
					UNCRoot: d.ShareUNCRoot,
					Subdir:  d.ShareSubdir,
				},
			}, logger), nil
		}
	case config.DecoderEngineTesseract:
		build = newOCREngine
	default:
		return nil, fmt.Errorf("decode: unsupported engine %q", d.Engine)
	}
	return NewReader(d.Engine, build, logger), nil
}

// Decode returns the first code found in the image at path.
func (r *Reader) Decode(ctx context.Context, path string) (code string, ok bool) {
	if strings.TrimSpace(path) == "" {
		return "", false
	}
	logger := logging.WithContext(ctx, r.logger)
	defer func() {
		if rec := recover(); rec != nil {
			logging.ErrorWithContext(logger, "decode engine panicked", "decode_panic",
				logging.String("path", path),
				logging.Any("panic", rec),
				logging.String(logging.FieldImpact, "side treated as no code"),
			)
			code, ok = "", false
		}
	}()

	engine, err := r.handle()
	if err != nil {
		logging.WarnWithContext(logger, "decode engine unavailable", "decode_engine_unavailable",
			logging.String("engine", r.name),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check decoder configuration"),
			logging.String(logging.FieldImpact, "every side reads as no code"),
		)
		return "", false
	}

	start := time.Now()
	raw, err := engine.Scan(ctx, path)
	if err != nil {
		if errors.Is(err, ErrNoCode) {
			logger.Info("no code found", logging.String("path", path), logging.Duration("elapsed", time.Since(start)))
			return "", false
		}
		logging.WarnWithContext(logger, "decode failed", "decode_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the image and decode engine"),
			logging.String(logging.FieldImpact, "side treated as no code"),
		)
		return "", false
	}
	code = textutil.NormalizeCode(raw)
	if code == "" {
		return "", false
	}
	logger.Info("code decoded", logging.String("path", path), logging.String("code", code), logging.Duration("elapsed", time.Since(start)))
	return code, true
}

// Close releases the engine if it was built.
func (r *Reader) Close() error {
	if r == nil || r.engine == nil {
		return nil
	}
	return r.engine.Close()
}

func (r *Reader) handle() (Engine, error) {
	r.once.Do(func() {
		if r.build == nil {
			r.initErr = errors.New("no engine constructor")
			return
		}
		r.engine, r.initErr = r.build()
	})
	return r.engine, r.initErr
}

// DecodeSides decodes each available artifact. An empty path yields no code.
func DecodeSides(ctx context.Context, d Decoder, left, right string) Outcome {
	var out Outcome
	if left != "" {
		out.Left, out.LeftOK = d.Decode(ctx, left)
	}
	if right != "" {
		out.Right, out.RightOK = d.Decode(ctx, right)
	}
	return out
}
