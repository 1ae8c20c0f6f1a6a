package capture

import (
	"context"
	"fmt"
	"log/slog"

	"seriallinker/internal/config"
)

// Board identifies what to capture: the board type and how many sides it has.
type Board struct {
	Name        string
	DoubleSided bool
	LeftPose    []float64
	RightPose   []float64
}

// BoardFromConfig converts a configured board definition.
func BoardFromConfig(name string, b config.Board) Board {
	return Board{Name: name, DoubleSided: b.DoubleSided(), LeftPose: b.LeftPose, RightPose: b.RightPose}
}

// Result holds the artifact paths of one capture cycle. An empty path means
// the side was not captured. Single-sided boards only use Left.
type Result struct {
	Left  string `json:"left,omitempty"`
	Right string `json:"right,omitempty"`
}

// Empty reports whether no artifact was produced.
func (r Result) Empty() bool {
	return r.Left == "" && r.Right == ""
}

// Actuator performs one capture cycle for a board.
type Actuator interface {
	Capture(ctx context.Context, board Board) (Result, error)
}

// New builds the actuator selected by cfg.Capture.Driver.
func New(cfg *config.Config, logger *slog.Logger) (Actuator, error) {
	switch cfg.Capture.Driver {
	case config.CaptureDriverSim:
		return NewSimulated(SimulatedConfig{
			Dir:   cfg.Paths.CaptureDir,
			Delay: msDuration(cfg.Capture.SimDelayMs),
		}), nil
	case config.CaptureDriverCommand:
		return NewCommand(CommandConfig{
			Binary:        cfg.Capture.Command,
			Args:          cfg.Capture.Args,
			OutputDir:     cfg.Paths.CaptureDir,
			Timeout:       secDuration(cfg.Capture.TimeoutSeconds),
			Attempts:      cfg.Capture.Attempts,
			MinImageBytes: cfg.Capture.MinImageBytes,
		}, logger)
	default:
		return nil, fmt.Errorf("capture: unsupported driver %q", cfg.Capture.Driver)
	}
}
