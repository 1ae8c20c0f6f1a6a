package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"seriallinker/internal/logging"
	"seriallinker/internal/services"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onLine func(string)) error
}

// Option configures the Command actuator.
type Option func(*Command)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Command) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// CommandConfig describes the capture helper invocation.
type CommandConfig struct {
	Binary        string
	Args          []string
	OutputDir     string
	Timeout       time.Duration
	Attempts      int
	MinImageBytes int64
}

// Command drives the capture helper. The helper is invoked as
//
//	<binary> [args...] --board NAME --sides N --out DIR [--left-pose ...] [--right-pose ...]
//
// and reports results as LEFT=<path> / RIGHT=<path> lines on stdout.
type Command struct {
	cfg    CommandConfig
	exec   Executor
	logger *slog.Logger
}

// NewCommand constructs a command actuator.
func NewCommand(cfg CommandConfig, logger *slog.Logger, opts ...Option) (*Command, error) {
	cfg.Binary = strings.TrimSpace(cfg.Binary)
	if cfg.Binary == "" {
		return nil, errors.New("capture helper binary required")
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	c := &Command{
		cfg:    cfg,
		exec:   commandExecutor{},
		logger: logging.NewComponentLogger(logger, "capture"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Capture runs the helper until every expected side yields a valid image or
// attempts run out. Sides that validated are returned even when others failed.
func (c *Command) Capture(ctx context.Context, board Board) (Result, error) {
	logger := logging.WithContext(ctx, c.logger)
	var best Result
	var lastErr error

	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return best, err
		}
		got, err := c.runOnce(ctx, board)
		if err != nil {
			lastErr = err
			logging.WarnWithContext(logger, "capture attempt failed", "capture_attempt_failed",
				logging.Int("attempt", attempt),
				logging.Int("attempts", c.cfg.Attempts),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the capture helper output and camera connection"),
				logging.String(logging.FieldImpact, "capture retried"),
			)
			continue
		}

		validated, verr := c.validate(got, board)
		if validated.Left != "" {
			best.Left = validated.Left
		}
		if validated.Right != "" {
			best.Right = validated.Right
		}
		if verr == nil && complete(best, board) {
			logger.Debug("capture complete", logging.Int("attempt", attempt), logging.String("left", best.Left), logging.String("right", best.Right))
			return best, nil
		}
		if verr != nil {
			lastErr = verr
			logging.WarnWithContext(logger, "capture produced unusable image", "capture_image_rejected",
				logging.Int("attempt", attempt),
				logging.Error(verr),
				logging.String(logging.FieldErrorHint, "check lighting and focus"),
				logging.String(logging.FieldImpact, "capture retried"),
			)
		}
	}

	if complete(best, board) {
		return best, nil
	}
	if lastErr == nil {
		lastErr = errors.New("helper reported no images")
	}
	return best, services.Wrap(services.ErrExternalTool, "capture", "run helper", fmt.Sprintf("after %d attempts", c.cfg.Attempts), lastErr)
}

func (c *Command) runOnce(ctx context.Context, board Board) (Result, error) {
	runCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	var result Result
	var mu sync.Mutex
	err := c.exec.Run(runCtx, c.cfg.Binary, c.buildArgs(board), func(line string) {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			c.logger.Debug("capture helper output", logging.String("line", line))
			return
		}
		mu.Lock()
		defer mu.Unlock()
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "LEFT":
			result.Left = strings.TrimSpace(value)
		case "RIGHT":
			result.Right = strings.TrimSpace(value)
		}
	})
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return result, services.Wrap(services.ErrTimeout, "capture", "run helper", c.cfg.Timeout.String(), err)
		}
		return result, err
	}
	if !board.DoubleSided {
		result.Right = ""
	}
	return result, nil
}

func (c *Command) buildArgs(board Board) []string {
	args := append([]string(nil), c.cfg.Args...)
	sides := "2"
	if !board.DoubleSided {
		sides = "1"
	}
	args = append(args, "--board", board.Name, "--sides", sides)
	if c.cfg.OutputDir != "" {
		args = append(args, "--out", c.cfg.OutputDir)
	}
	if len(board.LeftPose) > 0 {
		args = append(args, "--left-pose", joinPose(board.LeftPose))
	}
	if board.DoubleSided && len(board.RightPose) > 0 {
		args = append(args, "--right-pose", joinPose(board.RightPose))
	}
	return args
}

// validate drops sides whose files are missing or implausibly small.
func (c *Command) validate(r Result, board Board) (Result, error) {
	var errs []error
	check := func(side, path string) string {
		if path == "" {
			errs = append(errs, fmt.Errorf("%s image not reported", side))
			return ""
		}
		info, err := os.Stat(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s image: %w", side, err))
			return ""
		}
		if info.Size() < c.cfg.MinImageBytes {
			errs = append(errs, fmt.Errorf("%s image %s is %d bytes (minimum %d)", side, path, info.Size(), c.cfg.MinImageBytes))
			return ""
		}
		return path
	}
	out := Result{Left: check("left", r.Left)}
	if board.DoubleSided {
		out.Right = check("right", r.Right)
	}
	return out, errors.Join(errs...)
}

func complete(r Result, board Board) bool {
	if r.Left == "" {
		return false
	}
	return !board.DoubleSided || r.Right != ""
}

func joinPose(pose []float64) string {
	parts := make([]string, len(pose))
	for i, v := range pose {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

func msDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

func secDuration(s int) time.Duration { return time.Duration(s) * time.Second }

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &limitedWriter{w: &stderr, n: 4096}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", binary, err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if onLine != nil {
			onLine(scanner.Text())
		}
	}
	scanErr := scanner.Err()
	if err := cmd.Wait(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", binary, err, msg)
		}
		return fmt.Errorf("%s: %w", binary, err)
	}
	if scanErr != nil {
		return fmt.Errorf("scan output: %w", scanErr)
	}
	return nil
}

type limitedWriter struct {
	w io.Writer
	n int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.n <= 0 {
		return len(p), nil
	}
	chunk := p
	if len(chunk) > l.n {
		chunk = chunk[:l.n]
	}
	l.n -= len(chunk)
	if _, err := l.w.Write(chunk); err != nil {
		return 0, err
	}
	return len(p), nil
}
