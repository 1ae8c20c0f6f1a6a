package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"seriallinker/internal/capture"
	"seriallinker/internal/config"
	"seriallinker/internal/logging"
	"seriallinker/internal/notifications"
	"seriallinker/internal/preflight"
	"seriallinker/internal/resultlog"
	"seriallinker/internal/sensors"
	"seriallinker/internal/station"
)

const notifyTimeout = 10 * time.Second

// ErrSimUnavailable is returned by Sim when the station runs on real inputs.
var ErrSimUnavailable = errors.New("simulation controls require station.mode = \"simulate\"")

// Components are the collaborators assembled by the process runner.
type Components struct {
	Controller *station.Controller
	History    *resultlog.History
	Notifier   notifications.Service
	Sensors    sensors.Port
	Capture    capture.Actuator
	Monitor    *capture.DeviceMonitor
	Recent     *logging.RecentBuffer
	LogPath    string
}

// Daemon runs the station loop and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	controller *station.Controller
	history    *resultlog.History
	notifier   notifications.Service
	simInputs  *sensors.Simulated
	simCapture *capture.Simulated
	monitor    *capture.DeviceMonitor
	recent     *logging.RecentBuffer
	logPath    string

	lockPath string
	lock     *flock.Flock

	mu       sync.Mutex
	running  atomic.Bool
	cancel   context.CancelFunc
	loopDone chan error
	started  time.Time
}

// Status represents daemon runtime information.
type Status struct {
	Running     bool            `json:"running"`
	PID         int             `json:"pid"`
	StartedAt   time.Time       `json:"started_at,omitzero"`
	Station     station.Status  `json:"station"`
	Today       resultlog.Stats `json:"today"`
	Camera      *DeviceStatus   `json:"camera,omitempty"`
	LockPath    string          `json:"lock_path"`
	HistoryPath string          `json:"history_path"`
	LogPath     string          `json:"log_path"`
}

// DeviceStatus reports hotplug presence for the capture device.
type DeviceStatus struct {
	Present bool `json:"present"`
}

// SimResult reports the simulated inputs after a toggle.
type SimResult struct {
	Action string           `json:"action"`
	Inputs sensors.Snapshot `json:"inputs"`
}

// New constructs a daemon around an already-built station controller.
func New(cfg *config.Config, c Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || c.Controller == nil {
		return nil, errors.New("daemon requires config and station controller")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if c.Notifier == nil {
		c.Notifier = notifications.NewService(cfg)
	}

	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		controller: c.Controller,
		history:    c.History,
		notifier:   c.Notifier,
		monitor:    c.Monitor,
		recent:     c.Recent,
		logPath:    c.LogPath,
		lockPath:   cfg.LockPath(),
		lock:       flock.New(cfg.LockPath()),
	}
	if sim, ok := c.Sensors.(*sensors.Simulated); ok {
		d.simInputs = sim
	}
	if sim, ok := c.Capture.(*capture.Simulated); ok {
		d.simCapture = sim
	}
	return d, nil
}

// Start acquires the instance lock and launches the station loop.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another linker daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- d.controller.Run(runCtx)
	}()
	if err := awaitLoop(d.controller, done); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start station loop: %w", err)
	}
	if err := d.monitor.Start(runCtx); err != nil {
		logging.WarnWithContext(d.logger, "capture device monitor unavailable", "device_monitor_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check capture.device_subsystem and capture.device_name"),
			logging.String(logging.FieldImpact, "camera disconnects surface only as capture failures"),
		)
	}

	d.cancel = cancel
	d.loopDone = done
	d.started = time.Now()
	d.running.Store(true)
	d.logger.Info("linker daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("station", d.cfg.Station.Name),
		logging.String("mode", d.cfg.Station.Mode),
	)

	go func() {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := d.notifier.NotifyStationStarted(nctx, d.cfg.Station.Name, d.cfg.Station.Mode); err != nil {
			d.logger.Debug("start notification failed", logging.Error(err))
		}
	}()
	return nil
}

// awaitLoop blocks until the controller accepts commands or its loop exits.
func awaitLoop(c *station.Controller, done <-chan error) error {
	for !c.Status().Running {
		select {
		case err := <-done:
			if err == nil {
				err = errors.New("station loop exited during startup")
			}
			return err
		case <-time.After(5 * time.Millisecond):
		}
	}
	return nil
}

// Stop halts the station loop, waiting for an in-flight cycle, and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.cancel()
	if err := <-d.loopDone; err != nil {
		logging.WarnWithContext(d.logger, "station loop exited with error", "station_loop_error",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "restart the daemon"),
			logging.String(logging.FieldImpact, "station was not running"),
		)
	}
	d.monitor.Stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String("lock", d.lockPath),
			logging.String(logging.FieldErrorHint, "remove the lock file if the next start is refused"),
			logging.String(logging.FieldImpact, "next daemon start may fail"),
		)
	}
	d.cancel = nil
	d.loopDone = nil
	d.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := d.notifier.NotifyStationStopped(ctx, d.cfg.Station.Name); err != nil {
		d.logger.Debug("stop notification failed", logging.Error(err))
	}
	d.logger.Info("linker daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and releases the history database.
func (d *Daemon) Close() error {
	d.Stop()
	if d.history != nil {
		return d.history.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	started := d.started
	d.mu.Unlock()

	st := Status{
		Running:     d.running.Load(),
		PID:         os.Getpid(),
		Station:     d.controller.Status(),
		LockPath:    d.lockPath,
		HistoryPath: d.cfg.HistoryPath(),
		LogPath:     d.logPath,
	}
	if st.Running {
		st.StartedAt = started
	}
	if present, known := d.monitor.Present(); known {
		st.Camera = &DeviceStatus{Present: present}
	}
	if d.history != nil {
		now := time.Now()
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		stats, err := d.history.Stats(ctx, midnight)
		if err != nil {
			d.logger.Debug("history stats unavailable", logging.Error(err))
		}
		st.Today = stats
	}
	return st
}

// Login starts an operator session.
func (d *Daemon) Login(ctx context.Context, username, password string) (station.Session, error) {
	return d.controller.Login(ctx, strings.TrimSpace(username), password)
}

// Logout ends the operator session.
func (d *Daemon) Logout(ctx context.Context) error {
	return d.controller.Logout(ctx)
}

// SelectBoard switches the board type.
func (d *Daemon) SelectBoard(ctx context.Context, name string) (station.BoardInfo, error) {
	return d.controller.SelectBoard(ctx, strings.TrimSpace(name))
}

// Boards lists the configured board types.
func (d *Daemon) Boards() []station.BoardInfo {
	return d.controller.Boards()
}

// Sim applies one simulation control. Actions: board, start, enable, curtain,
// blank-left, blank-right, blank.
func (d *Daemon) Sim(action string) (SimResult, error) {
	if d.simInputs == nil {
		return SimResult{}, ErrSimUnavailable
	}
	action = strings.ToLower(strings.TrimSpace(action))
	switch action {
	case "board":
		d.simInputs.ToggleBoard()
	case "start":
		d.simInputs.PressStart()
	case "enable":
		d.simInputs.ToggleEnable()
	case "curtain":
		d.simInputs.ToggleCurtain()
	case "blank", "blank-left", "blank-right":
		if d.simCapture == nil {
			return SimResult{}, errors.New("simulated capture not active")
		}
		d.simCapture.BlankNext(action != "blank-right", action != "blank-left")
	default:
		return SimResult{}, fmt.Errorf("unknown sim action %q", action)
	}
	d.logger.Debug("sim control applied", logging.String("action", action))
	return SimResult{Action: action, Inputs: d.simInputs.State()}, nil
}

// History returns stored cycles, newest first.
func (d *Daemon) History(ctx context.Context, q resultlog.Query) ([]resultlog.Record, error) {
	if d.history == nil {
		return nil, errors.New("history database unavailable")
	}
	return d.history.Recent(ctx, q)
}

// HistoryStats summarizes cycles since the given time.
func (d *Daemon) HistoryStats(ctx context.Context, since time.Time) (resultlog.Stats, error) {
	if d.history == nil {
		return resultlog.Stats{}, errors.New("history database unavailable")
	}
	return d.history.Stats(ctx, since)
}

// Events returns recent structured log events after the given sequence.
func (d *Daemon) Events(after uint64, limit int) []logging.Event {
	if d.recent == nil {
		return nil
	}
	return d.recent.Since(after, limit)
}

// Preflight runs the environment checks against the live configuration.
func (d *Daemon) Preflight(ctx context.Context) []preflight.Result {
	return preflight.RunAll(ctx, d.cfg)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}
