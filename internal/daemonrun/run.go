package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"seriallinker/internal/capture"
	"seriallinker/internal/config"
	"seriallinker/internal/daemon"
	"seriallinker/internal/decode"
	"seriallinker/internal/ipc"
	"seriallinker/internal/logging"
	"seriallinker/internal/mqtt"
	"seriallinker/internal/notifications"
	"seriallinker/internal/preflight"
	"seriallinker/internal/resultlog"
	"seriallinker/internal/sensors"
	"seriallinker/internal/services/mes"
	"seriallinker/internal/station"
	"seriallinker/internal/telemetry"
)

const (
	logPrefix      = "linker"
	recentCapacity = 2048
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the linker daemon and blocks until SIGINT/SIGTERM or cmdCtx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("%s-%s.log", logPrefix, runID))
	recent := logging.NewRecentBuffer(recentCapacity)

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		Recent:           recent,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = logger.With(logging.String("run_id", runID))

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s.log link: %v\n", logPrefix, err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: logPrefix + "-*.log", Exclude: []string{logPath}},
	)
	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	logDependencySnapshot(logger, cfg)
	logPreflight(signalCtx, logger, cfg)

	broker, err := connectBroker(cfg, logger)
	if err != nil {
		return err
	}
	if broker != nil {
		defer broker.Close()
	}

	var subscriber sensors.Subscriber
	if broker != nil {
		subscriber = broker
	}
	inputs, err := sensors.New(cfg, subscriber, logger)
	if err != nil {
		return fmt.Errorf("init sensors: %w", err)
	}
	actuator, err := capture.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init capture: %w", err)
	}
	reader, err := decode.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init decoder: %w", err)
	}
	defer reader.Close()

	history, err := resultlog.OpenHistory(cfg.HistoryPath())
	if err != nil {
		logging.ErrorWithContext(logger, "open history database", "history_open_failed",
			logging.Error(err),
			logging.String("path", cfg.HistoryPath()),
			logging.String(logging.FieldErrorHint, "check permissions on paths.data_dir"),
		)
		return err
	}
	recorder := resultlog.NewRecorder(
		resultlog.NewDailyLog(cfg.Paths.ResultDir),
		resultlog.NewBackup(cfg.Paths.FailedImageDir),
		history,
		logger,
	)

	metrics, closeMetrics := connectTelemetry(cfg, logger)
	defer closeMetrics()

	var display station.DisplaySink
	if broker != nil {
		sink := station.NewMQTTDisplay(broker, broker.Topics(), cfg.Station.Name, logger)
		go sink.Run(signalCtx)
		display = sink
	}

	notifier := notifications.NewService(cfg)
	mesClient := mes.NewClient(cfg.MES, logger)
	controller, err := station.New(cfg, station.Dependencies{
		Sensors:   inputs,
		Actuator:  actuator,
		Decoder:   reader,
		Linker:    mesClient,
		Auth:      mesClient,
		Recorder:  recorder,
		Notifier:  notifier,
		Telemetry: metrics,
		Display:   display,
	}, logger)
	if err != nil {
		_ = history.Close()
		return fmt.Errorf("create station: %w", err)
	}

	d, err := daemon.New(cfg, daemon.Components{
		Controller: controller,
		History:    history,
		Notifier:   notifier,
		Sensors:    inputs,
		Capture:    actuator,
		Monitor:    capture.NewDeviceMonitor(cfg.Capture.DeviceSubsystem, cfg.Capture.DeviceName, logger, nil),
		Recent:     recent,
		LogPath:    logPath,
	}, logger)
	if err != nil {
		_ = history.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	// The lock is taken before the socket is replaced so a second instance
	// cannot steal a running daemon's socket.
	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	<-signalCtx.Done()
	logger.Info("linker daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// connectBroker returns nil when MQTT is disabled. A broker failure is fatal
// only when the sensor inputs depend on it.
func connectBroker(cfg *config.Config, logger *slog.Logger) (*mqtt.Client, error) {
	if !cfg.MQTT.Enabled {
		return nil, nil
	}
	client, err := mqtt.Connect(cfg.MQTT, cfg.Station.Name, logger)
	if err == nil {
		return client, nil
	}
	if cfg.Sensors.Driver == config.SensorDriverMQTT {
		return nil, fmt.Errorf("connect mqtt broker: %w", err)
	}
	logging.WarnWithContext(logger, "mqtt broker unavailable", "mqtt_connect_failed",
		logging.Error(err),
		logging.String("broker", cfg.MQTT.Broker),
		logging.String(logging.FieldErrorHint, "check mqtt.broker and credentials"),
		logging.String(logging.FieldImpact, "display and result messages are not published"),
	)
	return nil, nil
}

func connectTelemetry(cfg *config.Config, logger *slog.Logger) (telemetry.Sink, func()) {
	client, err := telemetry.Connect(cfg.Influx, cfg.Station.Name, logger)
	if err != nil {
		if !errors.Is(err, telemetry.ErrDisabled) {
			logging.WarnWithContext(logger, "influx telemetry unavailable", "telemetry_connect_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check influx.url and influx.token"),
				logging.String(logging.FieldImpact, "cycle metrics are not recorded"),
			)
		}
		return telemetry.Nop{}, func() {}
	}
	return client, func() { _ = client.Close() }
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	results := preflight.RunAll(ctx, cfg)
	for _, r := range results {
		if r.Passed {
			logger.Debug("preflight check passed", logging.String("check", r.Name), logging.String("detail", r.Detail))
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "run linker preflight for the full report"),
			logging.String(logging.FieldImpact, "cycles may fail until the check passes"),
		)
	}
	logger.Info("preflight complete",
		logging.String(logging.FieldEventType, "preflight_complete"),
		logging.Int("checks", len(results)),
		logging.Int("failed", len(preflight.Failed(results))),
	)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, logPrefix+".log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []any{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("station", cfg.Station.Name),
		logging.String("mode", cfg.Station.Mode),
		logging.String("sensor_driver", cfg.Sensors.Driver),
		logging.String("capture_driver", cfg.Capture.Driver),
		logging.String("decoder_engine", cfg.Decoder.Engine),
		logging.String("mes_base_url", cfg.MES.BaseURL),
		logging.Bool("mes_token_present", strings.TrimSpace(cfg.MES.APIToken) != ""),
		logging.Bool("mqtt_enabled", cfg.MQTT.Enabled),
		logging.Bool("influx_enabled", cfg.Influx.Enabled),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	}
	if cfg.Capture.Driver == config.CaptureDriverCommand {
		attrs = append(attrs,
			logging.String("capture_binary", cfg.Capture.Command),
			logging.Bool("capture_available", binaryAvailable(cfg.Capture.Command)),
		)
	}
	logger.Info("dependency snapshot", attrs...)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
