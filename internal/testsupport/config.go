package testsupport

import (
	"path/filepath"
	"testing"

	"seriallinker/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a simulate-mode config seeded with unique temp
// directories per test. Simulated captures complete without delay.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ResultDir = filepath.Join(base, "results")
	cfgVal.Paths.FailedImageDir = filepath.Join(base, "failed")
	cfgVal.Paths.CaptureDir = filepath.Join(base, "capture")
	cfgVal.Paths.SocketPath = filepath.Join(base, "linker.sock")
	cfgVal.Station.Mode = config.ModeSimulate
	cfgVal.Station.PollIntervalMs = 10
	cfgVal.Sensors.Driver = config.SensorDriverSim
	cfgVal.Capture.Driver = config.CaptureDriverSim
	cfgVal.Capture.SimDelayMs = 0
	cfgVal.Capture.DeviceSubsystem = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithNtfyTopic points notifications at the given ntfy endpoint.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// WithMESBaseURL points the link and login services at the given server.
func WithMESBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.MES.BaseURL = url
	}
}

// BaseDir returns the temp root backing the config's directories.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
