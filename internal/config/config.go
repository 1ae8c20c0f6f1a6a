package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	DataDir        string `toml:"data_dir"`
	LogDir         string `toml:"log_dir"`
	ResultDir      string `toml:"result_dir"`
	FailedImageDir string `toml:"failed_image_dir"`
	CaptureDir     string `toml:"capture_dir"`
	SocketPath     string `toml:"socket_path"`
	EnvFile        string `toml:"env_file"`
}

// Station contains the control loop settings.
type Station struct {
	Name           string `toml:"name"`
	Mode           string `toml:"mode"`
	PollIntervalMs int    `toml:"poll_interval_ms"`
	DefaultBoard   string `toml:"default_board"`
}

// Sensors contains the input wiring for the four station inputs.
type Sensors struct {
	Driver       string `toml:"driver"`
	ActiveLow    bool   `toml:"active_low"`
	GPIORoot     string `toml:"gpio_root"`
	BoardPin     int    `toml:"board_pin"`
	StartPin     int    `toml:"start_pin"`
	EnablePin    int    `toml:"enable_pin"`
	CurtainPin   int    `toml:"curtain_pin"`
	TopicPrefix  string `toml:"topic_prefix"`
	StaleAfterMs int    `toml:"stale_after_ms"`
}

// Capture contains settings for the manipulator/camera capture cycle.
type Capture struct {
	Driver          string   `toml:"driver"`
	Command         string   `toml:"command"`
	Args            []string `toml:"args"`
	TimeoutSeconds  int      `toml:"timeout_seconds"`
	Attempts        int      `toml:"attempts"`
	MinImageBytes   int64    `toml:"min_image_bytes"`
	SimDelayMs      int      `toml:"sim_delay_ms"`
	DeviceSubsystem string   `toml:"device_subsystem"`
	DeviceName      string   `toml:"device_name"`
}

// Decoder contains settings for the code reading engine.
type Decoder struct {
	Engine         string `toml:"engine"`
	ServerAddr     string `toml:"server_addr"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	PollIntervalMs int    `toml:"poll_interval_ms"`
	ShareMount     string `toml:"share_mount"`
	ShareUNCRoot   string `toml:"share_unc_root"`
	ShareSubdir    string `toml:"share_subdir"`
	TemplatePath   string `toml:"template_path"`
	TryHarder      bool   `toml:"try_harder"`
}

// MES contains settings for the remote registration and login services.
type MES struct {
	BaseURL             string   `toml:"base_url"`
	LinkPath            string   `toml:"link_path"`
	DepanelPath         string   `toml:"depanel_path"`
	LoginPath           string   `toml:"login_path"`
	LoginExemptPath     string   `toml:"login_exempt_path"`
	ESDExemptUsers      []string `toml:"esd_exempt_users"`
	LinkTimeoutSeconds  int      `toml:"link_timeout_seconds"`
	LoginTimeoutSeconds int      `toml:"login_timeout_seconds"`
	APIToken            string   `toml:"api_token"`
}

// Board describes one selectable board type.
type Board struct {
	Label     string    `toml:"label"`
	Sides     int       `toml:"sides"`
	LeftPose  []float64 `toml:"left_pose"`
	RightPose []float64 `toml:"right_pose"`
}

// DoubleSided reports whether the board carries a code on both sides.
func (b Board) DoubleSided() bool {
	return b.Sides != 1
}

// MQTT contains broker settings for the sensor bus and display publisher.
type MQTT struct {
	Enabled     bool   `toml:"enabled"`
	Broker      string `toml:"broker"`
	ClientID    string `toml:"client_id"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	TopicPrefix string `toml:"topic_prefix"`
	QoS         int    `toml:"qos"`
}

// Influx contains settings for cycle metrics.
type Influx struct {
	Enabled              bool   `toml:"enabled"`
	URL                  string `toml:"url"`
	Token                string `toml:"token"`
	Org                  string `toml:"org"`
	Bucket               string `toml:"bucket"`
	BatchSize            int    `toml:"batch_size"`
	FlushIntervalSeconds int    `toml:"flush_interval_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic          string `toml:"ntfy_topic"`
	RequestTimeout     int    `toml:"request_timeout"`
	CycleFailures      bool   `toml:"cycle_failures"`
	SensorFaults       bool   `toml:"sensor_faults"`
	DedupWindowSeconds int    `toml:"dedup_window_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for the station.
//
// Configuration sections by subsystem:
//   - Paths: data, log, result, and failure-image directories plus the IPC socket
//   - Station: mode, poll cadence, and default board
//   - Sensors: input driver and pin assignments
//   - Capture: capture cycle driver and validation thresholds
//   - Decoder: code reading engine and remote decode server
//   - MES: remote link/depanel/login endpoints
//   - Boards: selectable board table keyed by board name
//   - MQTT, Influx, Notifications: optional integrations
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths            `toml:"paths"`
	Station       Station          `toml:"station"`
	Sensors       Sensors          `toml:"sensors"`
	Capture       Capture          `toml:"capture"`
	Decoder       Decoder          `toml:"decoder"`
	MES           MES              `toml:"mes"`
	Boards        map[string]Board `toml:"boards"`
	MQTT          MQTT             `toml:"mqtt"`
	Influx        Influx           `toml:"influx"`
	Notifications Notifications    `toml:"notifications"`
	Logging       Logging          `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		// A file-provided board table replaces the defaults rather than merging into them.
		cfg.Boards = nil
		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
		if len(cfg.Boards) == 0 {
			cfg.Boards = defaultBoards()
		}
	}

	if err := cfg.loadEnvFile(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{
		c.Paths.DataDir,
		c.Paths.LogDir,
		c.Paths.ResultDir,
		c.Paths.FailedImageDir,
		c.Paths.CaptureDir,
		filepath.Dir(c.Paths.SocketPath),
	} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// PollInterval returns the control loop tick period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Station.PollIntervalMs) * time.Millisecond
}

// Simulated reports whether the station runs against simulated hardware.
func (c *Config) Simulated() bool {
	return c.Station.Mode == ModeSimulate
}

// Board returns the named board definition.
func (c *Config) Board(name string) (Board, bool) {
	board, ok := c.Boards[strings.TrimSpace(name)]
	return board, ok
}

// BoardNames returns the configured board names in sorted order.
func (c *Config) BoardNames() []string {
	names := make([]string, 0, len(c.Boards))
	for name := range c.Boards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HistoryPath returns the location of the cycle history database.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.DataDir, "history.db")
}

// LockPath returns the location of the single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "linker.lock")
}

// PIDPath returns the location of the daemon pid file.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "linker.pid")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
