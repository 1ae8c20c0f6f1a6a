package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStation()
	c.normalizeSensors()
	if err := c.normalizeCapture(); err != nil {
		return err
	}
	if err := c.normalizeDecoder(); err != nil {
		return err
	}
	c.normalizeMES()
	c.normalizeBoards()
	c.normalizeMQTT()
	c.normalizeInflux()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	fields := []struct {
		key   string
		value *string
		def   string
	}{
		{"paths.data_dir", &c.Paths.DataDir, defaultDataDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"paths.result_dir", &c.Paths.ResultDir, defaultResultDir},
		{"paths.failed_image_dir", &c.Paths.FailedImageDir, defaultFailedImageDir},
		{"paths.capture_dir", &c.Paths.CaptureDir, defaultCaptureDir},
		{"paths.socket_path", &c.Paths.SocketPath, defaultSocketPath},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.def
		}
		if *field.value, err = expandPath(strings.TrimSpace(*field.value)); err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
	}
	if strings.TrimSpace(c.Paths.EnvFile) != "" {
		if c.Paths.EnvFile, err = expandPath(strings.TrimSpace(c.Paths.EnvFile)); err != nil {
			return fmt.Errorf("paths.env_file: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeStation() {
	c.Station.Name = strings.TrimSpace(c.Station.Name)
	if c.Station.Name == "" {
		c.Station.Name = defaultStationName
	}
	c.Station.Mode = strings.ToLower(strings.TrimSpace(c.Station.Mode))
	if c.Station.Mode == "" {
		c.Station.Mode = ModeHardware
	}
	if c.Station.PollIntervalMs == 0 {
		c.Station.PollIntervalMs = defaultPollIntervalMs
	}
	c.Station.DefaultBoard = strings.TrimSpace(c.Station.DefaultBoard)
	if c.Station.DefaultBoard == "" {
		c.Station.DefaultBoard = defaultBoardName
	}
}

func (c *Config) normalizeSensors() {
	c.Sensors.Driver = strings.ToLower(strings.TrimSpace(c.Sensors.Driver))
	if c.Sensors.Driver == "" {
		c.Sensors.Driver = SensorDriverGPIO
	}
	if c.Station.Mode == ModeSimulate {
		c.Sensors.Driver = SensorDriverSim
	}
	c.Sensors.GPIORoot = strings.TrimSpace(c.Sensors.GPIORoot)
	if c.Sensors.GPIORoot == "" {
		c.Sensors.GPIORoot = defaultGPIORoot
	}
	c.Sensors.TopicPrefix = strings.Trim(strings.TrimSpace(c.Sensors.TopicPrefix), "/")
	if c.Sensors.TopicPrefix == "" {
		c.Sensors.TopicPrefix = defaultSensorTopicPrefix
	}
	if c.Sensors.StaleAfterMs == 0 {
		c.Sensors.StaleAfterMs = defaultSensorStaleAfterMs
	}
}

func (c *Config) normalizeCapture() error {
	c.Capture.Driver = strings.ToLower(strings.TrimSpace(c.Capture.Driver))
	if c.Capture.Driver == "" {
		c.Capture.Driver = CaptureDriverCommand
	}
	if c.Station.Mode == ModeSimulate {
		c.Capture.Driver = CaptureDriverSim
	}
	if cmd := strings.TrimSpace(c.Capture.Command); cmd != "" && strings.ContainsRune(cmd, filepath.Separator) {
		expanded, err := expandPath(cmd)
		if err != nil {
			return fmt.Errorf("capture.command: %w", err)
		}
		c.Capture.Command = expanded
	}
	if c.Capture.TimeoutSeconds == 0 {
		c.Capture.TimeoutSeconds = defaultCaptureTimeout
	}
	if c.Capture.Attempts == 0 {
		c.Capture.Attempts = defaultCaptureAttempts
	}
	c.Capture.DeviceSubsystem = strings.TrimSpace(c.Capture.DeviceSubsystem)
	c.Capture.DeviceName = strings.TrimSpace(c.Capture.DeviceName)
	return nil
}

func (c *Config) normalizeDecoder() error {
	c.Decoder.Engine = strings.ToLower(strings.TrimSpace(c.Decoder.Engine))
	if c.Decoder.Engine == "" {
		c.Decoder.Engine = DecoderEngineZXing
	}
	c.Decoder.ServerAddr = strings.TrimSpace(c.Decoder.ServerAddr)
	c.Decoder.TemplatePath = strings.TrimSpace(c.Decoder.TemplatePath)
	if c.Decoder.TimeoutSeconds == 0 {
		c.Decoder.TimeoutSeconds = defaultDecoderTimeout
	}
	if c.Decoder.PollIntervalMs == 0 {
		c.Decoder.PollIntervalMs = defaultDecoderPollMs
	}
	if strings.TrimSpace(c.Decoder.ShareMount) != "" {
		mount, err := expandPath(strings.TrimSpace(c.Decoder.ShareMount))
		if err != nil {
			return fmt.Errorf("decoder.share_mount: %w", err)
		}
		c.Decoder.ShareMount = mount
	}
	c.Decoder.ShareUNCRoot = strings.TrimRight(strings.TrimSpace(c.Decoder.ShareUNCRoot), `\`)
	c.Decoder.ShareSubdir = strings.Trim(strings.TrimSpace(c.Decoder.ShareSubdir), "/")
	if c.Decoder.ShareSubdir == "" {
		c.Decoder.ShareSubdir = defaultShareSubdir
	}
	return nil
}

func (c *Config) normalizeMES() {
	c.MES.BaseURL = strings.TrimRight(strings.TrimSpace(c.MES.BaseURL), "/")
	if c.MES.BaseURL == "" {
		c.MES.BaseURL = defaultMESBaseURL
	}
	paths := []struct {
		value *string
		def   string
	}{
		{&c.MES.LinkPath, defaultLinkPath},
		{&c.MES.DepanelPath, defaultDepanelPath},
		{&c.MES.LoginPath, defaultLoginPath},
		{&c.MES.LoginExemptPath, defaultLoginExemptPath},
	}
	for _, p := range paths {
		*p.value = strings.TrimSpace(*p.value)
		if *p.value == "" {
			*p.value = p.def
		}
		if !strings.HasPrefix(*p.value, "/") {
			*p.value = "/" + *p.value
		}
	}
	users := c.MES.ESDExemptUsers[:0]
	for _, user := range c.MES.ESDExemptUsers {
		if trimmed := strings.TrimSpace(user); trimmed != "" {
			users = append(users, trimmed)
		}
	}
	c.MES.ESDExemptUsers = users
	if c.MES.LinkTimeoutSeconds == 0 {
		c.MES.LinkTimeoutSeconds = defaultLinkTimeout
	}
	if c.MES.LoginTimeoutSeconds == 0 {
		c.MES.LoginTimeoutSeconds = defaultLoginTimeout
	}
	if strings.TrimSpace(c.MES.APIToken) == "" {
		if value, ok := os.LookupEnv("LINKER_API_TOKEN"); ok {
			c.MES.APIToken = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeBoards() {
	if len(c.Boards) == 0 {
		c.Boards = defaultBoards()
	}
	normalized := make(map[string]Board, len(c.Boards))
	for name, board := range c.Boards {
		key := strings.TrimSpace(name)
		if key == "" {
			continue
		}
		if board.Sides == 0 {
			board.Sides = 2
		}
		board.Label = strings.TrimSpace(board.Label)
		if board.Label == "" {
			board.Label = key
		}
		normalized[key] = board
	}
	c.Boards = normalized
}

func (c *Config) normalizeMQTT() {
	c.MQTT.Broker = strings.TrimSpace(c.MQTT.Broker)
	c.MQTT.ClientID = strings.TrimSpace(c.MQTT.ClientID)
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = defaultMQTTClientID
	}
	c.MQTT.TopicPrefix = strings.Trim(strings.TrimSpace(c.MQTT.TopicPrefix), "/")
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = defaultMQTTTopicPrefix
	}
	if c.MQTT.Password == "" {
		if value, ok := os.LookupEnv("LINKER_MQTT_PASSWORD"); ok {
			c.MQTT.Password = value
		}
	}
}

func (c *Config) normalizeInflux() {
	c.Influx.URL = strings.TrimRight(strings.TrimSpace(c.Influx.URL), "/")
	if c.Influx.Token == "" {
		if value, ok := os.LookupEnv("LINKER_INFLUX_TOKEN"); ok {
			c.Influx.Token = strings.TrimSpace(value)
		}
	}
	if c.Influx.Bucket == "" {
		c.Influx.Bucket = defaultInfluxBucket
	}
	if c.Influx.BatchSize <= 0 {
		c.Influx.BatchSize = defaultInfluxBatchSize
	}
	if c.Influx.FlushIntervalSeconds <= 0 {
		c.Influx.FlushIntervalSeconds = defaultInfluxFlushInterval
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
