package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStation(); err != nil {
		return err
	}
	if err := c.validateBoards(); err != nil {
		return err
	}
	if err := c.validateSensors(); err != nil {
		return err
	}
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateDecoder(); err != nil {
		return err
	}
	if err := c.validateMES(); err != nil {
		return err
	}
	if err := c.validateMQTT(); err != nil {
		return err
	}
	if err := c.validateInflux(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateStation() error {
	switch c.Station.Mode {
	case ModeHardware, ModeSimulate:
	default:
		return fmt.Errorf("station.mode must be %q or %q", ModeHardware, ModeSimulate)
	}
	if c.Station.PollIntervalMs < 20 || c.Station.PollIntervalMs > 1000 {
		return errors.New("station.poll_interval_ms must be between 20 and 1000")
	}
	return nil
}

func (c *Config) validateBoards() error {
	if len(c.Boards) == 0 {
		return errors.New("boards must define at least one board type")
	}
	for name, board := range c.Boards {
		if board.Sides != 1 && board.Sides != 2 {
			return fmt.Errorf("boards.%s.sides must be 1 or 2", name)
		}
	}
	if _, ok := c.Boards[c.Station.DefaultBoard]; !ok {
		return fmt.Errorf("station.default_board %q is not defined under [boards]", c.Station.DefaultBoard)
	}
	return nil
}

func (c *Config) validateSensors() error {
	switch c.Sensors.Driver {
	case SensorDriverSim:
		return nil
	case SensorDriverGPIO:
		pins := map[int]string{}
		for key, pin := range map[string]int{
			"sensors.board_pin":   c.Sensors.BoardPin,
			"sensors.start_pin":   c.Sensors.StartPin,
			"sensors.enable_pin":  c.Sensors.EnablePin,
			"sensors.curtain_pin": c.Sensors.CurtainPin,
		} {
			if pin < 0 {
				return fmt.Errorf("%s must be non-negative", key)
			}
			if other, dup := pins[pin]; dup {
				return fmt.Errorf("%s and %s share pin %d", key, other, pin)
			}
			pins[pin] = key
		}
		return nil
	case SensorDriverMQTT:
		if !c.MQTT.Enabled {
			return errors.New("sensors.driver = \"mqtt\" requires mqtt.enabled = true")
		}
		if c.Sensors.StaleAfterMs < 0 {
			return errors.New("sensors.stale_after_ms must be non-negative")
		}
		return nil
	default:
		return fmt.Errorf("sensors.driver must be one of %q, %q, %q", SensorDriverGPIO, SensorDriverMQTT, SensorDriverSim)
	}
}

func (c *Config) validateCapture() error {
	switch c.Capture.Driver {
	case CaptureDriverSim:
	case CaptureDriverCommand:
		if strings.TrimSpace(c.Capture.Command) == "" {
			return errors.New("capture.command must be set when capture.driver is \"command\"")
		}
	default:
		return fmt.Errorf("capture.driver must be %q or %q", CaptureDriverCommand, CaptureDriverSim)
	}
	if c.Capture.TimeoutSeconds <= 0 {
		return errors.New("capture.timeout_seconds must be positive")
	}
	if c.Capture.Attempts <= 0 {
		return errors.New("capture.attempts must be positive")
	}
	if c.Capture.MinImageBytes < 0 {
		return errors.New("capture.min_image_bytes must be non-negative")
	}
	if c.Capture.SimDelayMs < 0 {
		return errors.New("capture.sim_delay_ms must be non-negative")
	}
	return nil
}

func (c *Config) validateDecoder() error {
	switch c.Decoder.Engine {
	case DecoderEngineZXing, DecoderEngineTesseract:
	case DecoderEngineServer:
		if c.Decoder.ServerAddr == "" {
			return errors.New("decoder.server_addr must be set when decoder.engine is \"server\"")
		}
		if c.Decoder.ShareMount != "" && c.Decoder.ShareUNCRoot == "" {
			return errors.New("decoder.share_unc_root must be set when decoder.share_mount is set")
		}
	default:
		return fmt.Errorf("decoder.engine must be one of %q, %q, %q", DecoderEngineZXing, DecoderEngineServer, DecoderEngineTesseract)
	}
	if c.Decoder.TimeoutSeconds <= 0 {
		return errors.New("decoder.timeout_seconds must be positive")
	}
	if c.Decoder.PollIntervalMs <= 0 {
		return errors.New("decoder.poll_interval_ms must be positive")
	}
	return nil
}

func (c *Config) validateMES() error {
	parsed, err := url.Parse(c.MES.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("mes.base_url %q must be an absolute URL", c.MES.BaseURL)
	}
	if c.MES.LinkTimeoutSeconds <= 0 {
		return errors.New("mes.link_timeout_seconds must be positive")
	}
	if c.MES.LoginTimeoutSeconds <= 0 {
		return errors.New("mes.login_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateMQTT() error {
	if !c.MQTT.Enabled {
		return nil
	}
	if c.MQTT.Broker == "" {
		return errors.New("mqtt.broker must be set when mqtt.enabled is true")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return errors.New("mqtt.qos must be 0, 1, or 2")
	}
	return nil
}

func (c *Config) validateInflux() error {
	if !c.Influx.Enabled {
		return nil
	}
	if c.Influx.URL == "" {
		return errors.New("influx.url must be set when influx.enabled is true")
	}
	if c.Influx.Org == "" {
		return errors.New("influx.org must be set when influx.enabled is true")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout < 0 {
		return errors.New("notifications.request_timeout must be non-negative")
	}
	if c.Notifications.DedupWindowSeconds < 0 {
		return errors.New("notifications.dedup_window_seconds must be non-negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be \"console\" or \"json\"", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn, or error", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be non-negative")
	}
	return nil
}
