package config

// Station modes.
const (
	ModeHardware = "hardware"
	ModeSimulate = "simulate"
)

// Sensor drivers.
const (
	SensorDriverGPIO = "gpio"
	SensorDriverMQTT = "mqtt"
	SensorDriverSim  = "sim"
)

// Capture drivers.
const (
	CaptureDriverCommand = "command"
	CaptureDriverSim     = "sim"
)

// Decoder engines.
const (
	DecoderEngineZXing     = "zxing"
	DecoderEngineServer    = "server"
	DecoderEngineTesseract = "tesseract"
)

const (
	defaultConfigPath          = "~/.config/seriallinker/config.toml"
	projectConfigName          = "seriallinker.toml"
	defaultDataDir             = "~/.local/share/seriallinker"
	defaultLogDir              = "~/.local/share/seriallinker/logs"
	defaultResultDir           = "~/.local/share/seriallinker/results"
	defaultFailedImageDir      = "~/.local/share/seriallinker/failed_links"
	defaultCaptureDir          = "~/.local/share/seriallinker/captures"
	defaultSocketPath          = "~/.local/share/seriallinker/linker.sock"
	defaultStationName         = "linker_line_1"
	defaultPollIntervalMs      = 100
	defaultBoardName           = "pcb_273"
	defaultGPIORoot            = "/sys/class/gpio"
	defaultSensorTopicPrefix   = "seriallinker/inputs"
	defaultSensorStaleAfterMs  = 2000
	defaultCaptureCommand      = "linker-capture"
	defaultCaptureTimeout      = 60
	defaultCaptureAttempts     = 3
	defaultMinImageBytes       = 500 * 1024
	defaultSimDelayMs          = 1500
	defaultDeviceSubsystem     = "video4linux"
	defaultDecoderTimeout      = 30
	defaultDecoderPollMs       = 2000
	defaultShareSubdir         = "linker_line_1/image"
	defaultMESBaseURL          = "https://mes.example.internal"
	defaultLinkPath            = "/api/v1/sernums/link_and_depanel"
	defaultDepanelPath         = "/api/v1/sernums/depanel"
	defaultLoginPath           = "/api/v1/users/login_with_esd_check"
	defaultLoginExemptPath     = "/api/v1/users/login"
	defaultLinkTimeout         = 10
	defaultLoginTimeout        = 5
	defaultMQTTClientID        = "seriallinker"
	defaultMQTTTopicPrefix     = "seriallinker"
	defaultInfluxBucket        = "seriallinker"
	defaultInfluxBatchSize     = 50
	defaultInfluxFlushInterval = 10
	defaultNotifyTimeout       = 10
	defaultNotifyDedupWindow   = 300
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:        defaultDataDir,
			LogDir:         defaultLogDir,
			ResultDir:      defaultResultDir,
			FailedImageDir: defaultFailedImageDir,
			CaptureDir:     defaultCaptureDir,
			SocketPath:     defaultSocketPath,
		},
		Station: Station{
			Name:           defaultStationName,
			Mode:           ModeHardware,
			PollIntervalMs: defaultPollIntervalMs,
			DefaultBoard:   defaultBoardName,
		},
		Sensors: Sensors{
			Driver:       SensorDriverGPIO,
			ActiveLow:    true,
			GPIORoot:     defaultGPIORoot,
			BoardPin:     1,
			StartPin:     2,
			EnablePin:    3,
			CurtainPin:   4,
			TopicPrefix:  defaultSensorTopicPrefix,
			StaleAfterMs: defaultSensorStaleAfterMs,
		},
		Capture: Capture{
			Driver:          CaptureDriverCommand,
			Command:         defaultCaptureCommand,
			TimeoutSeconds:  defaultCaptureTimeout,
			Attempts:        defaultCaptureAttempts,
			MinImageBytes:   defaultMinImageBytes,
			SimDelayMs:      defaultSimDelayMs,
			DeviceSubsystem: defaultDeviceSubsystem,
		},
		Decoder: Decoder{
			Engine:         DecoderEngineZXing,
			TimeoutSeconds: defaultDecoderTimeout,
			PollIntervalMs: defaultDecoderPollMs,
			ShareSubdir:    defaultShareSubdir,
			TryHarder:      true,
		},
		MES: MES{
			BaseURL:             defaultMESBaseURL,
			LinkPath:            defaultLinkPath,
			DepanelPath:         defaultDepanelPath,
			LoginPath:           defaultLoginPath,
			LoginExemptPath:     defaultLoginExemptPath,
			LinkTimeoutSeconds:  defaultLinkTimeout,
			LoginTimeoutSeconds: defaultLoginTimeout,
		},
		Boards: defaultBoards(),
		MQTT: MQTT{
			ClientID:    defaultMQTTClientID,
			TopicPrefix: defaultMQTTTopicPrefix,
			QoS:         1,
		},
		Influx: Influx{
			Bucket:               defaultInfluxBucket,
			BatchSize:            defaultInfluxBatchSize,
			FlushIntervalSeconds: defaultInfluxFlushInterval,
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNotifyTimeout,
			CycleFailures:      true,
			SensorFaults:       true,
			DedupWindowSeconds: defaultNotifyDedupWindow,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

func defaultBoards() map[string]Board {
	return map[string]Board{
		"pcb_273": {Label: "PCB 273", Sides: 2},
		"pcb_274": {Label: "PCB 274", Sides: 2},
	}
}
