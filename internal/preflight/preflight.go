package preflight

import (
	"context"

	"seriallinker/internal/config"
)

// minFreeBytes is the free space required on the result and backup volumes.
const minFreeBytes = 512 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Result directory", cfg.Paths.ResultDir),
		CheckFreeSpace("Result volume", cfg.Paths.ResultDir, minFreeBytes),
		CheckDirectoryAccess("Failed image directory", cfg.Paths.FailedImageDir),
		CheckFreeSpace("Failed image volume", cfg.Paths.FailedImageDir, minFreeBytes),
		CheckDirectoryAccess("Capture directory", cfg.Paths.CaptureDir),
	}

	if !cfg.Simulated() {
		if cfg.Sensors.Driver == config.SensorDriverGPIO {
			results = append(results, CheckGPIOInputs(cfg.Sensors))
		}
		if cfg.Capture.Driver == config.CaptureDriverCommand {
			results = append(results, CheckBinary("Capture helper", cfg.Capture.Command))
		}
	}

	results = append(results, CheckEndpoint(ctx, "MES", cfg.MES.BaseURL))

	if cfg.Decoder.Engine == config.DecoderEngineServer {
		results = append(results, CheckTCP(ctx, "Decode server", cfg.Decoder.ServerAddr))
		if cfg.Decoder.ShareMount != "" {
			results = append(results, CheckDirectoryAccess("Decode share", cfg.Decoder.ShareMount))
		}
	}
	if cfg.MQTT.Enabled {
		results = append(results, CheckEndpoint(ctx, "MQTT broker", cfg.MQTT.Broker))
	}
	if cfg.Influx.Enabled {
		results = append(results, CheckEndpoint(ctx, "InfluxDB", cfg.Influx.URL))
	}
	return results
}

// Failed returns the subset of results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
