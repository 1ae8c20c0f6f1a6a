package sensors

import (
	"fmt"
	"log/slog"
	"sync"

	"seriallinker/internal/config"
)

// Snapshot is one read of all station inputs.
type Snapshot struct {
	BoardPresent bool `json:"board_present"`
	StartPressed bool `json:"start_pressed"`
	Enabled      bool `json:"enabled"`
	CurtainClear bool `json:"curtain_clear"`
}

// Ready reports whether the safety interlocks allow a cycle to start.
func (s Snapshot) Ready() bool {
	return s.StartPressed && s.Enabled && s.CurtainClear
}

// Port reads the station inputs. Implementations must not block and must
// report false for any input they cannot read.
type Port interface {
	BoardPresent() bool
	// StartPressed reports a new press since the previous call.
	StartPressed() bool
	Enabled() bool
	CurtainClear() bool
}

// Health describes whether an input source is currently trustworthy.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// HealthReporter is implemented by ports that can tell when their source is degraded.
type HealthReporter interface {
	Health() Health
}

// Read samples every input once. The start edge is consumed by this call.
func Read(p Port) Snapshot {
	return Snapshot{
		BoardPresent: p.BoardPresent(),
		StartPressed: p.StartPressed(),
		Enabled:      p.Enabled(),
		CurtainClear: p.CurtainClear(),
	}
}

// Edge converts a level signal into one-shot rising-edge events.
type Edge struct {
	mu      sync.Mutex
	last    bool
	pending bool
}

// Observe records the current level and latches a pending event on a rising edge.
func (e *Edge) Observe(level bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if level && !e.last {
		e.pending = true
	}
	e.last = level
}

// Take returns and clears the pending event.
func (e *Edge) Take() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.pending
	e.pending = false
	return v
}

// Reset drops the pending event and the remembered level.
func (e *Edge) Reset() {
	e.mu.Lock()
	e.last = false
	e.pending = false
	e.mu.Unlock()
}

// Subscriber is the slice of the MQTT client the MQTT port needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
}

// New builds the port selected by cfg.Sensors.Driver. The subscriber is only
// used by the MQTT driver and may be nil otherwise.
func New(cfg *config.Config, sub Subscriber, logger *slog.Logger) (Port, error) {
	switch cfg.Sensors.Driver {
	case config.SensorDriverSim:
		return NewSimulated(), nil
	case config.SensorDriverGPIO:
		return NewGPIO(GPIOConfig{
			Root:       cfg.Sensors.GPIORoot,
			ActiveLow:  cfg.Sensors.ActiveLow,
			BoardPin:   cfg.Sensors.BoardPin,
			StartPin:   cfg.Sensors.StartPin,
			EnablePin:  cfg.Sensors.EnablePin,
			CurtainPin: cfg.Sensors.CurtainPin,
		}, logger), nil
	case config.SensorDriverMQTT:
		if sub == nil {
			return nil, fmt.Errorf("sensors: mqtt driver requires a connected broker client")
		}
		return NewMQTT(sub, MQTTConfig{
			TopicPrefix: cfg.Sensors.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS),
			StaleAfter:  msDuration(cfg.Sensors.StaleAfterMs),
		}, logger)
	default:
		return nil, fmt.Errorf("sensors: unsupported driver %q", cfg.Sensors.Driver)
	}
}
