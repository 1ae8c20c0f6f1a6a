package sensors

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"seriallinker/internal/logging"
)

// Input names used as the last MQTT topic segment.
const (
	InputBoard   = "board"
	InputStart   = "start"
	InputEnable  = "enable"
	InputCurtain = "curtain"
)

// MQTTConfig describes the input gateway topics.
type MQTTConfig struct {
	TopicPrefix string
	QoS         byte
	StaleAfter  time.Duration
}

type level struct {
	value   bool
	updated time.Time
}

// MQTT tracks input levels published by a remote IO gateway under
// <prefix>/<input>. Payloads are logical levels ("1"/"0", "true"/"false", "on"/"off").
type MQTT struct {
	cfg    MQTTConfig
	logger *slog.Logger
	now    func() time.Time
	start  Edge

	mu     sync.Mutex
	levels map[string]level
}

// NewMQTT subscribes to the input topics.
func NewMQTT(sub Subscriber, cfg MQTTConfig, logger *slog.Logger) (*MQTT, error) {
	m := &MQTT{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "sensors"),
		now:    time.Now,
		levels: make(map[string]level, 4),
	}
	topic := strings.Trim(cfg.TopicPrefix, "/") + "/+"
	if err := sub.Subscribe(topic, cfg.QoS, m.handle); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return m, nil
}

func (m *MQTT) handle(topic string, payload []byte) error {
	input := topic[strings.LastIndex(topic, "/")+1:]
	switch input {
	case InputBoard, InputStart, InputEnable, InputCurtain:
	default:
		return nil
	}
	value, err := parseLevel(string(payload))
	if err != nil {
		return fmt.Errorf("input %s: %w", input, err)
	}
	m.mu.Lock()
	m.levels[input] = level{value: value, updated: m.now()}
	m.mu.Unlock()
	if input == InputStart {
		m.start.Observe(value)
	}
	return nil
}

func (m *MQTT) BoardPresent() bool { return m.read(InputBoard) }

func (m *MQTT) StartPressed() bool {
	pressed := m.start.Take()
	if pressed && !m.fresh(InputStart) {
		return false
	}
	return pressed
}

func (m *MQTT) Enabled() bool { return m.read(InputEnable) }

func (m *MQTT) CurtainClear() bool { return m.read(InputCurtain) }

// Health reports stale or missing inputs.
func (m *MQTT) Health() Health {
	var missing []string
	for _, input := range []string{InputBoard, InputEnable, InputCurtain} {
		if !m.fresh(input) {
			missing = append(missing, input)
		}
	}
	if len(missing) > 0 {
		return Health{Name: "mqtt inputs", Ready: false, Detail: "stale: " + strings.Join(missing, ", ")}
	}
	return Health{Name: "mqtt inputs", Ready: true}
}

func (m *MQTT) read(input string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	lvl, ok := m.levels[input]
	if !ok || m.stale(lvl) {
		return false
	}
	return lvl.value
}

func (m *MQTT) fresh(input string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	lvl, ok := m.levels[input]
	return ok && !m.stale(lvl)
}

func (m *MQTT) stale(lvl level) bool {
	return m.cfg.StaleAfter > 0 && m.now().Sub(lvl.updated) > m.cfg.StaleAfter
}

func parseLevel(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "high", "active":
		return true, nil
	case "off", "low", "inactive":
		return false, nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("unrecognized level %q", raw)
	}
	return value, nil
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
