package station

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"seriallinker/internal/logging"
	"seriallinker/internal/mqtt"
)

const displayQueueSize = 32

// Publisher is the slice of the MQTT client the display sink needs.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
}

type displayMessage struct {
	topic    string
	payload  []byte
	retained bool
}

// MQTTDisplay publishes display changes (retained) and cycle results to the
// broker from its own goroutine so a slow broker never stalls the poll loop.
type MQTTDisplay struct {
	pub          Publisher
	displayTopic string
	resultTopic  string
	logger       *slog.Logger
	now          func() time.Time
	queue        chan displayMessage
}

// NewMQTTDisplay builds a sink for the station's display and result topics.
func NewMQTTDisplay(pub Publisher, topics mqtt.Topics, station string, logger *slog.Logger) *MQTTDisplay {
	return &MQTTDisplay{
		pub:          pub,
		displayTopic: topics.Display(station),
		resultTopic:  topics.Result(station),
		logger:       logging.NewComponentLogger(logger, "display"),
		now:          time.Now,
		queue:        make(chan displayMessage, displayQueueSize),
	}
}

// Run publishes queued messages until ctx is cancelled.
func (m *MQTTDisplay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.queue:
			if err := m.pub.Publish(msg.topic, msg.payload, msg.retained); err != nil {
				logging.WarnWithContext(m.logger, "display publish failed", "display_publish_failed",
					logging.String("topic", msg.topic),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check the MQTT broker connection"),
					logging.String(logging.FieldImpact, "tower light and remote displays may be stale"),
				)
			}
		}
	}
}

type displayPayload struct {
	Display
	Timestamp string `json:"timestamp"`
}

// ShowDisplay queues the display as a retained message.
func (m *MQTTDisplay) ShowDisplay(d Display) {
	m.enqueue(m.displayTopic, displayPayload{Display: d, Timestamp: m.now().UTC().Format(time.RFC3339)}, true)
}

// CycleFinished queues the cycle summary.
func (m *MQTTDisplay) CycleFinished(s CycleSummary) {
	m.enqueue(m.resultTopic, s, false)
}

func (m *MQTTDisplay) enqueue(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		m.logger.Debug("display payload encode failed", logging.Error(err))
		return
	}
	select {
	case m.queue <- displayMessage{topic: topic, payload: payload, retained: retained}:
	default:
		m.logger.Debug("display queue full; message dropped", logging.String("topic", topic))
	}
}
