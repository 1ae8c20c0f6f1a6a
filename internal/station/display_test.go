package station

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"seriallinker/internal/mqtt"
)

type published struct {
	topic    string
	payload  []byte
	retained bool
}

type fakePublisher struct {
	msgs chan published
}

func (p *fakePublisher) Publish(topic string, payload []byte, retained bool) error {
	p.msgs <- published{topic: topic, payload: payload, retained: retained}
	return nil
}

func TestMQTTDisplayPublishes(t *testing.T) {
	pub := &fakePublisher{msgs: make(chan published, 4)}
	sink := NewMQTTDisplay(pub, mqtt.Topics{Prefix: "plant"}, "line_1", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx)

	sink.ShowDisplay(DisplayFor(StateFail, "No code decoded"))
	sink.CycleFinished(CycleSummary{ID: "c1", Board: "pcb_273", Message: "No code decoded"})

	msg := receive(t, pub.msgs)
	if msg.topic != "plant/line_1/display" || !msg.retained {
		t.Fatalf("unexpected display message %+v", msg)
	}
	var d displayPayload
	if err := json.Unmarshal(msg.payload, &d); err != nil {
		t.Fatalf("decode display: %v", err)
	}
	if d.State != StateFail || d.Text != "LINKING FAILED" || d.Color != ColorFail || d.Detail != "No code decoded" || d.Timestamp == "" {
		t.Fatalf("unexpected display payload %+v", d)
	}

	msg = receive(t, pub.msgs)
	if msg.topic != "plant/line_1/result" || msg.retained {
		t.Fatalf("unexpected result message %+v", msg)
	}
	var s CycleSummary
	if err := json.Unmarshal(msg.payload, &s); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if s.ID != "c1" || s.Board != "pcb_273" {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestMQTTDisplayDropsWhenFull(t *testing.T) {
	pub := &fakePublisher{msgs: make(chan published, 1)}
	sink := NewMQTTDisplay(pub, mqtt.Topics{}, "line_1", nil)
	for range displayQueueSize + 5 {
		sink.ShowDisplay(DisplayFor(StateWaitBoard, ""))
	}
	if got := len(sink.queue); got != displayQueueSize {
		t.Fatalf("queue length = %d, want %d", got, displayQueueSize)
	}
}

func receive(t *testing.T, ch <-chan published) published {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for publish")
		return published{}
	}
}
