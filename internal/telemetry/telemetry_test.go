package telemetry

import (
	"errors"
	"testing"
	"time"

	"seriallinker/internal/config"
)

func TestConnectDisabled(t *testing.T) {
	if _, err := Connect(config.Influx{}, "line_1", nil); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestCyclePoint(t *testing.T) {
	finished := time.Date(2026, 1, 8, 10, 0, 0, 0, time.UTC)
	p := cyclePoint("line_1", CycleMetrics{
		Board:       "pcb_273",
		DoubleSided: true,
		Success:     false,
		LeftOK:      true,
		Capture:     2 * time.Second,
		Decode:      1500 * time.Millisecond,
		Total:       4 * time.Second,
		Finished:    finished,
	})
	if p.Name() != measurementCycle || !p.Time().Equal(finished) {
		t.Fatalf("unexpected point %s at %v", p.Name(), p.Time())
	}
	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["station"] != "line_1" || tags["board"] != "pcb_273" || tags["result"] != "fail" || tags["sides"] != "dual" {
		t.Fatalf("unexpected tags %v", tags)
	}
	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["decode_ms"] != int64(1500) || fields["left_ok"] != true || fields["right_ok"] != false {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestNilClientIsDisconnected(t *testing.T) {
	var c *Client
	if c.IsConnected() {
		t.Fatal("nil client must report disconnected")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close on nil client: %v", err)
	}
	var sink Sink = Nop{}
	sink.CycleCompleted(CycleMetrics{})
	sink.StateChanged("WaitBoard", "WaitStart")
}
