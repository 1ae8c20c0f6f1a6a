package mqtt

import (
	"encoding/json"
	"errors"
	"testing"

	"seriallinker/internal/config"
)

func TestTopics(t *testing.T) {
	topics := Topics{Prefix: "/plant/"}
	if got := topics.Display("line_1"); got != "plant/line_1/display" {
		t.Fatalf("Display = %q", got)
	}
	if got := (Topics{}).Status("line_1"); got != "seriallinker/line_1/status" {
		t.Fatalf("Status with default prefix = %q", got)
	}
	if got := topics.Result("line_1"); got != "plant/line_1/result" {
		t.Fatalf("Result = %q", got)
	}
	if got := topics.Display("Line 2/A"); got != "plant/line_2_a/display" {
		t.Fatalf("Display with unsafe station name = %q", got)
	}
}

func TestBrokerURL(t *testing.T) {
	if got := brokerURL("10.0.0.5:1883"); got != "tcp://10.0.0.5:1883" {
		t.Fatalf("brokerURL without scheme = %q", got)
	}
	if got := brokerURL("ssl://broker:8883"); got != "ssl://broker:8883" {
		t.Fatalf("brokerURL with scheme = %q", got)
	}
}

func TestBuildClientOptions(t *testing.T) {
	opts := buildClientOptions(config.MQTT{Broker: "broker:1883", ClientID: "linker-1", Username: "cell", Password: "pw"})
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://broker:1883" {
		t.Fatalf("unexpected servers: %v", opts.Servers)
	}
	if opts.ClientID != "linker-1" || opts.Username != "cell" {
		t.Fatalf("unexpected identity: %q %q", opts.ClientID, opts.Username)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Fatal("expected auto-reconnect with clean session")
	}
}

func TestBuildStatusPayload(t *testing.T) {
	var payload statusPayload
	if err := json.Unmarshal(buildStatusPayload("offline", "linker-1", "graceful_shutdown"), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Status != "offline" || payload.ClientID != "linker-1" || payload.Reason != "graceful_shutdown" || payload.Timestamp == "" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestSubscribeValidatesBeforeConnecting(t *testing.T) {
	c := &Client{subscriptions: map[string]subscription{}}
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 0, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Fatalf("expected ErrInvalidTopic, got %v", err)
	}
	if err := c.Subscribe("a/b", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Fatalf("expected ErrInvalidQoS, got %v", err)
	}
	if err := c.Subscribe("a/b", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Fatalf("expected ErrSubscribeFailed, got %v", err)
	}
	if err := c.Subscribe("a/b", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := c.Publish("a/b", nil, false); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected from Publish, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close on unconnected client: %v", err)
	}
}
