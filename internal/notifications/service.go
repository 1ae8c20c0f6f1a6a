package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"seriallinker/internal/config"
)

const userAgent = "SerialLinker/0.1.0"

// Service defines the notification surface used by the station and daemon.
type Service interface {
	NotifyStationStarted(ctx context.Context, station, mode string) error
	NotifyStationStopped(ctx context.Context, station string) error
	NotifyCycleFailed(ctx context.Context, station, board, message string) error
	NotifySensorFault(ctx context.Context, station, input, detail string) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	n := cfg.Notifications
	topic := strings.TrimSpace(n.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(n.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:      topic,
		client:        &http.Client{Timeout: timeout},
		cycleFailures: n.CycleFailures,
		sensorFaults:  n.SensorFaults,
		dedupWindow:   time.Duration(n.DedupWindowSeconds) * time.Second,
		lastSent:      map[string]time.Time{},
		now:           time.Now,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
	dedupKey string
}

type ntfyService struct {
	endpoint      string
	client        *http.Client
	cycleFailures bool
	sensorFaults  bool
	dedupWindow   time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
	now      func() time.Time
}

func (n *ntfyService) NotifyStationStarted(ctx context.Context, station, mode string) error {
	return n.send(ctx, payload{
		title:   "Linker - Station Online",
		message: fmt.Sprintf("Station %s started (%s mode)", strings.TrimSpace(station), strings.TrimSpace(mode)),
		tags:    []string{"linker", "station", "started"},
	})
}

func (n *ntfyService) NotifyStationStopped(ctx context.Context, station string) error {
	return n.send(ctx, payload{
		title:   "Linker - Station Offline",
		message: fmt.Sprintf("Station %s stopped", strings.TrimSpace(station)),
		tags:    []string{"linker", "station", "stopped"},
	})
}

func (n *ntfyService) NotifyCycleFailed(ctx context.Context, station, board, message string) error {
	if !n.cycleFailures {
		return nil
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = "unknown reason"
	}
	return n.send(ctx, payload{
		title:    "Linker - Link Failed",
		message:  fmt.Sprintf("%s: %s failed: %s", strings.TrimSpace(station), strings.TrimSpace(board), message),
		tags:     []string{"linker", "cycle", "failed"},
		dedupKey: "cycle:" + board + ":" + message,
	})
}

func (n *ntfyService) NotifySensorFault(ctx context.Context, station, input, detail string) error {
	if !n.sensorFaults {
		return nil
	}
	return n.send(ctx, payload{
		title:    "Linker - Sensor Fault",
		message:  fmt.Sprintf("%s: input %s unreadable: %s", strings.TrimSpace(station), strings.TrimSpace(input), strings.TrimSpace(detail)),
		tags:     []string{"linker", "sensor", "fault"},
		priority: "high",
		dedupKey: "sensor:" + input,
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	return n.send(ctx, payload{
		title:    "Linker - Error",
		message:  builder.String(),
		tags:     []string{"linker", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Linker - Test",
		message:  "Notification system test",
		tags:     []string{"linker", "test"},
		priority: "low",
	})
}

// suppressed records key as sent and reports whether it was already sent
// within the dedup window.
func (n *ntfyService) suppressed(key string) bool {
	if key == "" || n.dedupWindow <= 0 {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	if last, ok := n.lastSent[key]; ok && now.Sub(last) < n.dedupWindow {
		return true
	}
	n.lastSent[key] = now
	return false
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}
	if n.suppressed(data.dedupKey) {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyStationStarted(context.Context, string, string) error      { return nil }
func (noopService) NotifyStationStopped(context.Context, string) error              { return nil }
func (noopService) NotifyCycleFailed(context.Context, string, string, string) error { return nil }
func (noopService) NotifySensorFault(context.Context, string, string, string) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error                { return nil }
func (noopService) TestNotification(context.Context) error                          { return nil }
