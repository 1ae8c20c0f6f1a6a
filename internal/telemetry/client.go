package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"seriallinker/internal/config"
	"seriallinker/internal/logging"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second
)

var (
	// ErrDisabled is returned by Connect when [influx] is not enabled.
	ErrDisabled = errors.New("influx telemetry disabled")
	// ErrConnectionFailed wraps ping failures during Connect.
	ErrConnectionFailed = errors.New("influx connection failed")
)

// Sink receives station metrics. The station uses Nop when telemetry is off.
type Sink interface {
	CycleCompleted(m CycleMetrics)
	StateChanged(from, to string)
}

// Nop discards metrics.
type Nop struct{}

func (Nop) CycleCompleted(CycleMetrics) {}
func (Nop) StateChanged(string, string) {}

// Client writes metrics through the non-blocking write API.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	station  string
	logger   *slog.Logger

	mu        sync.RWMutex
	connected bool
}

// Connect pings the server and prepares the batched write API.
func Connect(cfg config.Influx, station string, logger *slog.Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	flush := cfg.FlushIntervalSeconds
	if flush <= 0 {
		flush = 10
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flush)*1000),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := &Client{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		station:   station,
		logger:    logging.NewComponentLogger(logger, "telemetry"),
		connected: true,
	}
	go c.drainErrors(c.writeAPI.Errors())
	return c, nil
}

func (c *Client) drainErrors(errs <-chan error) {
	for err := range errs {
		logging.WarnWithContext(c.logger, "influx write failed", "influx_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check influx url, token and bucket"),
			logging.String(logging.FieldImpact, "cycle metrics dropped"),
		)
	}
}

// CycleCompleted queues a cycle point.
func (c *Client) CycleCompleted(m CycleMetrics) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(cyclePoint(c.station, m))
}

// StateChanged queues a state transition point.
func (c *Client) StateChanged(from, to string) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(statePoint(c.station, from, to, time.Now()))
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return errors.New("influx client closed")
	}
	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influx health check failed: %w", err)
	}
	if !healthy {
		return errors.New("influx health check failed: server not healthy")
	}
	return nil
}

// IsConnected reports whether Close has not yet been called.
func (c *Client) IsConnected() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Close flushes pending points and shuts the client down.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
