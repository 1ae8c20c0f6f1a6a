package decode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"seriallinker/internal/logging"
	"seriallinker/internal/services"
)

// Decode server request types.
const (
	requestHeartbeat = "Heartbeat"
	requestSubmit    = "Submit"
	requestStatus    = "GetAsyncTaskStatus"
	requestCancel    = "CancelAsyncTask"
)

// Task states reported by GetAsyncTaskStatus.
const (
	taskPending    = 0
	taskProcessing = 1
	taskCompleted  = 2
)

// ServerConfig configures the remote decode engine.
type ServerConfig struct {
	Addr     string
	Timeout  time.Duration
	Poll     time.Duration
	Template string
	Share    Share
}

type serverRequest struct {
	RequestType string          `json:"RequestType"`
	Values      map[string]any  `json:"Values"`
	TaskID      json.RawMessage `json:"TaskId,omitempty"`
}

type serverResponse struct {
	TaskID        json.RawMessage `json:"TaskId"`
	GenericResult bool            `json:"GenericResult"`
	State         *int            `json:"State"`
	Results       struct {
		Serials []json.RawMessage `json:"serials"`
	} `json:"Results"`
}

// serverEngine submits images to the decode server and polls for the result.
// Every request uses its own connection, one JSON document each way.
type serverEngine struct {
	cfg    ServerConfig
	dialer net.Dialer
	logger *slog.Logger
}

func newServerEngine(cfg ServerConfig, logger *slog.Logger) *serverEngine {
	if cfg.Poll <= 0 {
		cfg.Poll = 2 * time.Second
	}
	return &serverEngine{cfg: cfg, logger: logging.NewComponentLogger(logger, "decode-server")}
}

func (e *serverEngine) Scan(ctx context.Context, path string) (string, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	local, err := e.cfg.Share.Place(path)
	if err != nil {
		return "", services.Wrap(services.ErrUnavailable, "decode-server", "place image", "", err)
	}
	remote := e.cfg.Share.RemotePath(local)

	hb, err := e.send(ctx, serverRequest{RequestType: requestHeartbeat})
	if err != nil {
		return "", e.classify("heartbeat", err)
	}
	if !hb.GenericResult {
		return "", services.Wrap(services.ErrUnavailable, "decode-server", "heartbeat", "server reported not ready", nil)
	}

	values := map[string]any{"FileName": remote}
	if e.cfg.Template != "" {
		values["TemplatePath"] = e.cfg.Template
	}
	submitted, err := e.send(ctx, serverRequest{RequestType: requestSubmit, Values: values})
	if err != nil {
		return "", e.classify("submit", err)
	}
	taskID := submitted.TaskID
	if len(taskID) == 0 || string(taskID) == "null" {
		return "", services.Wrap(services.ErrExternalTool, "decode-server", "submit", "no task id returned", nil)
	}
	e.logger.Debug("decode task submitted", logging.String("task_id", string(taskID)), logging.String("file", remote))

	ticker := time.NewTicker(e.cfg.Poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.cancelTask(taskID)
			return "", e.classify("poll", ctx.Err())
		case <-ticker.C:
		}
		status, err := e.send(ctx, serverRequest{RequestType: requestStatus, TaskID: taskID})
		if err != nil {
			if ctx.Err() != nil {
				e.cancelTask(taskID)
			}
			return "", e.classify("poll", err)
		}
		if status.State == nil || *status.State != taskCompleted {
			continue
		}
		if len(status.Results.Serials) == 0 {
			return "", ErrNoCode
		}
		return serialText(status.Results.Serials[0]), nil
	}
}

func (e *serverEngine) Close() error { return nil }

func (e *serverEngine) send(ctx context.Context, req serverRequest) (serverResponse, error) {
	if req.Values == nil {
		req.Values = map[string]any{}
	}
	conn, err := e.dialer.DialContext(ctx, "tcp", e.cfg.Addr)
	if err != nil {
		return serverResponse{}, err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return serverResponse{}, fmt.Errorf("write %s: %w", req.RequestType, err)
	}
	var resp serverResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return serverResponse{}, fmt.Errorf("read %s response: %w", req.RequestType, err)
	}
	return resp, nil
}

// cancelTask asks the server to drop a task we stopped waiting for.
func (e *serverEngine) cancelTask(taskID json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := e.send(ctx, serverRequest{RequestType: requestCancel, TaskID: taskID}); err != nil {
		e.logger.Debug("cancel decode task failed", logging.String("task_id", string(taskID)), logging.Error(err))
	}
}

func (e *serverEngine) classify(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return services.Wrap(services.ErrTimeout, "decode-server", op, e.cfg.Addr, err)
	}
	return services.Wrap(services.ErrUnavailable, "decode-server", op, e.cfg.Addr, err)
}

func serialText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
