package mes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"seriallinker/internal/config"
	"seriallinker/internal/logging"
	"seriallinker/internal/services"
)

// Messages synthesized locally rather than taken from a response body.
const (
	MsgTimeout         = "Request timed out"
	MsgInvalidResponse = "Invalid response from server"
	MsgNoCode          = "No code decoded"
)

const maxBodyBytes = 1 << 20

// HTTPDoer describes the HTTP client used by the MES client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Outcome is the normalized result of a link or depanel call.
type Outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Linker is the contract the work cycle depends on.
type Linker interface {
	LinkPair(ctx context.Context, operatorID, left, right string) Outcome
	LinkSingle(ctx context.Context, operatorID, code string) Outcome
}

// Client calls the MES HTTP API.
type Client struct {
	baseURL      string
	linkPath     string
	depanelPath  string
	loginPath    string
	exemptPath   string
	exemptUsers  []string
	token        string
	linkTimeout  time.Duration
	loginTimeout time.Duration
	client       HTTPDoer
	logger       *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient injects a custom HTTP client (primarily for tests).
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.client = doer
		}
	}
}

// NewClient builds a client from the [mes] section.
func NewClient(cfg config.MES, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		linkPath:     cfg.LinkPath,
		depanelPath:  cfg.DepanelPath,
		loginPath:    cfg.LoginPath,
		exemptPath:   cfg.LoginExemptPath,
		exemptUsers:  cfg.ESDExemptUsers,
		token:        strings.TrimSpace(cfg.APIToken),
		linkTimeout:  time.Duration(cfg.LinkTimeoutSeconds) * time.Second,
		loginTimeout: time.Duration(cfg.LoginTimeoutSeconds) * time.Second,
		client:       http.DefaultClient,
		logger:       logging.NewComponentLogger(logger, "mes"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type linkRequest struct {
	OperatorID string `json:"op_id"`
	SideA      string `json:"sernum_sidea"`
	SideB      string `json:"sernum_sideb"`
}

type depanelRequest struct {
	OperatorID string `json:"op_id"`
	Serial     string `json:"sernum"`
}

// LinkPair links the two sides of a dual-sided board and depanels it.
func (c *Client) LinkPair(ctx context.Context, operatorID, left, right string) Outcome {
	return c.post(ctx, c.linkPath, linkRequest{OperatorID: operatorID, SideA: left, SideB: right}, linkVocabulary)
}

// LinkSingle depanels a single-sided board.
func (c *Client) LinkSingle(ctx context.Context, operatorID, code string) Outcome {
	return c.post(ctx, c.depanelPath, depanelRequest{OperatorID: operatorID, Serial: code}, depanelVocabulary)
}

func (c *Client) post(ctx context.Context, path string, payload any, vocab vocabulary) Outcome {
	logger := logging.WithContext(ctx, c.logger)
	start := time.Now()
	status, body, err := c.do(ctx, path, c.linkTimeout, payload)
	if err != nil {
		outcome := Outcome{Success: false, Message: transportMessage(err)}
		logging.WarnWithContext(logger, "mes request failed", "mes_request_failed",
			logging.String("endpoint", path),
			logging.Error(err),
			logging.Duration("elapsed", time.Since(start)),
			logging.String(logging.FieldErrorHint, "check network connectivity to the MES host"),
			logging.String(logging.FieldImpact, "cycle recorded as failed"),
		)
		return outcome
	}
	outcome := interpret(status, body, vocab)
	logger.Info("mes response",
		logging.String("endpoint", path),
		logging.Int("status", status),
		logging.Bool("success", outcome.Success),
		logging.String("message", outcome.Message),
		logging.Duration("elapsed", time.Since(start)),
	)
	return outcome
}

func (c *Client) do(ctx context.Context, path string, timeout time.Duration, payload any) (int, []byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, classify(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, classify(err)
	}
	return resp.StatusCode, body, nil
}

func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return services.Wrap(services.ErrTimeout, "mes", "request", "", err)
	}
	return services.Wrap(services.ErrUnavailable, "mes", "request", "", err)
}

func transportMessage(err error) string {
	if errors.Is(err, services.ErrTimeout) {
		return MsgTimeout
	}
	return services.OperatorMessage(err)
}

func (c *Client) loginURLPath(username string) string {
	if c.exemptPath != "" && slices.Contains(c.exemptUsers, username) {
		return c.exemptPath
	}
	return c.loginPath
}
