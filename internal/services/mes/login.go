package mes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"seriallinker/internal/logging"
	"seriallinker/internal/services"
	"seriallinker/internal/textutil"
)

// ErrRejected reports that the login service refused the credentials.
var ErrRejected = errors.New("login rejected")

// Operator is a verified operator identity.
type Operator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Verified bool            `json:"verified"`
	ID       json.RawMessage `json:"id"`
	Name     string          `json:"name"`
	Reason   string          `json:"reason"`
}

// Login verifies credentials. A refusal returns an error wrapping ErrRejected
// whose text carries the service's reason.
func (c *Client) Login(ctx context.Context, username, password string) (Operator, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Operator{}, fmt.Errorf("%w: username and password required", ErrRejected)
	}
	path := c.loginURLPath(username)
	logger := logging.WithContext(ctx, c.logger)

	status, body, err := c.do(ctx, path, c.loginTimeout, loginRequest{Username: username, Password: password})
	if err != nil {
		return Operator{}, err
	}
	if status >= http.StatusBadRequest {
		return Operator{}, services.Wrap(services.ErrUnavailable, "mes", "login", fmt.Sprintf("HTTP %d", status), nil)
	}
	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Operator{}, services.Wrap(services.ErrValidation, "mes", "login", MsgInvalidResponse, err)
	}
	if !resp.Verified {
		reason := strings.TrimSpace(resp.Reason)
		if reason == "" {
			reason = "Invalid credentials"
		}
		logger.Info("login rejected", logging.String("username", username), logging.String("reason", reason))
		return Operator{}, fmt.Errorf("%w: %s", ErrRejected, reason)
	}

	op := Operator{ID: rawID(resp.ID), Name: textutil.DisplayName(resp.Name)}
	if op.Name == "" {
		op.Name = username
	}
	if op.ID == "" {
		return Operator{}, services.Wrap(services.ErrValidation, "mes", "login", "verified response without operator id", nil)
	}
	logger.Info("login verified", logging.String("username", username), logging.String(logging.FieldOperator, op.ID), logging.String("name", op.Name))
	return op, nil
}

// RejectionReason extracts the service reason from a Login error.
func RejectionReason(err error) (string, bool) {
	if !errors.Is(err, ErrRejected) {
		return "", false
	}
	_, reason, _ := strings.Cut(err.Error(), ": ")
	return reason, true
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}
