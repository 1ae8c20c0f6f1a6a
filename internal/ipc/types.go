package ipc

import (
	"seriallinker/internal/daemon"
	"seriallinker/internal/logging"
	"seriallinker/internal/preflight"
	"seriallinker/internal/resultlog"
	"seriallinker/internal/station"
)

// StartRequest resumes the station loop.
type StartRequest struct{}

// StartResponse indicates whether the loop was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest halts the station loop without exiting the daemon.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse wraps the daemon status snapshot.
type StatusResponse struct {
	Status daemon.Status `json:"status"`
}

// LoginRequest carries operator credentials.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse returns the started session.
type LoginResponse struct {
	Session station.Session `json:"session"`
}

// LogoutRequest ends the operator session.
type LogoutRequest struct{}

// LogoutResponse acknowledges logout.
type LogoutResponse struct {
	LoggedOut bool `json:"logged_out"`
}

// BoardRequest selects a board type by name.
type BoardRequest struct {
	Name string `json:"name"`
}

// BoardResponse returns the selected board.
type BoardResponse struct {
	Board station.BoardInfo `json:"board"`
}

// BoardsRequest lists the board table.
type BoardsRequest struct{}

// BoardsResponse lists configured boards and the current selection.
type BoardsResponse struct {
	Boards   []station.BoardInfo `json:"boards"`
	Selected string              `json:"selected"`
}

// SimRequest applies one simulation control.
type SimRequest struct {
	Action string `json:"action"`
}

// SimResponse returns the simulated inputs after the control.
type SimResponse struct {
	Result daemon.SimResult `json:"result"`
}

// HistoryRequest filters stored cycles. SinceHours of zero means no lower bound.
type HistoryRequest struct {
	Limit      int    `json:"limit"`
	Board      string `json:"board"`
	FailedOnly bool   `json:"failed_only"`
	SinceHours int    `json:"since_hours"`
}

// HistoryResponse carries matching cycles, newest first, plus totals for the window.
type HistoryResponse struct {
	Records []resultlog.Record `json:"records"`
	Stats   resultlog.Stats    `json:"stats"`
}

// EventsRequest pages through the in-memory event buffer.
type EventsRequest struct {
	After uint64 `json:"after"`
	Limit int    `json:"limit"`
}

// EventsResponse returns buffered events and the sequence to resume from.
type EventsResponse struct {
	Events []logging.Event `json:"events"`
	Next   uint64          `json:"next"`
}

// LogTailRequest requests lines from the daemon log.
type LogTailRequest struct {
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
	Filter     string `json:"filter"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest triggers a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// PreflightRequest runs environment checks inside the daemon.
type PreflightRequest struct{}

// PreflightResponse lists check results.
type PreflightResponse struct {
	Results []preflight.Result `json:"results"`
}
