// Package logging assembles structured slog loggers and formatting helpers used
// across the station daemon and CLI.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so the control loop can tag every line of a
// work cycle with its cycle ID, board, and operator. A bounded in-memory buffer
// keeps recent events available to the IPC status surface.
package logging
