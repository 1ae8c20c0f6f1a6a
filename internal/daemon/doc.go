// Package daemon coordinates the long-running linker process.
//
// It owns the station controller's lifecycle behind a flock-based lock so only
// one process drives a cell, and it exposes the operator and maintenance
// surface the IPC server serves: login/logout, board selection, simulation
// toggles, cycle history, recent log events, preflight checks, and test
// notifications.
//
// Keep orchestration here. The state machine lives in internal/station and the
// adapters live in their own packages; the daemon only starts, stops, and
// reports on them.
package daemon
