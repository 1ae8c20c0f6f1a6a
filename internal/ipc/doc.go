// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the linker CLI.
//
// It owns socket lifecycle management and the request/response DTOs. Operator
// commands (login, logout, board selection) and simulation toggles are
// forwarded to the daemon, which marshals them onto the station loop; read-only
// calls (status, history, events, log tail, preflight) never block the loop.
//
// Reuse these types when adding endpoints so the CLI and daemon stay in step.
package ipc
