// Package main hosts the linker CLI entrypoint and command graph.
//
// The Cobra command tree runs the station daemon in the foreground (`linker
// run`) and translates every other invocation into an IPC call against it:
// operator login/logout, board selection, simulation toggles, status, cycle
// history, log tailing, preflight checks, and test notifications. Config
// resolution and socket discovery live in commandContext so subcommands only
// deal with presentation.
//
// Add behaviour to the internal packages first and surface it here.
package main
