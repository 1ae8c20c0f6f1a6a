// Package station runs the linking cell's control loop.
//
// A Controller polls the sensor port on a fixed cadence and advances a
// finite-state machine:
//
//	LoggedOut -> WaitRemove -> WaitBoard -> WaitStart -> Linking -> Pass | Fail
//
// Entering Linking launches exactly one work cycle on its own goroutine:
// capture, decode each side, link or depanel the codes, then record the
// attempt. The cycle hands its result back through a single-slot channel that
// the poll loop drains at the start of a tick, so every state change happens
// on the loop goroutine. Operator commands (login, logout, board selection,
// acknowledgement) are marshalled onto the same goroutine.
//
// Every transition produces a Display value (text, colour, pulse) that is
// pushed to the configured DisplaySink and exposed through Status.
package station
