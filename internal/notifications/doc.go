// Package notifications pushes station alerts to an ntfy topic.
//
// Only events that need a human away from the console are sent: failed
// cycles, sensor faults, and daemon start/stop. Repeats of the same alert
// within the configured window are suppressed so a stuck sensor does not
// flood the topic.
package notifications
