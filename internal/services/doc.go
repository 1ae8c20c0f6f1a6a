// Package services defines shared utilities consumed by the station control
// loop and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp work-cycle IDs, board names, and operator
//     identities so every log line of a cycle carries the same fields.
//   - Structured error markers plus the Wrap helper so adapters can classify
//     failures and turn them into short operator-facing diagnostics.
//
// Integrations with remote systems live in subpackages (see services/mes).
package services
