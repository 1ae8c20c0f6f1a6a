// Package preflight provides readiness checks for the filesystem paths,
// hardware inputs and network services the station depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs every failure, so a missing
//     result directory or unreachable MES host shows up before the first
//     board is loaded.
//   - The CLI "linker preflight" command prints the same results as a table.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
