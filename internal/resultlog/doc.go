// Package resultlog records the outcome of every link cycle.
//
// Three stores are written per cycle:
//
//   - DailyLog: one CSV file per calendar day (link_log_YYYY-MM-DD.csv),
//     opened per write, header written once per file
//   - Backup: copies of captured images whose side produced no code, kept
//     for human audit and never read back
//   - History: a SQLite table of the same rows used by the CLI for listings
//     and pass/fail counts
//
// Recorder writes all three. Failures are logged and reported to the caller
// but never stop the cycle from delivering its result.
package resultlog
