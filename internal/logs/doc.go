// Package logs reads daemon and result log files for the CLI and the IPC
// log call.
//
// Tail returns the last N lines (negative offset) or everything after a byte
// offset, optionally keeping only lines that contain a filter string, and in
// follow mode polls until new lines arrive or the wait elapses. The returned
// offset is fed back on the next call so `linker log --follow` streams without
// rereading the file.
package logs
