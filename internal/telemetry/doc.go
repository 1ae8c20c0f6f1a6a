// Package telemetry writes cycle and state metrics to InfluxDB.
//
// Writes are non-blocking and batched by the client library; a dead or slow
// InfluxDB never delays the station loop. Async write errors are logged.
package telemetry
