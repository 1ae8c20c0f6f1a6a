// Package mqtt wraps the paho client for the station's broker traffic: the
// input gateway the MQTT sensor port subscribes to, and the display/status
// topics the controller publishes for tower lights and dashboards.
//
// Subscriptions are restored after reconnects, handler panics are recovered,
// and a retained status topic with a last-will message lets other systems see
// when the station goes offline.
package mqtt
