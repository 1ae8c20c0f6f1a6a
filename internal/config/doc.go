// Package config loads, normalizes, and validates station configuration.
//
// It supplies defaults for a two-board linker cell, expands user paths
// (including tilde shortcuts), reads TOML files, and honours environment
// fallbacks for secrets such as LINKER_API_TOKEN and the MQTT/Influx
// credentials. An optional dotenv file is loaded before the environment is
// consulted so plant deployments can keep credentials out of the TOML file.
//
// The returned *Config is built once at startup and treated as read-only by
// every other package.
package config
