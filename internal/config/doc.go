// Package config loads, normalizes, and validates imgworker configuration.
//
// It supplies defaults, expands user paths (including tilde shortcuts),
// reads TOML files, and honours environment fallbacks such as
// IMGWORKER_IMAGE_LIST_URL. The [worker] section seeds the runtime Settings
// that observers later replace through set-config; every other section is
// fixed for the life of the daemon.
package config
