// Package notifications delivers worker events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when notifications are disabled. Events
// cover upload failures, manifest outages, and operator tests.
package notifications
