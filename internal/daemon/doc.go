// Package daemon coordinates the long-running imgworker process.
//
// It owns the single-instance flock, the active/waiting lifecycle used by
// forced updates, and the observer-facing operations the IPC server exposes
// (connect, send, events, status, shutdown). The Queue Engine, pipelines and
// orchestrator are wired elsewhere and handed in through Options; the daemon
// focuses on startup, shutdown and high level coordination.
package daemon
