// Package main hosts the imgworker CLI.
//
// Commands translate terminal invocations into IPC calls against a running
// worker: status, queue removal, stop-working, and the forced update
// handshake. Configuration scaffolding and a local notification test run
// without a daemon.
package main
