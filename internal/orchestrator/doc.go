// Package orchestrator drives the worker: it runs poll cycles on an adaptive
// timer, performs the config handshake with the requesting observer,
// broadcasts queue snapshots and answers the lifecycle commands
// (get-update, remove-item, skip-waiting, stop-working, set-config).
package orchestrator
