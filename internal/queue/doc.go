// Package queue holds the in-memory work queue model: items, payloads, the
// actions that drive their lifecycle, and the pure reducer that applies those
// actions to an ordered item list.
//
// Two queues share one list. Items are created in the optimize queue, migrate
// to the upload queue by removal and re-insertion, and are tracked across
// queues only by payload identity. Every transition goes through Reduce; the
// reducer never mutates its input so callers may hand out List values as
// snapshots.
//
// The package has no goroutines and no I/O; the store and engine packages
// supply dispatch and the advance protocol.
package queue
