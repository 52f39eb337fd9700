// Package engine drives the per-queue advance protocol.
//
// Advance starts the first idle item of a queue unless one is already
// processing or the worker is halted. Starting an item emits ItemReady for
// the stage that owns the queue, and MarkProcessed re-advances the same
// queue so completion of one item always attempts the next.
package engine
