// Package store is the single state holder for the worker: settings, the
// queue list, and the halt flag.
//
// Dispatch runs an action through an ordered middleware chain whose last link
// applies the reducer and notifies subscribers. Store-level dispatches are
// serialized so exactly one action cascade runs at a time; middlewares spawn
// blocking work with API.Go and report back through the dispatcher they are
// handed.
package store
