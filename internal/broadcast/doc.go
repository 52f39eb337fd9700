// Package broadcast fans worker events out to observers.
//
// The Hub keeps a bounded, sequenced buffer so CLI observers can long-poll
// over IPC without missing messages, and forwards every event to registered
// push observers such as the Kafka sink. Events carry an optional target so
// request/response messages like get-config reach only the observer that
// asked.
package broadcast
