package ipc

import (
	"imgworker/internal/broadcast"
	"imgworker/internal/command"
	"imgworker/internal/daemon"
)

// ConnectRequest registers a new observer.
type ConnectRequest struct{}

// ConnectResponse carries the observer id used on later calls.
type ConnectResponse struct {
	Observer string `json:"observer"`
}

// DisconnectRequest drops an observer.
type DisconnectRequest struct {
	Observer string `json:"observer"`
}

// DisconnectResponse acknowledges Disconnect.
type DisconnectResponse struct{}

// SendRequest delivers one command message on behalf of an observer.
type SendRequest struct {
	Observer string          `json:"observer"`
	Message  command.Message `json:"message"`
}

// SendResponse acknowledges Send.
type SendResponse struct {
	Accepted bool `json:"accepted"`
}

// EventsRequest long-polls for events after Since.
type EventsRequest struct {
	Observer   string `json:"observer"`
	Since      uint64 `json:"since"`
	Limit      int    `json:"limit"`
	WaitMillis int    `json:"wait_millis"`
}

// EventsResponse returns events and the cursor for the next call.
type EventsResponse struct {
	Events []broadcast.Event `json:"events"`
	Next   uint64            `json:"next"`
}

// StatusRequest asks for a daemon snapshot.
type StatusRequest struct{}

// StatusResponse wraps the daemon snapshot.
type StatusResponse struct {
	Status daemon.Status `json:"status"`
}

// ShutdownRequest asks the daemon to exit.
type ShutdownRequest struct{}

// ShutdownResponse acknowledges Shutdown.
type ShutdownResponse struct {
	Stopping bool `json:"stopping"`
}
