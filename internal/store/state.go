package store

import "imgworker/internal/queue"

// DefaultProcessedRetention bounds processed upload items kept for observers.
const DefaultProcessedRetention = 10

// Settings is the runtime configuration replaced through set-config.
type Settings struct {
	CodecsPath         string `json:"codecs_path,omitempty"`
	ImageListURL       string `json:"image_list_url,omitempty"`
	ImageUploadURL     string `json:"image_upload_url,omitempty"`
	MaxFileUploads     int    `json:"max_file_uploads,omitempty"`
	ProcessedRetention int    `json:"processed_retention,omitempty"`
}

// Retention returns the effective processed-item cap.
func (s Settings) Retention() int {
	if s.ProcessedRetention <= 0 {
		return DefaultProcessedRetention
	}
	return s.ProcessedRetention
}

// State is an immutable snapshot of the store.
type State struct {
	Settings         Settings
	SettingsRevision uint64
	Queue            queue.List
	// Revision increments on every queue change.
	Revision uint64
	// Halted blocks new items from starting until resumed.
	Halted bool
}

// Action is anything the reducer or a middleware understands.
type Action interface {
	ActionType() string
}

// SetSettings replaces the runtime settings.
type SetSettings struct{ Settings Settings }

// Halt stops new items from starting.
type Halt struct{}

// Resume clears the halt flag.
type Resume struct{}

// Batch is what listeners receive for a transaction that applied several
// actions. The reducer never sees it.
type Batch struct{ Actions []Action }

func (SetSettings) ActionType() string { return "config/set" }
func (Halt) ActionType() string        { return "worker/halt" }
func (Resume) ActionType() string      { return "worker/resume" }
func (Batch) ActionType() string       { return "store/batch" }

// Reduce applies an action to the state.
func Reduce(state State, action Action) State {
	switch act := action.(type) {
	case SetSettings:
		state.Settings = act.Settings
		state.SettingsRevision++
	case Halt:
		state.Halted = true
	case Resume:
		state.Halted = false
	default:
		if list, changed := queue.Reduce(state.Queue, action); changed {
			state.Queue = list
			state.Revision++
		}
	}
	return state
}
