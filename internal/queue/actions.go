package queue

// Action is applied to the item list by Reduce. Store actions share this shape.
type Action interface {
	ActionType() string
}

// Add appends an idle item. An existing item with the same id is replaced
// unless it is processing, in which case the add is ignored.
type Add struct{ Item Item }

// Update shallow-merges a patch into an item payload. Missing ids are ignored.
type Update struct {
	ID    string
	Patch Patch
}

// Start moves an item to processing.
type Start struct{ ID string }

// MarkProcessed moves an item to processed.
type MarkProcessed struct{ ID string }

// Remove deletes an item regardless of state.
type Remove struct{ ID string }

// Advance asks the engine to start the next idle item in a queue.
type Advance struct{ Queue Name }

// ItemReady announces that an item has started and its stage may begin work.
type ItemReady struct{ Item Item }

// Drained announces that a queue had nothing to start.
type Drained struct{ Queue Name }

func (Add) ActionType() string           { return "queue/add" }
func (Update) ActionType() string        { return "queue/update" }
func (Start) ActionType() string         { return "queue/start" }
func (MarkProcessed) ActionType() string { return "queue/mark_processed" }
func (Remove) ActionType() string        { return "queue/remove" }
func (Advance) ActionType() string       { return "queue/advance" }
func (ItemReady) ActionType() string     { return "queue/item_ready" }
func (Drained) ActionType() string       { return "queue/drained" }
