package queue

// ByID returns the item with the given id.
func (l List) ByID(id string) (Item, bool) {
	if idx := l.index(id); idx >= 0 {
		return l[idx], true
	}
	return Item{}, false
}

// ByQueue returns the items of one queue in insertion order.
func (l List) ByQueue(name Name) []Item {
	return l.filter(name, "")
}

// ToBeProcessed returns the idle items of a queue.
func (l List) ToBeProcessed(name Name) []Item {
	return l.filter(name, StateIdle)
}

// Processing returns the in-flight items of a queue.
func (l List) Processing(name Name) []Item {
	return l.filter(name, StateProcessing)
}

// Processed returns the finished items of a queue.
func (l List) Processed(name Name) []Item {
	return l.filter(name, StateProcessed)
}

// ByPayloadID finds the item carrying a payload identity. The upload queue
// wins because its items are further along the pipeline.
func (l List) ByPayloadID(payloadID string) (Item, bool) {
	if item, ok := l.ByID(ItemID(Upload, payloadID)); ok {
		return item, true
	}
	for _, name := range Names {
		for _, item := range l.ByQueue(name) {
			if item.Payload.ID == payloadID {
				return item, true
			}
		}
	}
	return Item{}, false
}

// AnyProcessing reports whether any queue has work in flight.
func (l List) AnyProcessing() bool {
	for _, item := range l {
		if item.IsProcessing() {
			return true
		}
	}
	return false
}

func (l List) filter(name Name, state State) []Item {
	var out []Item
	for _, item := range l {
		if item.Queue != name {
			continue
		}
		if state != "" && item.State != state {
			continue
		}
		out = append(out, item)
	}
	return out
}
