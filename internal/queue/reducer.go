package queue

// List is an ordered item list. Values are never mutated in place.
type List []Item

// Reduce applies an action and reports whether the list changed. Actions that
// do not touch items return the input unchanged.
func Reduce(list List, action Action) (List, bool) {
	switch act := action.(type) {
	case Add:
		return reduceAdd(list, act.Item)
	case Update:
		idx := list.index(act.ID)
		if idx < 0 {
			return list, false
		}
		next := list.clone()
		next[idx].Payload = act.Patch.Apply(next[idx].Payload)
		return next, true
	case Start:
		return list.withState(act.ID, StateProcessing)
	case MarkProcessed:
		return list.withState(act.ID, StateProcessed)
	case Remove:
		idx := list.index(act.ID)
		if idx < 0 {
			return list, false
		}
		next := make(List, 0, len(list)-1)
		next = append(next, list[:idx]...)
		next = append(next, list[idx+1:]...)
		return next, true
	default:
		return list, false
	}
}

func reduceAdd(list List, item Item) (List, bool) {
	next := make(List, 0, len(list)+1)
	for _, existing := range list {
		if existing.ID == item.ID {
			if existing.IsProcessing() {
				return list, false
			}
			continue
		}
		next = append(next, existing)
	}
	item.Payload = item.Payload.Clone()
	if item.State == "" {
		item.State = StateIdle
	}
	return append(next, item), true
}

func (l List) withState(id string, state State) (List, bool) {
	idx := l.index(id)
	if idx < 0 || l[idx].State == state {
		return l, false
	}
	next := l.clone()
	next[idx].State = state
	return next, true
}

func (l List) index(id string) int {
	for i, item := range l {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func (l List) clone() List {
	return append(List(nil), l...)
}
