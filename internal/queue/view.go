package queue

// PayloadView is a payload stripped of binary output.
type PayloadView struct {
	ID     string            `json:"id"`
	URLs   []string          `json:"urls"`
	Error  string            `json:"error,omitempty"`
	Errors []string          `json:"errors,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// View is the observer-facing form of an item.
type View struct {
	ID      string      `json:"id"`
	Queue   Name        `json:"queue"`
	Payload PayloadView `json:"payload"`
	State   State       `json:"state"`
}

// Snapshot lists every upload item followed by the optimize items that are
// not yet processed. Processed optimize items are transient and omitted.
func Snapshot(l List) []View {
	views := make([]View, 0, len(l))
	for _, item := range l.ByQueue(Upload) {
		views = append(views, viewOf(item))
	}
	for _, item := range l.ByQueue(Optimize) {
		if item.State == StateProcessed {
			continue
		}
		views = append(views, viewOf(item))
	}
	return views
}

// AllProcessed reports whether every view is processed. An empty snapshot
// counts as processed.
func AllProcessed(views []View) bool {
	for _, v := range views {
		if v.State != StateProcessed {
			return false
		}
	}
	return true
}

func viewOf(item Item) View {
	p := item.Payload
	return View{
		ID:    item.ID,
		Queue: item.Queue,
		Payload: PayloadView{
			ID:     p.ID,
			URLs:   append([]string(nil), p.URLs...),
			Error:  p.Error,
			Errors: append([]string(nil), p.Errors...),
			Fields: p.Fields,
		},
		State: item.State,
	}
}
