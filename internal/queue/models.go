package queue

import (
	"strings"

	"github.com/google/uuid"
)

// Name identifies a processing stage.
type Name string

const (
	// Optimize receives items reconciled from the remote manifest.
	Optimize Name = "Optimize/image"
	// Upload receives items handed off by the optimizer.
	Upload Name = "ServerUpdate/UPLOAD_IMAGE"
)

// Names lists the queues in pipeline order.
var Names = []Name{Optimize, Upload}

// Short returns the operator-facing queue label.
func (n Name) Short() string {
	switch n {
	case Optimize:
		return "optimize"
	case Upload:
		return "upload"
	default:
		return string(n)
	}
}

// ParseName accepts either a full queue name or its short label.
func ParseName(value string) (Name, bool) {
	trimmed := strings.TrimSpace(value)
	for _, name := range Names {
		if trimmed == string(name) || strings.EqualFold(trimmed, name.Short()) {
			return name, true
		}
	}
	return "", false
}

// State represents the lifecycle of a queue item.
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateProcessed  State = "processed"
)

// Variant is one encoded rendition of a source image.
type Variant struct {
	Format string `json:"format"`
	Image  []byte `json:"image"`
}

// Payload is the work carried by an item through both queues.
type Payload struct {
	ID     string               `json:"id"`
	URLs   []string             `json:"urls"`
	Datas  map[string][]Variant `json:"datas,omitempty"`
	Error  string               `json:"error,omitempty"`
	Errors []string             `json:"errors,omitempty"`
	// Fields carries extra scalar manifest values forwarded to the upload endpoint.
	Fields map[string]string `json:"fields,omitempty"`
}

// HasError reports whether a failure has been recorded on the payload.
func (p Payload) HasError() bool {
	return p.Error != "" || len(p.Errors) > 0
}

// Clone returns a deep copy safe to mutate.
func (p Payload) Clone() Payload {
	out := p
	out.URLs = append([]string(nil), p.URLs...)
	out.Errors = append([]string(nil), p.Errors...)
	if p.Datas != nil {
		out.Datas = make(map[string][]Variant, len(p.Datas))
		for url, variants := range p.Datas {
			out.Datas[url] = append([]Variant(nil), variants...)
		}
	}
	if p.Fields != nil {
		out.Fields = make(map[string]string, len(p.Fields))
		for k, v := range p.Fields {
			out.Fields[k] = v
		}
	}
	return out
}

// Patch overwrites the payload fields that are set. Fields merges key by key.
type Patch struct {
	URLs   *[]string
	Datas  *map[string][]Variant
	Error  *string
	Errors *[]string
	Fields map[string]string
}

// Apply returns a copy of p with the patch applied.
func (pt Patch) Apply(p Payload) Payload {
	out := p.Clone()
	if pt.URLs != nil {
		out.URLs = append([]string(nil), (*pt.URLs)...)
	}
	if pt.Datas != nil {
		out.Datas = *pt.Datas
	}
	if pt.Error != nil {
		out.Error = *pt.Error
	}
	if pt.Errors != nil {
		out.Errors = append([]string(nil), (*pt.Errors)...)
	}
	if len(pt.Fields) > 0 {
		if out.Fields == nil {
			out.Fields = make(map[string]string, len(pt.Fields))
		}
		for k, v := range pt.Fields {
			out.Fields[k] = v
		}
	}
	return out
}

// Item is a unit of work in one queue.
type Item struct {
	ID      string  `json:"id"`
	Queue   Name    `json:"queue"`
	Payload Payload `json:"payload"`
	State   State   `json:"state"`
}

// IsProcessing reports whether work is in flight for the item.
func (i Item) IsProcessing() bool { return i.State == StateProcessing }

// NewItem builds an idle item for the queue. A payload without an id receives
// a fresh UUID so the item key and payload identity stay aligned.
func NewItem(name Name, payload Payload) Item {
	payload = payload.Clone()
	if strings.TrimSpace(payload.ID) == "" {
		payload.ID = uuid.NewString()
	}
	return Item{
		ID:      ItemID(name, payload.ID),
		Queue:   name,
		Payload: payload,
		State:   StateIdle,
	}
}

// ItemID composes the queue-scoped item identifier.
func ItemID(name Name, key string) string {
	return string(name) + "/" + key
}
