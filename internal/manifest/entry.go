package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Entry is one remote image record.
type Entry struct {
	ID   string
	URLs []string
	// Fields holds the remaining scalar properties as strings.
	Fields map[string]string
}

// UnmarshalJSON accepts string or numeric ids and keeps extra scalar fields.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	idRaw, ok := raw["id"]
	if !ok {
		return fmt.Errorf("manifest entry missing id")
	}
	id, ok := scalarString(idRaw)
	if !ok || strings.TrimSpace(id) == "" {
		return fmt.Errorf("manifest entry id must be a string or number")
	}
	entry := Entry{ID: id}
	if urlsRaw, ok := raw["urls"]; ok && !isNull(urlsRaw) {
		if err := json.Unmarshal(urlsRaw, &entry.URLs); err != nil {
			return fmt.Errorf("manifest entry %s urls: %w", id, err)
		}
	}
	for key, value := range raw {
		if key == "id" || key == "urls" {
			continue
		}
		str, ok := scalarString(value)
		if !ok {
			continue
		}
		if entry.Fields == nil {
			entry.Fields = make(map[string]string)
		}
		entry.Fields[key] = str
	}
	*e = entry
	return nil
}

func scalarString(raw json.RawMessage) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return "", false
	}
	switch v := value.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// URLsChanged compares URL lists by length and membership, ignoring order.
// Membership is checked both ways so the result is symmetric even when a list
// repeats a URL.
func URLsChanged(a, b []string) bool {
	if len(a) != len(b) {
		return true
	}
	return !containsAll(a, b) || !containsAll(b, a)
}

func containsAll(values, set []string) bool {
	lookup := make(map[string]struct{}, len(set))
	for _, url := range set {
		lookup[url] = struct{}{}
	}
	for _, url := range values {
		if _, ok := lookup[url]; !ok {
			return false
		}
	}
	return true
}
