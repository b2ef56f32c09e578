package types

// Event is the raw payload behind every emitted settlement event: a type tag
// plus flat string attributes, so downstream sinks can index or log entries
// without knowing the concrete domain types.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Clone returns a deep copy so emitters can hand events to concurrent sinks.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	attrs := make(map[string]string, len(e.Attributes))
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	return &Event{Type: e.Type, Attributes: attrs}
}
