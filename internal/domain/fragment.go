package domain

// KeyPrefix namespaces every key this service writes to a shared store.
const KeyPrefix = "cvctx:"

// Document is an insertion unit: text content plus arbitrary metadata.
type Document struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Fragment is a single similarity-search hit.
// Fragments are shared between the query cache and callers and must not be mutated.
type Fragment struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

// Source returns the "source" metadata value and whether it is present.
func (f Fragment) Source() (string, bool) {
	v, ok := f.Metadata["source"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
