package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

// jsonObjectRe extracts the first {...} or [...] span from mixed text.
// Models wrap JSON in prose or markdown fences often enough that a direct
// parse cannot be assumed.
var jsonObjectRe = regexp.MustCompile(`(?s)(\{.*\}|\[.*\])`)

// DecodeLoose parses model-produced JSON defensively: direct parse first,
// then a regex-extracted JSON substring, then array→object coercion (taking
// the first element when the model wrapped a single object in an array).
// Returns false when no usable JSON could be recovered; it never panics.
func DecodeLoose(text string, v any) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	if json.Unmarshal([]byte(text), v) == nil {
		return true
	}

	m := jsonObjectRe.FindString(text)
	if m == "" {
		return false
	}
	if json.Unmarshal([]byte(m), v) == nil {
		return true
	}

	// Array-vs-object coercion: unwrap a single-element array.
	if strings.HasPrefix(m, "[") {
		var arr []json.RawMessage
		if json.Unmarshal([]byte(m), &arr) == nil && len(arr) > 0 {
			return json.Unmarshal(arr[0], v) == nil
		}
	}

	return false
}
