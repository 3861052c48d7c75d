package redact

import (
	"bytes"
	"encoding/json"
)

// RedactJSON walks a JSON document and redacts only its string leaves,
// preserving the key set and nesting of the input. Input that is not
// valid JSON falls back to plain-text redaction of the whole string.
func (r *Redactor) RedactJSON(raw string) Result {
	decoder := json.NewDecoder(bytes.NewReader([]byte(raw)))
	decoder.UseNumber()

	var doc interface{}
	if err := decoder.Decode(&doc); err != nil {
		return r.Redact(raw)
	}
	// Trailing garbage after the first value also disqualifies it.
	if decoder.More() {
		return r.Redact(raw)
	}

	summary := newSummary()
	redacted := r.walk(doc, &summary)

	encoded, err := json.Marshal(redacted)
	if err != nil {
		return r.Redact(raw)
	}

	return Result{
		RedactedText: string(encoded),
		WasRedacted:  summary.TotalCharsRedacted > 0,
		Summary:      summary,
	}
}

// walk redacts string leaves recursively, merging per-leaf summaries.
func (r *Redactor) walk(node interface{}, summary *Summary) interface{} {
	switch v := node.(type) {
	case map[string]interface{}:
		for key, child := range v {
			v[key] = r.walk(child, summary)
		}
		return v
	case []interface{}:
		for i, child := range v {
			v[i] = r.walk(child, summary)
		}
		return v
	case string:
		result := r.Redact(v)
		if result.WasRedacted {
			summary.merge(result.Summary)
			return result.RedactedText
		}
		return v
	default:
		// Numbers, booleans and nulls pass through untouched.
		return v
	}
}
