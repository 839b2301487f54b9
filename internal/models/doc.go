package models

import (
	"time"
)

// Doc is the schemaless document representation used by the resource
// engine. Values follow JSON conventions: string, float64, bool,
// map[string]interface{}, []interface{} and nil. Timestamps are stored as
// RFC3339 strings in UTC so documents round-trip through JSONB unchanged.
type Doc map[string]interface{}

// TimeLayout is the canonical timestamp encoding for document fields:
// second precision, fixed width, so the lexicographic order of stored
// stamps matches their chronological order.
const TimeLayout = "2006-01-02T15:04:05Z07:00"

// FormatTime renders a timestamp in the canonical document encoding.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a canonical document timestamp.
func ParseTime(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// GetString returns the string value stored under key, or "".
func (d Doc) GetString(key string) string {
	if d == nil {
		return ""
	}
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

// GetBool returns the boolean value stored under key.
func (d Doc) GetBool(key string) bool {
	if d == nil {
		return false
	}
	if v, ok := d[key].(bool); ok {
		return v
	}
	return false
}

// GetInt returns the numeric value stored under key as an int. JSON
// decoding produces float64, in-process writers may store native ints.
func (d Doc) GetInt(key string) int {
	if d == nil {
		return 0
	}
	switch v := d[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// GetTime parses the timestamp stored under key.
func (d Doc) GetTime(key string) (time.Time, bool) {
	if d == nil {
		return time.Time{}, false
	}
	switch v := d[key].(type) {
	case time.Time:
		return v.UTC(), true
	case string:
		return ParseTime(v)
	}
	return time.Time{}, false
}

// GetDoc returns a nested document stored under key, or nil.
func (d Doc) GetDoc(key string) Doc {
	if d == nil {
		return nil
	}
	switch v := d[key].(type) {
	case Doc:
		return v
	case map[string]interface{}:
		return Doc(v)
	}
	return nil
}

// GetList returns the list stored under key, or nil.
func (d Doc) GetList(key string) []interface{} {
	if d == nil {
		return nil
	}
	if v, ok := d[key].([]interface{}); ok {
		return v
	}
	return nil
}

// GetStringList returns the list under key coerced to strings, skipping
// non-string members.
func (d Doc) GetStringList(key string) []string {
	raw := d.GetList(key)
	if raw == nil {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Has reports whether key is present with a non-nil value.
func (d Doc) Has(key string) bool {
	if d == nil {
		return false
	}
	v, ok := d[key]
	return ok && v != nil
}

// ID is a shorthand for the document identifier.
func (d Doc) ID() string {
	return d.GetString(FieldID)
}

// Clone returns a deep copy of the document.
func (d Doc) Clone() Doc {
	if d == nil {
		return nil
	}
	out := make(Doc, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch typed := v.(type) {
	case Doc:
		return typed.Clone()
	case map[string]interface{}:
		return map[string]interface{}(Doc(typed).Clone())
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return typed
	}
}

// Apply merges updates onto the document. Top-level keys are replaced
// wholesale, matching partial-update semantics: callers send complete
// values for any field they touch. A nil update value removes the field.
func (d Doc) Apply(updates Doc) {
	for k, v := range updates {
		if v == nil {
			delete(d, k)
			continue
		}
		d[k] = cloneValue(v)
	}
}

// Remove deletes the provided keys from the document.
func (d Doc) Remove(keys ...string) {
	for _, k := range keys {
		delete(d, k)
	}
}

// Task returns the placement block of an item, never nil.
func (d Doc) Task() Doc {
	if t := d.GetDoc(FieldTask); t != nil {
		return t
	}
	return Doc{}
}
