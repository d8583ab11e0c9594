package aggregator

import (
	"strings"

	"portfolio-sync/internal/models"
)

// Record is one normalized backend object.
type Record map[string]interface{}

// String returns the field as text, or "" when missing or not scalar.
func (r Record) String(key string) string {
	return models.Text(r[key])
}

// Clone deep-copies the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return Record(cloneMap(r))
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneMap(t)
	case Record:
		return Record(cloneMap(t))
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}

func cloneRecords(in []Record) []Record {
	out := make([]Record, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}

func asObject(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case map[string]interface{}:
		return t, true
	case Record:
		return t, true
	}
	return nil, false
}

func asList(v interface{}) ([]interface{}, bool) {
	l, ok := v.([]interface{})
	return l, ok
}

// firstText returns the first value that renders as non-empty text.
func firstText(values ...interface{}) string {
	for _, v := range values {
		if s := models.Text(v); s != "" {
			return s
		}
	}
	return ""
}

// nonBlank returns s when it has visible characters.
func nonBlank(v interface{}) string {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}
