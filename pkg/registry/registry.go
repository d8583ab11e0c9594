// pkg/registry/registry.go
package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

//go:embed default_registry.json
var defaultRegistry []byte

// LoadRegistry reads a registry file from disk.
func LoadRegistry(path string) (*MockRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Default returns the built-in dataset.
func Default() (*MockRegistry, error) {
	return Parse(defaultRegistry)
}

// Parse decodes and checks a registry document.
func Parse(data []byte) (*MockRegistry, error) {
	var reg MockRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse mock registry: %w", err)
	}
	for i, ep := range reg.Endpoints {
		if !strings.HasPrefix(ep.Suffix, "/") {
			return nil, fmt.Errorf("endpoint %d: suffix %q must start with /", i, ep.Suffix)
		}
	}
	return &reg, nil
}

// Lookup returns the payload of the first endpoint whose suffix ends path.
func (r *MockRegistry) Lookup(path string) (interface{}, bool) {
	path = strings.SplitN(path, "?", 2)[0]
	for _, ep := range r.Endpoints {
		if strings.HasSuffix(path, ep.Suffix) {
			return ep.Data, true
		}
	}
	return nil, false
}

// FindInCollection looks for an item with the given id inside the list held
// under field of the payload registered for suffix.
func (r *MockRegistry) FindInCollection(suffix, field, id string) (map[string]interface{}, bool) {
	data, ok := r.Lookup(suffix)
	if !ok {
		return nil, false
	}
	obj, ok := data.(map[string]interface{})
	if !ok {
		return nil, false
	}
	items, ok := obj[field].([]interface{})
	if !ok {
		return nil, false
	}
	for _, it := range items {
		m, ok := it.(map[string]interface{})
		if !ok {
			continue
		}
		if idOf(m["id"]) == id {
			return m, true
		}
	}
	return nil, false
}

func idOf(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}
