// pkg/registry/edit.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Put replaces the payload of suffix, appending a new endpoint when the
// suffix is not registered yet. It reports whether the endpoint was new.
func (r *MockRegistry) Put(suffix string, data interface{}) (bool, error) {
	if !strings.HasPrefix(suffix, "/") {
		return false, fmt.Errorf("suffix %q must start with /", suffix)
	}
	r.LastUpdated = time.Now().Format(time.RFC3339)
	for i := range r.Endpoints {
		if r.Endpoints[i].Suffix == suffix {
			r.Endpoints[i].Data = data
			return false, nil
		}
	}
	r.Endpoints = append(r.Endpoints, MockEndpoint{Suffix: suffix, Data: data})
	return true, nil
}

// Remove drops the endpoint registered for suffix.
func (r *MockRegistry) Remove(suffix string) error {
	for i := range r.Endpoints {
		if r.Endpoints[i].Suffix == suffix {
			r.Endpoints = append(r.Endpoints[:i], r.Endpoints[i+1:]...)
			r.LastUpdated = time.Now().Format(time.RFC3339)
			return nil
		}
	}
	return fmt.Errorf("endpoint %s not found", suffix)
}

// Validate checks suffixes and reports endpoints that can never match
// because an earlier, shorter suffix already covers them.
func (r *MockRegistry) Validate() error {
	if len(r.Endpoints) == 0 {
		return fmt.Errorf("registry contains no endpoints")
	}

	seen := make(map[string]bool, len(r.Endpoints))
	for i, ep := range r.Endpoints {
		if !strings.HasPrefix(ep.Suffix, "/") {
			return fmt.Errorf("endpoint %d: suffix %q must start with /", i, ep.Suffix)
		}
		if seen[ep.Suffix] {
			return fmt.Errorf("duplicate endpoint suffix: %s", ep.Suffix)
		}
		seen[ep.Suffix] = true

		for _, earlier := range r.Endpoints[:i] {
			if strings.HasSuffix(ep.Suffix, earlier.Suffix) {
				return fmt.Errorf("endpoint %s is shadowed by earlier %s", ep.Suffix, earlier.Suffix)
			}
		}
	}

	if (r.Login.Email == "") != (r.Login.Password == "") {
		return fmt.Errorf("login needs both email and password")
	}
	return nil
}

// Save writes the registry as indented JSON, creating parent directories.
func (r *MockRegistry) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}
