package api

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "portfolio-sync/internal/common/errors"
	"portfolio-sync/internal/common/logger"
	"portfolio-sync/pkg/registry"
)

// MockClientOptions configures MockClient.
type MockClientOptions struct {
	Registry   *registry.MockRegistry
	MinLatency time.Duration
	MaxLatency time.Duration
	Tokens     TokenStore
	Now        func() time.Time
}

// MockClient serves canned data from a registry after a random latency.
type MockClient struct {
	registry   *registry.MockRegistry
	minLatency time.Duration
	maxLatency time.Duration
	tokens     TokenStore
	now        func() time.Time
	logger     logger.Logger
}

func NewMockClient(opts MockClientOptions, log logger.Logger) *MockClient {
	if opts.Registry == nil {
		opts.Registry = &registry.MockRegistry{}
	}
	if opts.Tokens == nil {
		opts.Tokens = NewMemoryTokenStore("")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxLatency < opts.MinLatency {
		opts.MaxLatency = opts.MinLatency
	}
	return &MockClient{
		registry:   opts.Registry,
		minLatency: opts.MinLatency,
		maxLatency: opts.MaxLatency,
		tokens:     opts.Tokens,
		now:        opts.Now,
		logger:     log.WithFields(map[string]interface{}{"component": "api.mock"}),
	}
}

func (c *MockClient) Request(ctx context.Context, method, path string, body interface{}) (interface{}, error) {
	if err := c.delay(ctx); err != nil {
		return nil, apperrors.NewAPIRequestFailedError(method, path, err)
	}

	if strings.Contains(path, LoginPath) {
		return c.login(body)
	}

	if method == http.MethodGet {
		if data, ok := c.registry.Lookup(path); ok {
			return envelope(cloneValue(data)), nil
		}
		if strings.Contains(path, "/portfolio/") {
			id := path[strings.LastIndex(path, "/")+1:]
			project, _ := c.registry.FindInCollection("/portfolio", "projects", id)
			if project == nil {
				return envelope(nil), nil
			}
			return envelope(cloneValue(project)), nil
		}
		c.logger.Debug("no mock data for endpoint", map[string]interface{}{"path": path})
		return envelope(map[string]interface{}{}), nil
	}

	return map[string]interface{}{
		"success": true,
		"message": "Operation successful (Mock)",
		"data":    toJSONValue(body),
	}, nil
}

func (c *MockClient) login(body interface{}) (interface{}, error) {
	creds, _ := toJSONValue(body).(map[string]interface{})
	login := c.registry.Login
	if login.Email == "" || creds == nil || creds["email"] != login.Email || creds["password"] != login.Password {
		return nil, apperrors.NewInvalidCredentialsError("Invalid credentials")
	}

	token := "mock_jwt_token_" + strconv.FormatInt(c.now().UnixMilli(), 10)
	c.tokens.SetToken(token)

	return map[string]interface{}{
		"success": true,
		"token":   token,
		"user":    cloneValue(login.User),
	}, nil
}

func (c *MockClient) delay(ctx context.Context) error {
	d := c.minLatency
	if span := c.maxLatency - c.minLatency; span > 0 {
		d += time.Duration(rand.Int63n(int64(span)))
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{"success": true, "data": data}
}

// toJSONValue converts an arbitrary Go value into its decoded JSON form.
func toJSONValue(v interface{}) interface{} {
	switch v.(type) {
	case nil, map[string]interface{}, []interface{}, string, float64, bool:
		return cloneValue(v)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	}
	return v
}
