// Package api defines the backend REST contract shared by the aggregator,
// the notification synchronizer and the auth session, plus its real and
// simulated adapters.
package api

import (
	"context"
	"net/http"
)

// Client issues one request against the backend and returns the decoded
// body: JSON values as maps, slices and scalars, anything else as a string.
type Client interface {
	Request(ctx context.Context, method, path string, body interface{}) (interface{}, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, method, path string, body interface{}) (interface{}, error)

func (f ClientFunc) Request(ctx context.Context, method, path string, body interface{}) (interface{}, error) {
	return f(ctx, method, path, body)
}

func Get(ctx context.Context, c Client, path string) (interface{}, error) {
	return c.Request(ctx, http.MethodGet, path, nil)
}

func Post(ctx context.Context, c Client, path string, body interface{}) (interface{}, error) {
	return c.Request(ctx, http.MethodPost, path, body)
}

func Patch(ctx context.Context, c Client, path string, body interface{}) (interface{}, error) {
	return c.Request(ctx, http.MethodPatch, path, body)
}

func Delete(ctx context.Context, c Client, path string) (interface{}, error) {
	return c.Request(ctx, http.MethodDelete, path, nil)
}
