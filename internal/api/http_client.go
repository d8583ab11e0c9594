package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "portfolio-sync/internal/common/errors"
	commonhttp "portfolio-sync/internal/common/http"
	"portfolio-sync/internal/common/logger"
	"portfolio-sync/internal/common/metrics"
)

// HTTPClientOptions configures HTTPClient.
type HTTPClientOptions struct {
	BaseURL string
	Timeout time.Duration
	Tokens  TokenStore

	// LoginPath is exempt from 401 session handling.
	LoginPath string

	// InAdminArea reports whether the caller is inside the authenticated
	// area. Together with an admin path it makes a 401 call OnLoginRequired.
	InAdminArea     func() bool
	OnLoginRequired func()

	RequestsPerSecond float64
	Burst             int

	Transport http.RoundTripper
}

// HTTPClient talks to the real backend.
type HTTPClient struct {
	baseURL         string
	http            *commonhttp.Client
	tokens          TokenStore
	loginPath       string
	inAdminArea     func() bool
	onLoginRequired func()
	logger          logger.Logger
}

func NewHTTPClient(opts HTTPClientOptions, log logger.Logger) *HTTPClient {
	if opts.Tokens == nil {
		opts.Tokens = NewMemoryTokenStore("")
	}
	if opts.LoginPath == "" {
		opts.LoginPath = LoginPath
	}
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}

	httpOpts := []commonhttp.Option{commonhttp.WithRateLimit(opts.RequestsPerSecond, opts.Burst)}
	if opts.Transport != nil {
		httpOpts = append(httpOpts, commonhttp.WithTransport(opts.Transport))
	}

	return &HTTPClient{
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		http:            commonhttp.NewClient(opts.Timeout, httpOpts...),
		tokens:          opts.Tokens,
		loginPath:       opts.LoginPath,
		inAdminArea:     opts.InAdminArea,
		onLoginRequired: opts.OnLoginRequired,
		logger:          log.WithFields(map[string]interface{}{"component": "api.http"}),
	}
}

func (c *HTTPClient) Request(ctx context.Context, method, path string, body interface{}) (interface{}, error) {
	url := path
	if !strings.HasPrefix(path, "https://") && !strings.HasPrefix(path, "http://") {
		url = c.baseURL + path
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, apperrors.NewAPIRequestFailedError(method, path, fmt.Errorf("encode body: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, apperrors.NewAPIRequestFailedError(method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.DoWithContext(ctx, req)
	if err != nil {
		metrics.APIRequests.WithLabelValues(method, "error").Inc()
		return nil, apperrors.NewAPIRequestFailedError(method, path, err)
	}
	defer resp.Body.Close()

	metrics.APIRequests.WithLabelValues(method, statusClass(resp.StatusCode)).Inc()

	// Status decides the outcome; an undecodable error body is kept as text.
	data, decodeErr := decodeBody(resp)

	if resp.StatusCode == http.StatusUnauthorized {
		apiErr := &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: data}
		if !strings.Contains(path, c.loginPath) {
			c.tokens.ClearToken()
			if c.inAdminArea != nil && c.inAdminArea() && IsAdminPath(path) && c.onLoginRequired != nil {
				c.logger.Warn("session expired, login required", map[string]interface{}{"path": path})
				c.onLoginRequired()
			}
			return nil, apperrors.NewSessionExpiredError(path, apiErr)
		}
		return nil, apperrors.NewAPIRequestFailedError(method, path, apiErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: data}
		return nil, apperrors.NewAPIRequestFailedError(method, path, apiErr)
	}

	if decodeErr != nil {
		return nil, apperrors.NewAPIRequestFailedError(method, path, decodeErr)
	}
	return data, nil
}

// decodeBody parses JSON when the response says so, otherwise returns text.
// Malformed JSON is returned as text together with the decode error.
func decodeBody(resp *http.Response) (interface{}, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		return string(raw), nil
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var data interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return string(raw), fmt.Errorf("decode json body: %w", err)
	}
	return data, nil
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
