package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-sync/internal/aggregator"
	"portfolio-sync/internal/api"
	"portfolio-sync/internal/common/logger"
	"portfolio-sync/internal/notifications"
	"portfolio-sync/pkg/registry"
)

func createTestRouter(t *testing.T) (http.Handler, *aggregator.Aggregator) {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)

	log := logger.NewTestLogger(t)
	client := api.NewMockClient(api.MockClientOptions{Registry: reg}, log)
	agg := aggregator.New(client, log, aggregator.Options{})
	sync := notifications.NewSynchronizer(client, notifications.Options{}, log)

	return newRouter(statusSources{
		aggregator:    agg,
		notifications: sync,
		authenticated: func() bool { return false },
		version:       "test",
	}), agg
}

func TestRouter_Health(t *testing.T) {
	router, _ := createTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "idle", body["aggregator"])
	assert.Equal(t, "inactive", body["notifications"])
	assert.Equal(t, false, body["authenticated"])
}

func TestRouter_Snapshot(t *testing.T) {
	router, agg := createTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshot", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	_, err := agg.Aggregate(context.Background(), false)
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshot", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var snap aggregator.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Len(t, snap.Portfolio.Projects, 3)
}

func TestRouter_NotFound(t *testing.T) {
	router, _ := createTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
