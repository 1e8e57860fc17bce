package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-pipeline/internal/metrics"
)

func TestHealthz(t *testing.T) {
	h := Router(map[string]Check{
		"store": func(ctx context.Context) error { return nil },
		"queue": func(ctx context.Context) error { return errors.New("connection refused") },
	}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["store"])
	assert.Equal(t, "connection refused", body["queue"])
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.ObserveStage("script", "ok", 0)
	h := Router(nil, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pipeline_stage_total{result="ok",stage="script"}`)
}
