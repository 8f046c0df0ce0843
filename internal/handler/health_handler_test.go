package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCounter int

func (c fixedCounter) ConnectedCount() int { return int(c) }

type keyCheckFunc func(ctx context.Context) error

func (f keyCheckFunc) CheckAPIKey(ctx context.Context) error { return f(ctx) }

func newHealthRouter(sessions SessionCounter, synth KeyChecker) *mux.Router {
	router := mux.NewRouter()
	NewHealthHandler(nil, sessions, synth).SetupHealthRoutes(router)
	return router
}

func TestGetHealth(t *testing.T) {
	router := newHealthRouter(nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.NotEmpty(t, resp["timestamp"])
}

func TestGetReadinessReportsSessions(t *testing.T) {
	router := newHealthRouter(fixedCounter(3), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp["status"])
	assert.Equal(t, float64(3), resp["active_sessions"])
}

func TestGetDetailedHealthDegradedOnBadKey(t *testing.T) {
	badKey := keyCheckFunc(func(context.Context) error { return errors.New("401") })
	router := newHealthRouter(fixedCounter(0), badKey)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp["status"])

	components := resp["components"].(map[string]interface{})
	assert.Equal(t, "error", components["synthesis"])
}

func TestGetDetailedHealthHealthy(t *testing.T) {
	goodKey := keyCheckFunc(func(context.Context) error { return nil })
	router := newHealthRouter(fixedCounter(1), goodKey)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}
