package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VoiceGuardBackend/internal/capture"
	"VoiceGuardBackend/internal/testutil"
)

func newTestHandler(t *testing.T) (*SystemHandler, *capture.Manager) {
	t.Helper()
	cfg := capture.DefaultConfig()
	cfg.OutputDir = t.TempDir()
	devices := &testutil.FakeDevices{}
	manager := capture.NewManager(cfg, devices.Factory)
	return NewSystemHandler(nil, manager), manager
}

func TestHealthCheckWithoutDatabase(t *testing.T) {
	h, manager := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthCheck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "disabled", health.Checks["database"])
	assert.Equal(t, "idle", health.Checks["capture"])

	_, err := manager.Start()
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "recording", health.Checks["capture"])
}

func TestGetSystemStatus(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.GetSystemStatus(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var status SystemStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "VoiceGuard Backend", status.Platform)
	assert.Equal(t, "healthy", status.SystemHealth)
	assert.Equal(t, "memory", status.Database.Driver)
	assert.Equal(t, 44100, status.Capture.SampleRate)
	assert.NotEmpty(t, status.Endpoints)
}
