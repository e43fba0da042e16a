package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dosdebug/broker/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackendStatus struct{ kind string }

func (f fakeBackendStatus) BackendKind() string { return f.kind }

type fakeHostMetrics struct{ data map[string]interface{} }

func (f fakeHostMetrics) Snapshot(ctx context.Context) (map[string]interface{}, error) {
	return f.data, nil
}

func TestHealthMonitor_GetHealth_Healthy(t *testing.T) {
	hm := NewHealthMonitor("test-1.0", fakeHostMetrics{data: map[string]interface{}{"cpu_percent": 1.5}}, fakeBackendStatus{kind: "qemu"})

	resp, err := hm.GetHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HealthStatusHealthy, resp.Status)
	assert.Equal(t, "qemu", resp.Backend)
	assert.Equal(t, 1.5, resp.Host["cpu_percent"])
}

func TestHealthMonitor_GetHealth_Unhealthy(t *testing.T) {
	hm := NewHealthMonitor("test-1.0", nil, nil)
	hm.UpdateComponentStatus("backend", HealthStatusUnhealthy, "connection lost", nil)

	resp, err := hm.GetHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HealthStatusUnhealthy, resp.Status)
}

func TestHTTPHealthServer_HandleHealth(t *testing.T) {
	hm := NewHealthMonitor("test-1.0", nil, fakeBackendStatus{kind: "dosbox"})
	hs, err := NewHTTPHealthServer(true, "127.0.0.1", 0, "/api/health", hm, logging.GetLogger("test-health"))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	hs.handleHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "dosbox", body["backend"])
}

func TestHTTPHealthServer_Disabled(t *testing.T) {
	hm := NewHealthMonitor("test-1.0", nil, nil)
	hs, err := NewHTTPHealthServer(false, "127.0.0.1", 0, "/api/health", hm, nil)
	require.NoError(t, err)

	err = hs.Start(context.Background())
	assert.NoError(t, err)
}
