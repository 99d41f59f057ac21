package loadtest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPLoadTester(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	})
	mux.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	config := &HTTPLoadTestConfig{
		BaseURL:           server.URL,
		ConcurrentClients: 2,
		Duration:          300 * time.Millisecond,
		Timeout:           time.Second,
		Endpoints: []EndpointConfig{
			{Path: "/ok", Method: http.MethodGet, Weight: 3},
			{Path: "/fail", Method: http.MethodGet, Weight: 1},
		},
	}

	result, err := NewHTTPLoadTester(config).Run(context.Background())
	require.NoError(t, err)

	assert.Greater(t, result.TotalRequests, int64(0))
	assert.Equal(t, result.TotalRequests, result.SuccessfulRequests+result.FailedRequests)
	assert.Greater(t, result.StatusCodes[http.StatusOK], int64(0))
	assert.Greater(t, result.StatusCodes[http.StatusBadRequest], int64(0))
	require.Contains(t, result.EndpointStats, "/ok")
	assert.Zero(t, result.EndpointStats["/ok"].FailedRequests)
	assert.LessOrEqual(t, result.MinLatency, result.P50Latency)
	assert.LessOrEqual(t, result.P50Latency, result.MaxLatency)

	t.Logf("📊 %d requests, %.1f rps, p95=%.2fms", result.TotalRequests, result.RequestsPerSecond, result.P95Latency)
}

func TestSelectEndpointByWeight(t *testing.T) {
	tester := NewHTTPLoadTester(&HTTPLoadTestConfig{
		Endpoints: []EndpointConfig{
			{Path: "/a", Weight: 2},
			{Path: "/b", Weight: 1},
		},
	})

	counts := map[string]int{}
	for i := 0; i < 30; i++ {
		counts[tester.selectEndpoint(i).Path]++
	}
	assert.Equal(t, 20, counts["/a"])
	assert.Equal(t, 10, counts["/b"])
}

func TestValidateConfig(t *testing.T) {
	_, err := NewHTTPLoadTester(&HTTPLoadTestConfig{}).Run(context.Background())
	assert.Error(t, err)

	cfg := DefaultHTTPLoadTestConfig("http://localhost:5000")
	assert.NoError(t, NewHTTPLoadTester(cfg).validateConfig())
}
