package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestServer 测试服务器包装器
type TestServer struct {
	*httptest.Server
	t *testing.T
}

// NewTestServer 启动测试服务器，测试结束时自动关闭
func NewTestServer(t *testing.T, handler http.Handler) *TestServer {
	t.Helper()

	ts := &TestServer{
		Server: httptest.NewServer(handler),
		t:      t,
	}
	t.Cleanup(ts.Stop)

	t.Logf("✅ Test server started on %s", ts.URL)
	return ts
}

// Stop 停止测试服务器
func (ts *TestServer) Stop() {
	if ts.Server != nil {
		ts.Server.Close()
		ts.Server = nil
		ts.t.Logf("🛑 Test server stopped")
	}
}

// GetHTTPURL 获取HTTP URL
func (ts *TestServer) GetHTTPURL() string {
	return ts.URL
}

// GetWebSocketURL 获取指定路径的WebSocket URL
func (ts *TestServer) GetWebSocketURL(path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}
