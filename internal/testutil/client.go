package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"VoiceGuardBackend/internal/logger"
)

// Response 解析后的HTTP响应
type Response struct {
	Status int
	Header http.Header
	Raw    []byte
	Body   map[string]interface{}
}

// Data 响应中的 data 字段
func (r *Response) Data() map[string]interface{} {
	data, _ := r.Body["data"].(map[string]interface{})
	return data
}

// TestClient HTTP测试客户端
type TestClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

// NewTestClient 创建测试客户端
func NewTestClient(t *testing.T, baseURL string) *TestClient {
	return &TestClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		t:       t,
	}
}

// Do 发送请求，body 非 nil 时编码为JSON
func (tc *TestClient) Do(method, path string, body interface{}) *Response {
	tc.t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(tc.t, err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, tc.baseURL+path, reader)
	require.NoError(tc.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return tc.send(req)
}

// Get 发送GET请求
func (tc *TestClient) Get(path string) *Response {
	tc.t.Helper()
	return tc.Do(http.MethodGet, path, nil)
}

// PostJSON 发送POST请求
func (tc *TestClient) PostJSON(path string, body interface{}) *Response {
	tc.t.Helper()
	return tc.Do(http.MethodPost, path, body)
}

// Upload 以 multipart 表单上传文件
func (tc *TestClient) Upload(path, field, filename string, content []byte) *Response {
	tc.t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(tc.t, err)
	_, err = part.Write(content)
	require.NoError(tc.t, err)
	require.NoError(tc.t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, tc.baseURL+path, &buf)
	require.NoError(tc.t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return tc.send(req)
}

func (tc *TestClient) send(req *http.Request) *Response {
	tc.t.Helper()

	resp, err := tc.client.Do(req)
	require.NoError(tc.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(tc.t, err)

	result := &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Raw:    raw,
	}
	// 非JSON响应（例如文件下载）只保留原始内容
	if json.Valid(raw) {
		json.Unmarshal(raw, &result.Body)
	}
	tc.t.Logf("📥 %s %s -> %d", req.Method, req.URL.Path, resp.StatusCode)
	return result
}

// LogStreamClient 订阅日志流并收集消息
type LogStreamClient struct {
	conn *websocket.Conn
	t    *testing.T

	mu       sync.RWMutex
	messages []logger.LogMessage
	done     chan struct{}
}

// DialLogStream 连接日志流，返回前会读到欢迎消息
func DialLogStream(t *testing.T, wsURL string) *LogStreamClient {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	var welcome logger.LogMessage
	require.NoError(t, conn.ReadJSON(&welcome))

	lc := &LogStreamClient{
		conn: conn,
		t:    t,
		done: make(chan struct{}),
	}
	go lc.readLoop()
	t.Cleanup(lc.Close)
	return lc
}

func (lc *LogStreamClient) readLoop() {
	defer close(lc.done)
	for {
		var msg logger.LogMessage
		if err := lc.conn.ReadJSON(&msg); err != nil {
			return
		}
		lc.mu.Lock()
		lc.messages = append(lc.messages, msg)
		lc.mu.Unlock()
	}
}

// WaitForMessage 等待满足条件的消息
func (lc *LogStreamClient) WaitForMessage(match func(logger.LogMessage) bool, timeout time.Duration) (logger.LogMessage, bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		lc.mu.RLock()
		for _, msg := range lc.messages {
			if match(msg) {
				lc.mu.RUnlock()
				return msg, true
			}
		}
		lc.mu.RUnlock()
		time.Sleep(10 * time.Millisecond)
	}
	return logger.LogMessage{}, false
}

// Messages 已收到的消息
func (lc *LogStreamClient) Messages() []logger.LogMessage {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return append([]logger.LogMessage(nil), lc.messages...)
}

// Close 关闭连接并等待读循环退出
func (lc *LogStreamClient) Close() {
	lc.conn.Close()
	<-lc.done
}
