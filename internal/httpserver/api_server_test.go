package httpserver

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VoiceGuardBackend/internal/capture"
	"VoiceGuardBackend/internal/config"
	"VoiceGuardBackend/internal/logger"
	"VoiceGuardBackend/internal/reports"
	"VoiceGuardBackend/internal/testutil"
)

type testAPI struct {
	api        *APIServer
	server     *testutil.TestServer
	client     *testutil.TestClient
	check      *testutil.TestAssertions
	devices    *testutil.FakeDevices
	uploadsDir string
	reportsDir string
}

type fakeSender struct {
	err  error
	sent []string
}

func (f *fakeSender) Configured() bool { return true }

func (f *fakeSender) Send(_ context.Context, to, _, _, attachmentPath string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to+" "+filepath.Base(attachmentPath))
	return nil
}

func newTestAPI(t *testing.T, sender reports.Sender) *testAPI {
	t.Helper()

	uploadsDir := filepath.Join(t.TempDir(), "uploads")
	reportsDir := t.TempDir()

	captureCfg := capture.DefaultConfig()
	captureCfg.OutputDir = uploadsDir
	captureCfg.CloseTimeout = 500 * time.Millisecond
	devices := &testutil.FakeDevices{}

	store := reports.NewStore(reportsDir)
	api := NewAPIServer(
		config.ServerConfig{
			Addr:           "127.0.0.1:0",
			AllowedOrigins: []string{"*"},
			DemoMessage:    "Hello from VoiceGuard!",
		},
		config.StorageConfig{
			UploadsDir:     uploadsDir,
			ReportsDir:     reportsDir,
			MaxUploadBytes: 1 << 20,
		},
		Dependencies{
			Capture: capture.NewManager(captureCfg, devices.Factory),
			Reports: store,
			Sharer:  reports.NewSharer(store, sender),
		},
	)
	t.Cleanup(func() { api.Shutdown(context.Background()) })

	server := testutil.NewTestServer(t, api.Handler())
	return &testAPI{
		api:        api,
		server:     server,
		client:     testutil.NewTestClient(t, server.GetHTTPURL()),
		check:      testutil.NewTestAssertions(t),
		devices:    devices,
		uploadsDir: uploadsDir,
		reportsDir: reportsDir,
	}
}

func TestDemoData(t *testing.T) {
	ta := newTestAPI(t, nil)

	resp := ta.client.Get("/api/data")
	ta.check.AssertSuccess(resp)
	assert.Equal(t, "Hello from VoiceGuard!", resp.Body["message"])
}

func TestCORSHeaders(t *testing.T) {
	ta := newTestAPI(t, nil)

	req, err := http.NewRequest(http.MethodGet, ta.server.GetHTTPURL()+"/api/data", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRecordAndStopRoundTrip(t *testing.T) {
	ta := newTestAPI(t, nil)

	resp := ta.client.PostJSON("/record-audio", nil)
	ta.check.AssertSuccess(resp)
	assert.Equal(t, "Recording started", resp.Body["message"])

	dev := ta.devices.Last()
	require.NotNil(t, dev)
	var want []int16
	for i := 0; i < 4; i++ {
		chunk := testutil.SyntheticChunk(int16(i*1000), 256)
		want = append(want, chunk...)
		dev.Emit(chunk)
	}

	resp = ta.client.Get("/recording-status")
	ta.check.AssertSuccess(resp)
	assert.Equal(t, true, resp.Data()["active"])
	assert.EqualValues(t, 4, resp.Data()["chunks"])

	resp = ta.client.PostJSON("/stop-recording", nil)
	ta.check.AssertSuccess(resp)
	path := resp.Body["file_path"].(string)
	assert.Equal(t, filepath.Join(ta.uploadsDir, "recorded_audio.wav"), path)

	ta.check.AssertWAVFile(path, 44100, 1, want)
	assert.True(t, dev.Closed())

	t.Log("✅ 录音接口往返成功")
}

func TestRecordTwiceRejected(t *testing.T) {
	ta := newTestAPI(t, nil)

	ta.check.AssertSuccess(ta.client.PostJSON("/record-audio", nil))

	resp := ta.client.PostJSON("/record-audio", nil)
	ta.check.AssertError(resp, http.StatusBadRequest, "already_recording")
	assert.Equal(t, 1, ta.devices.Count())
}

func TestStopWithoutRecording(t *testing.T) {
	ta := newTestAPI(t, nil)

	resp := ta.client.PostJSON("/stop-recording", nil)
	ta.check.AssertError(resp, http.StatusBadRequest, "not_recording")
}

func TestStopEmptyRecording(t *testing.T) {
	ta := newTestAPI(t, nil)

	ta.check.AssertSuccess(ta.client.PostJSON("/record-audio", nil))

	resp := ta.client.PostJSON("/stop-recording", nil)
	ta.check.AssertError(resp, http.StatusBadRequest, "empty_recording")

	_, err := os.Stat(filepath.Join(ta.uploadsDir, "recorded_audio.wav"))
	assert.True(t, os.IsNotExist(err))

	// 空录音同样结束会话
	resp = ta.client.Get("/recording-status")
	ta.check.AssertSuccess(resp)
	assert.Equal(t, false, resp.Data()["active"])
}

func TestStopWithFilename(t *testing.T) {
	ta := newTestAPI(t, nil)

	ta.check.AssertSuccess(ta.client.PostJSON("/record-audio", nil))
	ta.devices.Last().Emit(testutil.SyntheticChunk(1, 64))

	resp := ta.client.PostJSON("/stop-recording", map[string]string{"filename": "../escape.wav"})
	ta.check.AssertError(resp, http.StatusBadRequest, "invalid_filename")

	resp = ta.client.PostJSON("/stop-recording", map[string]string{"filename": "take1"})
	ta.check.AssertSuccess(resp)
	assert.Equal(t, filepath.Join(ta.uploadsDir, "take1.wav"), resp.Body["file_path"])
}

func TestRecordDeviceFailure(t *testing.T) {
	ta := newTestAPI(t, nil)
	ta.devices.OpenErr = assert.AnError

	resp := ta.client.PostJSON("/record-audio", nil)
	ta.check.AssertError(resp, http.StatusInternalServerError, "device_error")
}

func TestFeedback(t *testing.T) {
	ta := newTestAPI(t, nil)

	resp := ta.client.PostJSON("/api/feedback", map[string]interface{}{
		"feedback": "Detection looks accurate",
		"type":     "suggestion",
		"rating":   5,
	})
	ta.check.AssertSuccess(resp)
	assert.Equal(t, "Feedback received", resp.Body["message"])
	assert.Equal(t, "Detection looks accurate", resp.Body["feedback"])

	resp = ta.client.PostJSON("/api/feedback", map[string]string{"feedback": "  "})
	ta.check.AssertError(resp, http.StatusBadRequest, "empty_feedback")

	resp = ta.client.Get("/api/feedback?limit=5")
	ta.check.AssertSuccess(resp)
	entries := resp.Body["data"].([]interface{})
	require.Len(t, entries, 1)
	assert.Equal(t, "suggestion", entries[0].(map[string]interface{})["type"])

	resp = ta.client.Get("/api/feedback?limit=abc")
	ta.check.AssertError(resp, http.StatusBadRequest, "invalid_limit")
}

func wavBytes(t *testing.T, samples int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, 44100, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 44100},
		Data:           make([]int, samples),
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestUploadAudio(t *testing.T) {
	ta := newTestAPI(t, nil)

	resp := ta.client.Upload("/upload-audio", "file", "../../voice sample.wav", wavBytes(t, 44100))
	ta.check.AssertSuccess(resp)

	path := resp.Body["file_path"].(string)
	assert.Equal(t, ta.uploadsDir, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, "_voice_sample.wav"))
	assert.FileExists(t, path)

	analysis := resp.Data()["analysis"].(map[string]interface{})
	assert.Equal(t, "not_implemented", analysis["status"])
	assert.Equal(t, false, analysis["is_deepfake"])
	assert.Equal(t, "wav", analysis["audio"].(map[string]interface{})["format"])

	resp = ta.client.Get("/api/dashboard/data")
	require.Equal(t, http.StatusOK, resp.Status)
	assert.EqualValues(t, 1, resp.Body["summary"].(map[string]interface{})["total_scans"])

	resp = ta.client.Upload("/upload-audio", "other", "clip.wav", []byte("x"))
	ta.check.AssertError(resp, http.StatusBadRequest, "missing_file")

	resp = ta.client.Upload("/upload-audio", "file", "huge.wav", make([]byte, 1<<20+1024))
	ta.check.AssertError(resp, http.StatusRequestEntityTooLarge, "file_too_large")
}

func TestReports(t *testing.T) {
	sender := &fakeSender{}
	ta := newTestAPI(t, sender)
	require.NoError(t, os.WriteFile(filepath.Join(ta.reportsDir, "report.pdf"), []byte("%PDF-1.4 report"), 0o644))

	resp := ta.client.Get("/reports")
	ta.check.AssertSuccess(resp)
	assert.Len(t, resp.Body["data"].([]interface{}), 1)

	resp = ta.client.Get("/download-report/report.pdf")
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "%PDF-1.4 report", string(resp.Raw))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")

	ta.check.AssertError(ta.client.Get("/download-report/missing.pdf"), http.StatusNotFound, "report_not_found")
	ta.check.AssertError(ta.client.Get("/download-report/.hidden"), http.StatusBadRequest, "invalid_filename")

	share := func(email, name string) *testutil.Response {
		return ta.client.PostJSON("/share-report", map[string]string{"email": email, "filename": name})
	}

	ta.check.AssertSuccess(share("analyst@example.com", "report.pdf"))
	assert.Equal(t, []string{"analyst@example.com report.pdf"}, sender.sent)

	ta.check.AssertError(share("nope", "report.pdf"), http.StatusBadRequest, "invalid_email")
	ta.check.AssertError(share("analyst@example.com", "missing.pdf"), http.StatusNotFound, "report_not_found")

	sender.err = reports.ErrSendFailed
	ta.check.AssertError(share("analyst@example.com", "report.pdf"), http.StatusBadGateway, "send_failed")
}

func TestShareWithoutMailConfigured(t *testing.T) {
	ta := newTestAPI(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(ta.reportsDir, "report.pdf"), []byte("r"), 0o644))

	resp := ta.client.PostJSON("/share-report", map[string]string{"email": "analyst@example.com", "filename": "report.pdf"})
	ta.check.AssertError(resp, http.StatusServiceUnavailable, "mail_not_configured")
}

func TestHealthAndMetrics(t *testing.T) {
	ta := newTestAPI(t, nil)

	resp := ta.client.Get("/api/v1/health")
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "healthy", resp.Body["status"])

	resp = ta.client.Get("/api/v1/metrics")
	ta.check.AssertSuccess(resp)
	assert.Contains(t, resp.Data(), "total_requests")
	assert.Contains(t, resp.Data(), "capture_sessions")
}

func TestCaptureEventsOnLogStream(t *testing.T) {
	ta := newTestAPI(t, nil)

	stream := testutil.DialLogStream(t, ta.server.GetWebSocketURL("/api/v1/logs/ws"))
	require.Eventually(t, func() bool { return ta.api.logger.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	ta.check.AssertSuccess(ta.client.PostJSON("/record-audio", nil))
	ta.devices.Last().Emit(testutil.SyntheticChunk(1, 32))
	ta.check.AssertSuccess(ta.client.PostJSON("/stop-recording", nil))

	started, ok := stream.WaitForMessage(func(msg logger.LogMessage) bool {
		return msg.Module == captureModule && msg.Level == "INFO"
	}, 2*time.Second)
	require.True(t, ok)
	assert.Contains(t, started.Message, "录音开始")

	stopped, ok := stream.WaitForMessage(func(msg logger.LogMessage) bool {
		return msg.Module == captureModule && msg.Level == "SUCCESS"
	}, 2*time.Second)
	require.True(t, ok)
	assert.Contains(t, stopped.Message, "recorded_audio.wav")
}
