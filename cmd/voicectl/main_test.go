package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VoiceGuardBackend/internal/capture"
	"VoiceGuardBackend/internal/config"
	"VoiceGuardBackend/internal/httpserver"
	"VoiceGuardBackend/internal/testutil"
)

type cliEnv struct {
	server     *testutil.TestServer
	devices    *testutil.FakeDevices
	uploadsDir string
	reportsDir string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	env := &cliEnv{
		devices:    &testutil.FakeDevices{},
		uploadsDir: t.TempDir(),
		reportsDir: t.TempDir(),
	}

	captureCfg := capture.DefaultConfig()
	captureCfg.OutputDir = env.uploadsDir

	api := httpserver.NewAPIServer(
		config.ServerConfig{Addr: "127.0.0.1:0", DemoMessage: "hi"},
		config.StorageConfig{UploadsDir: env.uploadsDir, ReportsDir: env.reportsDir, MaxUploadBytes: 1 << 20},
		httpserver.Dependencies{Capture: capture.NewManager(captureCfg, env.devices.Factory)},
	)
	t.Cleanup(func() { api.Shutdown(context.Background()) })

	env.server = testutil.NewTestServer(t, api.Handler())
	return env
}

func (env *cliEnv) run(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(append([]string{"--server", env.server.GetHTTPURL()}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRecordingCommands(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("status")
	require.NoError(t, err)
	assert.Equal(t, "idle\n", out)

	out, err = env.run("start")
	require.NoError(t, err)
	assert.Equal(t, "Recording started\n", out)

	_, err = env.run("start")
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Status)
	assert.Equal(t, "already_recording", apiErr.Code)

	env.devices.Last().Emit(testutil.SyntheticChunk(10, 128))

	out, err = env.run("status")
	require.NoError(t, err)
	assert.Contains(t, out, "chunks=1 samples=128")

	out, err = env.run("stop", "--filename", "cli.wav")
	require.NoError(t, err)
	assert.Equal(t, "Saved "+filepath.Join(env.uploadsDir, "cli.wav")+"\n", out)

	_, err = env.run("stop")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "not_recording", apiErr.Code)
}

func TestFeedbackCommand(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("feedback", "works well", "--type", "suggestion", "--rating", "4")
	require.NoError(t, err)
	assert.Equal(t, "Feedback received\n", out)

	_, err = env.run("feedback", "works well", "--rating", "9")
	assert.Error(t, err)
}

func TestReportCommands(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.reportsDir, "report.pdf"), []byte("%PDF report"), 0o644))

	dest := t.TempDir()
	out, err := env.run("download", "report.pdf", "-o", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "Downloaded")

	content, err := os.ReadFile(filepath.Join(dest, "report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF report", string(content))

	_, err = env.run("download", "missing.pdf", "-o", dest)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)

	// 测试环境没有配置邮件服务
	_, err = env.run("share", "report.pdf", "--email", "analyst@example.com")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 503, apiErr.Status)

	_, err = env.run("share", "report.pdf")
	assert.Error(t, err)
}

func TestBenchCommand(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("bench", "--clients", "2", "--duration", "200ms")
	require.NoError(t, err)
	assert.Contains(t, out, "requests=")
	assert.Contains(t, out, "/api/data")
	assert.Contains(t, out, "failed=0 ")
}
