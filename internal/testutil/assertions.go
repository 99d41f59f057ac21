package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VoiceGuardBackend/internal/capture"
)

// TestAssertions 测试断言助手
type TestAssertions struct {
	t *testing.T
}

// NewTestAssertions 创建测试断言助手
func NewTestAssertions(t *testing.T) *TestAssertions {
	return &TestAssertions{t: t}
}

// AssertSuccess 断言200且 success=true
func (ta *TestAssertions) AssertSuccess(resp *Response) {
	ta.t.Helper()
	require.Equal(ta.t, 200, resp.Status, "unexpected status, body: %s", resp.Raw)
	assert.Equal(ta.t, true, resp.Body["success"])
}

// AssertError 断言错误状态码和错误码
func (ta *TestAssertions) AssertError(resp *Response, status int, code string) {
	ta.t.Helper()
	assert.Equal(ta.t, status, resp.Status, "unexpected status, body: %s", resp.Raw)
	assert.Equal(ta.t, false, resp.Body["success"])
	assert.Equal(ta.t, code, resp.Body["code"])
}

// AssertWAVFile 断言WAV文件的格式和全部样本
func (ta *TestAssertions) AssertWAVFile(path string, sampleRate, channels int, want []int16) {
	ta.t.Helper()

	samples, format, err := capture.ReadWAVFile(path)
	require.NoError(ta.t, err)
	assert.Equal(ta.t, sampleRate, format.SampleRate)
	assert.Equal(ta.t, channels, format.NumChannels)
	assert.Equal(ta.t, want, samples)
	ta.t.Logf("✅ WAV assertion passed: %d samples", len(samples))
}
