package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VoiceGuardBackend/pkg/analyzer"
)

func scan(file string, issues ...*analyzer.Issue) *analyzer.Result {
	return &analyzer.Result{
		File:       "/uploads/" + file,
		Status:     analyzer.StatusNotImplemented,
		Audio:      &analyzer.AudioInfo{Format: analyzer.FormatWAV, DurationMs: 1500},
		Issues:     issues,
		AnalyzedAt: time.Now(),
	}
}

func TestSnapshot(t *testing.T) {
	d := NewDashboard()
	d.RecordScan(scan("first.wav"))
	d.RecordScan(scan("second.wav",
		&analyzer.Issue{ID: "AUDIO_002", Severity: "medium", Title: "采样率偏低", Description: "8000Hz"},
		&analyzer.Issue{ID: "AUDIO_005", Severity: "low", Title: "音量过低"},
	))

	data := d.Snapshot()
	assert.Equal(t, 2, data.Summary.TotalScans)
	assert.Equal(t, 2, data.Summary.PendingModel)
	assert.Equal(t, 0, data.Summary.AuthenticCount)

	require.Len(t, data.Tables, 1)
	rows := data.Tables[0].Rows
	require.Len(t, rows, 2)
	assert.Equal(t, "second.wav", rows[0][1])
	assert.Equal(t, "pending", rows[0][2])

	// low 级别的问题不产生告警
	require.Len(t, data.Alerts, 1)
	assert.Equal(t, "warning", data.Alerts[0].Level)
	assert.Contains(t, data.Alerts[0].Message, "second.wav")
}

func TestRecentScansBounded(t *testing.T) {
	d := NewDashboard()
	for i := 0; i < maxRecentScans+10; i++ {
		d.RecordScan(scan("clip.wav"))
	}

	data := d.Snapshot()
	assert.Equal(t, maxRecentScans+10, data.Summary.TotalScans)
	assert.Len(t, data.Tables[0].Rows, maxRecentScans)
}

func TestDashboardRoute(t *testing.T) {
	d := NewDashboard()
	d.RecordScan(scan("clip.wav"))

	router := mux.NewRouter()
	d.RegisterRoutes(router, func() interface{} { return map[string]bool{"active": false} })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/data", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "VoiceGuard", body["title"])
	assert.Equal(t, map[string]interface{}{"active": false}, body["capture"])
}
