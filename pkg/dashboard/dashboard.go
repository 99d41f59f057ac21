// Package dashboard 汇总上传分析结果，供前端仪表板页面使用
package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"VoiceGuardBackend/pkg/analyzer"
)

const maxRecentScans = 50

// Dashboard 仪表板数据源
type Dashboard struct {
	mu         sync.RWMutex
	scans      []*analyzer.Result // 最近的分析结果，旧的在前
	alerts     []*AlertData
	totalScans int
	deepfakes  int
	pending    int
	confidence float64
}

// DashboardData 仪表板数据
type DashboardData struct {
	Title      string       `json:"title"`
	LastUpdate time.Time    `json:"last_update"`
	Summary    *SummaryCard `json:"summary"`
	Tables     []*TableData `json:"tables"`
	Alerts     []*AlertData `json:"alerts"`
	Capture    interface{}  `json:"capture,omitempty"`
}

// SummaryCard 摘要卡片
type SummaryCard struct {
	TotalScans        int     `json:"total_scans"`
	DeepfakesDetected int     `json:"deepfakes_detected"`
	AuthenticCount    int     `json:"authentic"`
	PendingModel      int     `json:"pending_model"` // 模型未接入时返回占位结论的数量
	AverageConfidence float64 `json:"average_confidence"`
}

// TableData 表格数据
type TableData struct {
	ID      string          `json:"id"`
	Title   string          `json:"title"`
	Headers []string        `json:"headers"`
	Rows    [][]interface{} `json:"rows"`
}

// AlertData 告警数据
type AlertData struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"` // "error", "warning", "info"
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewDashboard 创建仪表板
func NewDashboard() *Dashboard {
	return &Dashboard{}
}

// RegisterRoutes 注册路由，capture 返回当前录音状态
func (d *Dashboard) RegisterRoutes(router *mux.Router, capture func() interface{}) {
	router.HandleFunc("/api/dashboard/data", func(w http.ResponseWriter, r *http.Request) {
		data := d.Snapshot()
		if capture != nil {
			data.Capture = capture()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(data)
	}).Methods("GET")
}

// RecordScan 记录一次分析结果
func (d *Dashboard) RecordScan(result *analyzer.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.totalScans++
	switch {
	case result.Status == analyzer.StatusNotImplemented:
		d.pending++
	case result.IsDeepfake:
		d.deepfakes++
	}
	d.confidence += result.Confidence

	d.scans = append(d.scans, result)
	if len(d.scans) > maxRecentScans {
		d.scans = d.scans[1:]
	}

	for _, issue := range result.Issues {
		if issue.Severity == "low" {
			continue
		}
		level := "warning"
		if issue.Severity == "high" {
			level = "error"
		}
		d.alerts = append(d.alerts, &AlertData{
			ID:        fmt.Sprintf("alert_%03d", d.totalScans),
			Level:     level,
			Title:     issue.Title,
			Message:   fmt.Sprintf("%s: %s", filepath.Base(result.File), issue.Description),
			Timestamp: result.AnalyzedAt,
		})
	}
	if len(d.alerts) > maxRecentScans {
		d.alerts = d.alerts[len(d.alerts)-maxRecentScans:]
	}
}

// Snapshot 生成当前仪表板数据，最新的记录在前
func (d *Dashboard) Snapshot() *DashboardData {
	d.mu.RLock()
	defer d.mu.RUnlock()

	summary := &SummaryCard{
		TotalScans:        d.totalScans,
		DeepfakesDetected: d.deepfakes,
		AuthenticCount:    d.totalScans - d.deepfakes - d.pending,
		PendingModel:      d.pending,
	}
	if d.totalScans > 0 {
		summary.AverageConfidence = d.confidence / float64(d.totalScans)
	}

	rows := make([][]interface{}, 0, len(d.scans))
	for i := len(d.scans) - 1; i >= 0; i-- {
		scan := d.scans[i]
		rows = append(rows, []interface{}{
			scan.AnalyzedAt.Format(time.DateTime),
			filepath.Base(scan.File),
			verdict(scan),
			scan.Confidence,
			scan.Audio.DurationMs,
		})
	}

	alerts := make([]*AlertData, 0, len(d.alerts))
	for i := len(d.alerts) - 1; i >= 0; i-- {
		alerts = append(alerts, d.alerts[i])
	}

	return &DashboardData{
		Title:      "VoiceGuard",
		LastUpdate: time.Now(),
		Summary:    summary,
		Tables: []*TableData{
			{
				ID:      "recent_scans",
				Title:   "最近分析",
				Headers: []string{"时间", "文件", "结论", "置信度", "时长(ms)"},
				Rows:    rows,
			},
		},
		Alerts: alerts,
	}
}

func verdict(result *analyzer.Result) string {
	switch {
	case result.Status == analyzer.StatusNotImplemented:
		return "pending"
	case result.IsDeepfake:
		return "deepfake"
	default:
		return "authentic"
	}
}
