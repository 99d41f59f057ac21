package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"VoiceGuardBackend/internal/capture"
	"VoiceGuardBackend/internal/database"
)

const pingTimeout = 2 * time.Second

// SystemHandler 系统状态与健康检查
type SystemHandler struct {
	pool      *pgxpool.Pool // 未配置数据库时为nil
	capture   *capture.Manager
	startTime time.Time
}

// NewSystemHandler 创建系统处理器
func NewSystemHandler(pool *pgxpool.Pool, manager *capture.Manager) *SystemHandler {
	return &SystemHandler{
		pool:      pool,
		capture:   manager,
		startTime: time.Now(),
	}
}

// SystemStatus 系统状态响应
type SystemStatus struct {
	Platform     string            `json:"platform"`
	Version      string            `json:"version"`
	Uptime       string            `json:"uptime"`
	StartTime    time.Time         `json:"start_time"`
	Database     DatabaseStatus    `json:"database"`
	Capture      capture.Status    `json:"capture"`
	SystemHealth string            `json:"system_health"`
	Memory       MemoryStats       `json:"memory"`
	Features     []string          `json:"features"`
	Endpoints    map[string]string `json:"endpoints"`
}

// DatabaseStatus 数据库状态
type DatabaseStatus struct {
	Status    string                 `json:"status"`
	Connected bool                   `json:"connected"`
	Driver    string                 `json:"driver"`
	Message   string                 `json:"message"`
	PoolStats map[string]interface{} `json:"pool_stats,omitempty"`
}

// MemoryStats 内存统计
type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

// HealthCheck 健康检查响应
type HealthCheck struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]string      `json:"checks"`
	Details   map[string]interface{} `json:"details"`
}

// GetSystemStatus 获取系统状态
// GET /api/v1/status
func (h *SystemHandler) GetSystemStatus(w http.ResponseWriter, r *http.Request) {
	dbStatus := h.databaseStatus(r.Context())

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	systemHealth := "healthy"
	if dbStatus.Status == "error" {
		systemHealth = "degraded"
	}

	status := SystemStatus{
		Platform:     "VoiceGuard Backend",
		Version:      "1.0.0",
		Uptime:       time.Since(h.startTime).String(),
		StartTime:    h.startTime,
		Database:     dbStatus,
		Capture:      h.capture.Status(),
		SystemHealth: systemHealth,
		Memory: MemoryStats{
			Alloc:      m.Alloc,
			TotalAlloc: m.TotalAlloc,
			Sys:        m.Sys,
			NumGC:      m.NumGC,
		},
		Features: []string{
			"Live microphone capture",
			"WAV encoding",
			"Audio upload",
			"Feedback collection",
			"Report download and email sharing",
			"Real-time log stream",
		},
		Endpoints: map[string]string{
			"api_status":       "/api/v1/status",
			"health":           "/api/v1/health",
			"record_audio":     "/record-audio",
			"stop_recording":   "/stop-recording",
			"recording_status": "/recording-status",
			"logs":             "/api/v1/logs/ws",
		},
	}

	writeJSON(w, http.StatusOK, status)
}

// HealthCheck 健康检查
// GET /api/v1/health
func (h *SystemHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	details := make(map[string]interface{})
	overallStatus := "healthy"

	// 数据库是可选的，未配置时反馈写入内存
	dbStatus := h.databaseStatus(r.Context())
	checks["database"] = dbStatus.Status
	details["database"] = dbStatus
	if dbStatus.Status == "error" {
		overallStatus = "unhealthy"
	}

	captureStatus := h.capture.Status()
	checks["capture"] = "idle"
	if captureStatus.Active {
		checks["capture"] = "recording"
	}
	details["capture"] = captureStatus

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	// 检查内存使用是否过高 (超过1GB认为不健康)
	if m.Alloc > 1024*1024*1024 {
		checks["memory"] = "warning"
		if overallStatus == "healthy" {
			overallStatus = "degraded"
		}
	} else {
		checks["memory"] = "healthy"
	}

	details["memory"] = map[string]interface{}{
		"alloc_mb":   float64(m.Alloc) / 1024 / 1024,
		"sys_mb":     float64(m.Sys) / 1024 / 1024,
		"num_gc":     m.NumGC,
		"goroutines": runtime.NumGoroutine(),
	}
	details["uptime"] = time.Since(h.startTime).String()

	health := HealthCheck{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Checks:    checks,
		Details:   details,
	}

	// degraded 仍然返回200
	statusCode := http.StatusOK
	if overallStatus == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, health)
}

func (h *SystemHandler) databaseStatus(ctx context.Context) DatabaseStatus {
	if h.pool == nil {
		return DatabaseStatus{
			Status:  "disabled",
			Driver:  "memory",
			Message: "database.dsn not set, feedback is kept in memory",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := h.pool.Ping(ctx); err != nil {
		return DatabaseStatus{
			Status:  "error",
			Driver:  "pgx/v5",
			Message: err.Error(),
		}
	}
	return DatabaseStatus{
		Status:    "healthy",
		Connected: true,
		Driver:    "pgx/v5",
		Message:   "PostgreSQL connection is healthy",
		PoolStats: database.PoolStats(h.pool),
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}
