package httpserver

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"

	"VoiceGuardBackend/api/handlers"
	"VoiceGuardBackend/internal/capture"
	"VoiceGuardBackend/internal/config"
	"VoiceGuardBackend/internal/feedback"
	"VoiceGuardBackend/internal/logger"
	"VoiceGuardBackend/internal/reports"
	"VoiceGuardBackend/pkg/analyzer"
	"VoiceGuardBackend/pkg/dashboard"
)

const defaultMaxUploadBytes = 50 << 20

// Dependencies APIServer 依赖的服务
type Dependencies struct {
	Capture  *capture.Manager
	Feedback feedback.Store
	Analyzer *analyzer.AudioAnalyzer
	Reports  *reports.Store
	Sharer   *reports.Sharer
	Logger   *logger.WebSocketLogger
	Pool     *pgxpool.Pool // 可选
}

// APIServer HTTP API服务器
type APIServer struct {
	router  *mux.Router
	server  *http.Server
	config  config.ServerConfig
	storage config.StorageConfig

	capture   *capture.Manager
	feedback  feedback.Store
	analyzer  *analyzer.AudioAnalyzer
	reports   *reports.Store
	sharer    *reports.Sharer
	logger    *logger.WebSocketLogger
	system    *handlers.SystemHandler
	dashboard *dashboard.Dashboard

	ownsLogger bool

	// 统计信息
	requestCount int64
	responseTime []time.Duration
	errorCount   int64
	startTime    time.Time
	mu           sync.RWMutex
}

// API响应结构
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Code      string      `json:"code,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// compatResponse 在统一响应结构之外保留前端直接读取的顶层字段
type compatResponse struct {
	APIResponse
	FilePath string  `json:"file_path,omitempty"`
	Feedback *string `json:"feedback,omitempty"`
}

// NewAPIServer 创建新的HTTP API服务器
func NewAPIServer(cfg config.ServerConfig, storage config.StorageConfig, deps Dependencies) *APIServer {
	server := &APIServer{
		router:    mux.NewRouter(),
		config:    cfg,
		storage:   storage,
		capture:   deps.Capture,
		feedback:  deps.Feedback,
		analyzer:  deps.Analyzer,
		reports:   deps.Reports,
		sharer:    deps.Sharer,
		logger:    deps.Logger,
		startTime: time.Now(),
	}

	if server.feedback == nil {
		server.feedback = feedback.NewMemoryStore(0)
	}
	if server.reports == nil {
		server.reports = reports.NewStore(storage.ReportsDir)
	}
	if server.sharer == nil {
		server.sharer = reports.NewSharer(server.reports, nil)
	}
	if server.storage.MaxUploadBytes <= 0 {
		server.storage.MaxUploadBytes = defaultMaxUploadBytes
	}
	if server.analyzer == nil {
		server.analyzer = analyzer.NewAudioAnalyzer()
	}
	if server.logger == nil {
		server.logger = logger.NewWebSocketLogger()
		server.ownsLogger = true
		go server.logger.Run()
	}
	server.system = handlers.NewSystemHandler(deps.Pool, server.capture)
	server.dashboard = dashboard.NewDashboard()
	server.capture.SetEventHandler(server.publishCaptureEvent)

	server.setupRoutes()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	server.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      c.Handler(server.router),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return server
}

// setupRoutes 设置路由
func (s *APIServer) setupRoutes() {
	// 添加中间件
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.metricsMiddleware)

	// 前端直接调用的路由
	s.router.HandleFunc("/api/data", s.dataHandler).Methods("GET")
	s.router.HandleFunc("/api/feedback", s.submitFeedbackHandler).Methods("POST")
	s.router.HandleFunc("/api/feedback", s.listFeedbackHandler).Methods("GET")

	// 录音
	s.router.HandleFunc("/record-audio", s.recordAudioHandler).Methods("POST")
	s.router.HandleFunc("/stop-recording", s.stopRecordingHandler).Methods("POST")
	s.router.HandleFunc("/recording-status", s.recordingStatusHandler).Methods("GET")

	// 上传与报告
	s.router.HandleFunc("/upload-audio", s.uploadAudioHandler).Methods("POST")
	s.router.HandleFunc("/reports", s.listReportsHandler).Methods("GET")
	s.router.HandleFunc("/download-report/{filename}", s.downloadReportHandler).Methods("GET")
	s.router.HandleFunc("/share-report", s.shareReportHandler).Methods("POST")

	// 仪表板
	s.dashboard.RegisterRoutes(s.router, func() interface{} { return s.capture.Status() })

	// 健康检查和监控
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.system.HealthCheck).Methods("GET")
	api.HandleFunc("/status", s.system.GetSystemStatus).Methods("GET")
	api.HandleFunc("/metrics", s.metricsHandler).Methods("GET")
	api.HandleFunc("/logs/ws", s.logger.HandleWebSocket)
}

// 中间件
func (s *APIServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		duration := time.Since(start)
		log.Printf("%s %s %s %v", r.Method, r.RequestURI, r.RemoteAddr, duration)
	})
}

func (s *APIServer) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		duration := time.Since(start)

		s.mu.Lock()
		s.requestCount++
		s.responseTime = append(s.responseTime, duration)
		// 保持最近1000个请求的响应时间
		if len(s.responseTime) > 1000 {
			s.responseTime = s.responseTime[1:]
		}
		s.mu.Unlock()
	})
}

func (s *APIServer) dataHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, compatResponse{
		APIResponse: APIResponse{
			Success:   true,
			Message:   s.config.DemoMessage,
			Timestamp: time.Now().UnixMilli(),
		},
	})
}

func (s *APIServer) metricsHandler(w http.ResponseWriter, r *http.Request) {
	metrics := s.GetStats()
	metrics["capture_sessions"] = s.capture.Status().TotalSessions
	metrics["log_subscribers"] = s.logger.ClientCount()
	s.writeSuccessResponse(w, metrics)
}

// 辅助方法
func (s *APIServer) writeSuccessResponse(w http.ResponseWriter, data interface{}) {
	response := APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
	s.writeJSONResponse(w, http.StatusOK, response)
}

func (s *APIServer) writeErrorResponse(w http.ResponseWriter, statusCode int, code, message string) {
	s.mu.Lock()
	s.errorCount++
	s.mu.Unlock()

	response := APIResponse{
		Success:   false,
		Message:   message,
		Code:      code,
		Timestamp: time.Now().UnixMilli(),
	}
	s.writeJSONResponse(w, statusCode, response)
}

func (s *APIServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("写入响应失败: %v", err)
	}
}

// Handler 带CORS的完整处理链，测试中直接挂到 httptest.Server
func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

// Start 启动服务器
func (s *APIServer) Start() error {
	log.Printf("Starting HTTP API server on %s", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown 停止接收请求，丢弃未保存的录音并关闭日志广播
func (s *APIServer) Shutdown(ctx context.Context) error {
	log.Printf("Stopping HTTP API server")
	err := s.server.Shutdown(ctx)

	if captureErr := s.capture.Shutdown(ctx); captureErr != nil {
		log.Printf("关闭采集设备失败: %v", captureErr)
	}
	if s.ownsLogger {
		s.logger.Stop()
	}
	return err
}

// GetStats 获取服务器统计信息
func (s *APIServer) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var avgResponseTime float64
	if len(s.responseTime) > 0 {
		var total time.Duration
		for _, rt := range s.responseTime {
			total += rt
		}
		avgResponseTime = float64(total.Nanoseconds()) / float64(len(s.responseTime)) / 1e6
	}

	return map[string]interface{}{
		"uptime_seconds":       time.Since(s.startTime).Seconds(),
		"total_requests":       s.requestCount,
		"error_count":          s.errorCount,
		"avg_response_time_ms": avgResponseTime,
	}
}
