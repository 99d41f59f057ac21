// Package loadtest 对 VoiceGuard HTTP 接口做并发压测
package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// HTTPLoadTestConfig HTTP负载测试配置
type HTTPLoadTestConfig struct {
	BaseURL           string
	Endpoints         []EndpointConfig
	ConcurrentClients int
	Duration          time.Duration
	TargetRPS         int // 目标每秒请求数，0 表示不限速
	Timeout           time.Duration
}

// EndpointConfig 端点配置
type EndpointConfig struct {
	Path   string      `json:"path"`
	Method string      `json:"method"`
	Body   interface{} `json:"body,omitempty"`
	Weight int         `json:"weight"` // 权重，用于分配请求比例
}

// HTTPLoadTestResult HTTP负载测试结果，延迟单位为毫秒
type HTTPLoadTestResult struct {
	TotalRequests      int64                     `json:"total_requests"`
	SuccessfulRequests int64                     `json:"successful_requests"`
	FailedRequests     int64                     `json:"failed_requests"`
	Duration           time.Duration             `json:"duration"`
	RequestsPerSecond  float64                   `json:"requests_per_second"`
	MinLatency         float64                   `json:"min_latency_ms"`
	MaxLatency         float64                   `json:"max_latency_ms"`
	AvgLatency         float64                   `json:"avg_latency_ms"`
	P50Latency         float64                   `json:"p50_latency_ms"`
	P95Latency         float64                   `json:"p95_latency_ms"`
	P99Latency         float64                   `json:"p99_latency_ms"`
	StatusCodes        map[int]int64             `json:"status_codes"`
	ErrorsByType       map[string]int64          `json:"errors_by_type"`
	EndpointStats      map[string]*EndpointStats `json:"endpoint_stats"`
}

// EndpointStats 端点级统计
type EndpointStats struct {
	Path            string  `json:"path"`
	TotalRequests   int64   `json:"total_requests"`
	SuccessRequests int64   `json:"success_requests"`
	FailedRequests  int64   `json:"failed_requests"`
	AvgLatency      float64 `json:"avg_latency_ms"`
	totalLatency    time.Duration
}

// HTTPLoadTester HTTP负载测试器
type HTTPLoadTester struct {
	config *HTTPLoadTestConfig
	client *http.Client

	total   atomic.Int64
	success atomic.Int64
	failed  atomic.Int64

	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int64
	errors      map[string]int64
	endpoints   map[string]*EndpointStats
}

// DefaultHTTPLoadTestConfig 只读接口的默认压测配置，不会触发录音
func DefaultHTTPLoadTestConfig(baseURL string) *HTTPLoadTestConfig {
	return &HTTPLoadTestConfig{
		BaseURL:           baseURL,
		ConcurrentClients: 4,
		Duration:          10 * time.Second,
		Timeout:           5 * time.Second,
		Endpoints: []EndpointConfig{
			{Path: "/api/data", Method: http.MethodGet, Weight: 3},
			{Path: "/api/v1/health", Method: http.MethodGet, Weight: 2},
			{Path: "/recording-status", Method: http.MethodGet, Weight: 2},
			{Path: "/api/feedback?limit=10", Method: http.MethodGet, Weight: 1},
			{Path: "/reports", Method: http.MethodGet, Weight: 1},
		},
	}
}

// NewHTTPLoadTester 创建HTTP负载测试器
func NewHTTPLoadTester(config *HTTPLoadTestConfig) *HTTPLoadTester {
	return &HTTPLoadTester{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: config.ConcurrentClients,
			},
		},
		statusCodes: make(map[int]int64),
		errors:      make(map[string]int64),
		endpoints:   make(map[string]*EndpointStats),
	}
}

// Run 运行到 Duration 结束或 ctx 取消
func (t *HTTPLoadTester) Run(ctx context.Context) (*HTTPLoadTestResult, error) {
	if err := t.validateConfig(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, t.config.Duration)
	defer cancel()

	var interval time.Duration
	if t.config.TargetRPS > 0 {
		rpsPerClient := float64(t.config.TargetRPS) / float64(t.config.ConcurrentClients)
		interval = time.Duration(float64(time.Second) / rpsPerClient)
	}

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < t.config.ConcurrentClients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			t.clientWorker(ctx, clientID, interval)
		}(i)
	}
	wg.Wait()

	log.Printf("HTTP load test completed: %d requests", t.total.Load())
	return t.generateResult(time.Since(start)), nil
}

func (t *HTTPLoadTester) validateConfig() error {
	if t.config.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	if len(t.config.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required")
	}
	if t.config.ConcurrentClients <= 0 {
		return fmt.Errorf("concurrent clients must be positive")
	}
	if t.config.Duration <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	return nil
}

// clientWorker 客户端工作器
func (t *HTTPLoadTester) clientWorker(ctx context.Context, clientID int, interval time.Duration) {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for requestID := clientID; ; requestID++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return
		}
		t.executeRequest(ctx, t.selectEndpoint(requestID))
	}
}

// selectEndpoint 根据权重选择端点
func (t *HTTPLoadTester) selectEndpoint(requestID int) EndpointConfig {
	totalWeight := 0
	for _, ep := range t.config.Endpoints {
		totalWeight += max(ep.Weight, 1)
	}

	target := requestID % totalWeight
	current := 0
	for _, ep := range t.config.Endpoints {
		current += max(ep.Weight, 1)
		if target < current {
			return ep
		}
	}
	return t.config.Endpoints[0]
}

// executeRequest 执行HTTP请求
func (t *HTTPLoadTester) executeRequest(ctx context.Context, endpoint EndpointConfig) {
	var body io.Reader
	if endpoint.Body != nil {
		payload, err := json.Marshal(endpoint.Body)
		if err != nil {
			t.recordError(endpoint.Path, "encode_body")
			return
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, endpoint.Method, t.config.BaseURL+endpoint.Path, body)
	if err != nil {
		t.recordError(endpoint.Path, "create_request")
		return
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		// 压测结束时被取消的请求不计入
		if ctx.Err() != nil {
			return
		}
		t.recordError(endpoint.Path, "transport")
		return
	}
	_, err = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if err != nil && ctx.Err() != nil {
		return
	}

	t.recordMetrics(endpoint.Path, resp.StatusCode, time.Since(start))
}

func (t *HTTPLoadTester) recordMetrics(path string, statusCode int, latency time.Duration) {
	t.total.Add(1)
	ok := statusCode < 400
	if ok {
		t.success.Add(1)
	} else {
		t.failed.Add(1)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.latencies = append(t.latencies, latency)
	t.statusCodes[statusCode]++

	stats := t.endpointStats(path)
	stats.TotalRequests++
	stats.totalLatency += latency
	if ok {
		stats.SuccessRequests++
	} else {
		stats.FailedRequests++
	}
}

func (t *HTTPLoadTester) recordError(path, errorType string) {
	t.total.Add(1)
	t.failed.Add(1)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.errors[errorType]++
	stats := t.endpointStats(path)
	stats.TotalRequests++
	stats.FailedRequests++
}

// endpointStats 调用方持有锁
func (t *HTTPLoadTester) endpointStats(path string) *EndpointStats {
	stats, ok := t.endpoints[path]
	if !ok {
		stats = &EndpointStats{Path: path}
		t.endpoints[path] = stats
	}
	return stats
}

func (t *HTTPLoadTester) generateResult(duration time.Duration) *HTTPLoadTestResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := &HTTPLoadTestResult{
		TotalRequests:      t.total.Load(),
		SuccessfulRequests: t.success.Load(),
		FailedRequests:     t.failed.Load(),
		Duration:           duration,
		RequestsPerSecond:  float64(t.total.Load()) / duration.Seconds(),
		StatusCodes:        make(map[int]int64, len(t.statusCodes)),
		ErrorsByType:       make(map[string]int64, len(t.errors)),
		EndpointStats:      make(map[string]*EndpointStats, len(t.endpoints)),
	}

	// 排序计算百分位数
	if n := len(t.latencies); n > 0 {
		latencies := append([]time.Duration(nil), t.latencies...)
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var total time.Duration
		for _, lat := range latencies {
			total += lat
		}
		result.MinLatency = ms(latencies[0])
		result.MaxLatency = ms(latencies[n-1])
		result.AvgLatency = ms(total) / float64(n)
		result.P50Latency = ms(latencies[n/2])
		result.P95Latency = ms(latencies[int(float64(n)*0.95)])
		result.P99Latency = ms(latencies[int(float64(n)*0.99)])
	}

	for code, count := range t.statusCodes {
		result.StatusCodes[code] = count
	}
	for errorType, count := range t.errors {
		result.ErrorsByType[errorType] = count
	}
	for path, stats := range t.endpoints {
		copied := *stats
		if copied.TotalRequests > 0 {
			copied.AvgLatency = ms(stats.totalLatency) / float64(copied.TotalRequests)
		}
		result.EndpointStats[path] = &copied
	}
	return result
}

func ms(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}
