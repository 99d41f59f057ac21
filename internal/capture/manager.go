package capture

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType 采集事件类型
type EventType string

const (
	EventStarted       EventType = "CAPTURE_STARTED"
	EventStopped       EventType = "CAPTURE_STOPPED"
	EventFailed        EventType = "CAPTURE_FAILED"
	EventCallbackFault EventType = "CALLBACK_FAULT"
)

// Event 采集生命周期事件
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	FilePath  string    `json:"file_path,omitempty"`
	Samples   int       `json:"samples,omitempty"`
	Dropped   int64     `json:"dropped,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// EventHandler 事件处理器
type EventHandler func(event Event)

// Config 采集管理器配置
type Config struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int
	CloseTimeout    time.Duration // 关闭设备的最长等待时间
	OutputDir       string
	DefaultFilename string
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		SampleRate:      44100,
		Channels:        1,
		FramesPerBuffer: 1024,
		CloseTimeout:    3 * time.Second,
		OutputDir:       "uploads",
		DefaultFilename: "recorded_audio.wav",
	}
}

// Session 一次开始到停止的录音会话
type Session struct {
	ID        string
	StartTime time.Time

	queue  *chunkQueue
	device Device

	dropped atomic.Int64 // 会话结束后到达的音频块
	faults  atomic.Int64 // 回调中被吞掉的panic

	onFault func(sess *Session, fault interface{})
}

func newSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		StartTime: time.Now(),
		queue:     newChunkQueue(),
	}
}

// handleChunk 设备回调入口，任何情况下都不向设备线程抛出panic
func (s *Session) handleChunk(samples []int16) {
	defer func() {
		if r := recover(); r != nil {
			s.faults.Add(1)
			if s.onFault != nil {
				s.onFault(s, r)
			}
		}
	}()

	if len(samples) == 0 {
		return
	}
	if !s.queue.push(samples) {
		s.dropped.Add(1)
	}
}

// Status 当前采集状态快照
type Status struct {
	Active        bool      `json:"active"`
	SessionID     string    `json:"session_id,omitempty"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	Chunks        int       `json:"chunks"`
	Samples       int       `json:"samples"`
	Dropped       int64     `json:"dropped"`
	Faults        int64     `json:"faults"`
	SampleRate    int       `json:"sample_rate"`
	Channels      int       `json:"channels"`
	TotalSessions int64     `json:"total_sessions"`
}

// Manager 采集会话管理器，同一时间最多一个活动会话
type Manager struct {
	config    *Config
	newDevice DeviceFactory
	onEvent   EventHandler

	mu      sync.Mutex // 串行化 Start/Stop
	session *Session

	totalSessions atomic.Int64
}

// NewManager 创建采集会话管理器
func NewManager(config *Config, newDevice DeviceFactory) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	if newDevice == nil {
		newDevice = NewSystemDevice
	}
	return &Manager{
		config:    config,
		newDevice: newDevice,
	}
}

// SetEventHandler 设置事件处理器，需在 Start 之前调用
func (m *Manager) SetEventHandler(handler EventHandler) {
	m.onEvent = handler
}

// Format 返回会话使用的采集格式
func (m *Manager) Format() Format {
	return Format{
		SampleRate:      m.config.SampleRate,
		Channels:        m.config.Channels,
		FramesPerBuffer: m.config.FramesPerBuffer,
	}
}

// Start 开始新的录音会话，采集在后台进行
func (m *Manager) Start() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		return nil, ErrAlreadyRecording
	}

	sess := newSession()
	sess.onFault = m.reportFault

	dev, err := m.newDevice(m.Format())
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", ErrDevice, err)
	}
	if err := dev.Start(sess.handleChunk); err != nil {
		if closeErr := dev.Close(); closeErr != nil {
			log.Printf("关闭启动失败的采集设备出错: %v", closeErr)
		}
		return nil, fmt.Errorf("%w: start: %w", ErrDevice, err)
	}

	sess.device = dev
	m.session = sess
	m.totalSessions.Add(1)

	m.emit(Event{Type: EventStarted, SessionID: sess.ID})
	return sess, nil
}

// Stop 结束当前会话并把录音写入 OutputDir/filename，返回文件路径。
// filename 为空时使用默认文件名。
func (m *Manager) Stop(ctx context.Context, filename string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.session
	if sess == nil {
		return "", ErrNotRecording
	}

	name, err := m.resolveFilename(filename)
	if err != nil {
		return "", err
	}

	// 先封闭队列，之后的回调全部丢弃，再关闭设备流
	m.session = nil
	sess.queue.seal()

	if err := m.closeDevice(ctx, sess.device); err != nil {
		m.emitFailure(sess, err)
		return "", err
	}

	samples := sess.queue.drain()
	if len(samples) == 0 {
		m.emitFailure(sess, ErrEmptyRecording)
		return "", ErrEmptyRecording
	}

	path := filepath.Join(m.config.OutputDir, name)
	if err := WriteWAVFile(path, samples, m.config.SampleRate, m.config.Channels); err != nil {
		m.emitFailure(sess, err)
		return "", err
	}

	m.emit(Event{
		Type:      EventStopped,
		SessionID: sess.ID,
		FilePath:  path,
		Samples:   len(samples),
		Dropped:   sess.dropped.Load(),
	})
	return path, nil
}

// RecordFor 录制固定时长，ctx 取消时提前结束并保存已录制的内容
func (m *Manager) RecordFor(ctx context.Context, duration time.Duration, filename string) (string, error) {
	if _, err := m.Start(); err != nil {
		return "", err
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		log.Printf("录音提前结束: %v", ctx.Err())
	}

	return m.Stop(context.WithoutCancel(ctx), filename)
}

// IsActive 是否有活动会话
func (m *Manager) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// Status 获取当前状态
func (m *Manager) Status() Status {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()

	status := Status{
		SampleRate:    m.config.SampleRate,
		Channels:      m.config.Channels,
		TotalSessions: m.totalSessions.Load(),
	}
	if sess == nil {
		return status
	}

	status.Active = true
	status.SessionID = sess.ID
	status.StartedAt = sess.StartTime
	status.Chunks, status.Samples = sess.queue.stats()
	status.Dropped = sess.dropped.Load()
	status.Faults = sess.faults.Load()
	return status
}

// Shutdown 进程退出时丢弃未保存的会话并关闭设备
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.session
	if sess == nil {
		return nil
	}
	m.session = nil
	sess.queue.seal()
	log.Printf("丢弃未保存的录音会话 %s", sess.ID)
	return m.closeDevice(ctx, sess.device)
}

// closeDevice 在 CloseTimeout 内等待设备关闭，超时后关闭动作继续在后台完成
func (m *Manager) closeDevice(ctx context.Context, dev Device) error {
	done := make(chan error, 1)
	go func() {
		done <- dev.Close()
	}()

	timeout := m.config.CloseTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().CloseTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: close: %w", ErrDevice, err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: close timed out after %v", ErrDevice, timeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: close: %w", ErrDevice, ctx.Err())
	}
}

// resolveFilename 校验输出文件名，只允许不带路径的 .wav 文件名
func (m *Manager) resolveFilename(filename string) (string, error) {
	name := strings.TrimSpace(filename)
	if name == "" {
		name = m.config.DefaultFilename
	}
	if err := ValidateFilename(name); err != nil {
		return "", err
	}
	if !strings.EqualFold(filepath.Ext(name), ".wav") {
		name += ".wav"
	}
	return name, nil
}

// ValidateFilename 拒绝路径分隔符、相对路径和隐藏文件
func ValidateFilename(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	if filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return nil
}

func (m *Manager) reportFault(sess *Session, fault interface{}) {
	log.Printf("采集回调异常已忽略 (session=%s): %v", sess.ID, fault)
	m.emit(Event{
		Type:      EventCallbackFault,
		SessionID: sess.ID,
		Error:     fmt.Sprint(fault),
	})
}

func (m *Manager) emitFailure(sess *Session, err error) {
	m.emit(Event{
		Type:      EventFailed,
		SessionID: sess.ID,
		Dropped:   sess.dropped.Load(),
		Error:     err.Error(),
	})
}

func (m *Manager) emit(event Event) {
	if m.onEvent == nil {
		return
	}
	event.Timestamp = time.Now()
	m.onEvent(event)
}
