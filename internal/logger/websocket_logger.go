package logger

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = time.Second

// LogMessage 日志消息结构
type LogMessage struct {
	Level     string      `json:"level"`
	Message   string      `json:"message"`
	Module    string      `json:"module"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// WebSocketLogger WebSocket日志广播器
type WebSocketLogger struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan LogMessage
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	stopCh     chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
}

// NewWebSocketLogger 创建新的WebSocket日志器
func NewWebSocketLogger() *WebSocketLogger {
	return &WebSocketLogger{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan LogMessage, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		stopCh:     make(chan struct{}),
	}
}

// Run 启动WebSocket日志器，Stop 之后返回
func (wsl *WebSocketLogger) Run() {
	for {
		select {
		case <-wsl.stopCh:
			wsl.mu.Lock()
			for client := range wsl.clients {
				client.Close()
				delete(wsl.clients, client)
			}
			wsl.mu.Unlock()
			return

		case client := <-wsl.register:
			wsl.mu.Lock()
			wsl.clients[client] = true
			count := len(wsl.clients)
			wsl.mu.Unlock()
			log.Printf("WebSocket客户端已连接，当前连接数: %d", count)

		case client := <-wsl.unregister:
			wsl.mu.Lock()
			if _, ok := wsl.clients[client]; ok {
				delete(wsl.clients, client)
				client.Close()
			}
			count := len(wsl.clients)
			wsl.mu.Unlock()
			log.Printf("WebSocket客户端已断开，当前连接数: %d", count)

		case message := <-wsl.broadcast:
			wsl.mu.Lock()
			for client := range wsl.clients {
				client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteJSON(message); err != nil {
					log.Printf("发送日志消息失败: %v", err)
					delete(wsl.clients, client)
					client.Close()
				}
			}
			wsl.mu.Unlock()
		}
	}
}

// Stop 停止广播并断开所有客户端
func (wsl *WebSocketLogger) Stop() {
	wsl.stopOnce.Do(func() {
		close(wsl.stopCh)
	})
}

// ClientCount 当前连接数
func (wsl *WebSocketLogger) ClientCount() int {
	wsl.mu.RLock()
	defer wsl.mu.RUnlock()
	return len(wsl.clients)
}

// Publish 输出到控制台并广播，通道满时丢弃避免阻塞调用方
func (wsl *WebSocketLogger) Publish(msg LogMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	log.Printf("[%s] %s: %s", msg.Level, msg.Module, msg.Message)

	select {
	case wsl.broadcast <- msg:
	default:
	}
}

// LogInfo 记录信息日志
func (wsl *WebSocketLogger) LogInfo(module, message string) {
	wsl.Publish(LogMessage{Level: "INFO", Module: module, Message: message})
}

// LogError 记录错误日志
func (wsl *WebSocketLogger) LogError(module, message string) {
	wsl.Publish(LogMessage{Level: "ERROR", Module: module, Message: message})
}

// LogSuccess 记录成功日志
func (wsl *WebSocketLogger) LogSuccess(module, message string) {
	wsl.Publish(LogMessage{Level: "SUCCESS", Module: module, Message: message})
}

// LogWarning 记录警告日志
func (wsl *WebSocketLogger) LogWarning(module, message string) {
	wsl.Publish(LogMessage{Level: "WARNING", Module: module, Message: message})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 来源限制由CORS配置负责
	},
}

// HandleWebSocket 处理WebSocket连接
func (wsl *WebSocketLogger) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket升级失败: %v", err)
		return
	}

	// 先发欢迎消息再注册，避免与广播并发写
	welcomeMsg := LogMessage{
		Level:     "INFO",
		Message:   "已连接到VoiceGuard日志流",
		Module:    "WebSocket",
		Timestamp: time.Now(),
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(welcomeMsg); err != nil {
		conn.Close()
		return
	}

	select {
	case wsl.register <- conn:
	case <-wsl.stopCh:
		conn.Close()
		return
	}

	defer func() {
		select {
		case wsl.unregister <- conn:
		case <-wsl.stopCh:
		}
	}()

	// 保持连接活跃，读到错误即断开
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket连接错误: %v", err)
			}
			return
		}
	}
}

// 全局日志器实例
var GlobalLogger *WebSocketLogger

// InitGlobalLogger 初始化全局日志器
func InitGlobalLogger() {
	GlobalLogger = NewWebSocketLogger()
	go GlobalLogger.Run()
}

// 便捷函数
func LogInfo(module, message string) {
	if GlobalLogger != nil {
		GlobalLogger.LogInfo(module, message)
	}
}

func LogError(module, message string) {
	if GlobalLogger != nil {
		GlobalLogger.LogError(module, message)
	}
}

func LogSuccess(module, message string) {
	if GlobalLogger != nil {
		GlobalLogger.LogSuccess(module, message)
	}
}

func LogWarning(module, message string) {
	if GlobalLogger != nil {
		GlobalLogger.LogWarning(module, message)
	}
}
