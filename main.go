package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"VoiceGuardBackend/internal/capture"
	"VoiceGuardBackend/internal/config"
	"VoiceGuardBackend/internal/database"
	"VoiceGuardBackend/internal/feedback"
	"VoiceGuardBackend/internal/httpserver"
	"VoiceGuardBackend/internal/logger"
	"VoiceGuardBackend/internal/reports"
	"VoiceGuardBackend/pkg/analyzer"
)

func main() {
	var (
		mode       = flag.String("mode", "server", "运行模式: server, record, demo")
		configPath = flag.String("config", "", "配置文件路径，默认搜索 configs/voiceguard.yaml")
		watch      = flag.Bool("watch", true, "监控配置文件变化")
		duration   = flag.Duration("duration", 5*time.Second, "record 模式的录音时长")
		output     = flag.String("output", "", "record 模式的输出文件名")
	)
	flag.Parse()

	logger.InitLogger()

	// .env 只用于本地开发，不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("读取 .env 失败: %v", err)
	}

	cm := config.NewConfigManager(
		config.WithConfigPath(*configPath),
		config.WithWatchEnabled(*watch && *mode == "server"),
	)

	switch *mode {
	case "server":
		runServer(cm)
	case "record":
		runRecord(cm, *duration, *output)
	case "demo":
		runDemo()
	default:
		fmt.Printf("未知模式: %s\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
}

// runServer 运行HTTP服务
func runServer(cm *config.ConfigManager) {
	cfg, err := cm.Load()
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	fmt.Println("🎙️  VoiceGuard Backend")
	fmt.Println("======================")
	if file := cm.ConfigFileUsed(); file != "" {
		fmt.Printf("📄 配置文件: %s\n", file)
	}

	logger.InitGlobalLogger()
	logger.LogInfo("system", "VoiceGuard 后端启动中...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, pool := openFeedbackStore(ctx, cfg.Database)
	defer store.Close()

	manager := capture.NewManager(captureConfig(cfg), nil)
	reportStore := reports.NewStore(cfg.Storage.ReportsDir)
	mailer := reports.NewSMTPMailer(cm.Mail)
	if !mailer.Configured() {
		logger.LogWarning("reports", "未配置邮件服务，/share-report 将返回503")
	}

	cm.OnChange(func(c *config.Config) {
		logger.LogInfo("config", fmt.Sprintf("配置已重新加载，邮件服务: %v", c.Mail.Enabled()))
	})

	server := httpserver.NewAPIServer(cfg.Server, cfg.Storage, httpserver.Dependencies{
		Capture:  manager,
		Feedback: store,
		Analyzer: analyzer.NewAudioAnalyzer(),
		Reports:  reportStore,
		Sharer:   reports.NewSharer(reportStore, mailer),
		Logger:   logger.GlobalLogger,
		Pool:     pool,
	})

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("🚀 服务器启动在 %s\n", cfg.Server.Addr)
		fmt.Printf("🎤 开始录音: POST /record-audio\n")
		fmt.Printf("⏹️  停止录音: POST /stop-recording\n")
		fmt.Printf("📜 日志流: ws://<host>%s/api/v1/logs/ws\n", cfg.Server.Addr)
		fmt.Println()

		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// 优雅关闭
	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Printf("❌ 服务器启动失败: %v", err)
	}
	fmt.Println("\n🔄 正在关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务器关闭错误: %v", err)
	}
	logger.GlobalLogger.Stop()

	fmt.Println("✅ 服务器已关闭")
}

// openFeedbackStore 配置了数据库时使用PostgreSQL，否则使用内存存储
func openFeedbackStore(ctx context.Context, cfg config.DatabaseConfig) (feedback.Store, *pgxpool.Pool) {
	if cfg.DSN == "" {
		logger.LogInfo("database", "未配置 database.dsn，反馈保存在内存中")
		return feedback.NewMemoryStore(0), nil
	}

	pool, err := database.ConnectPgx(ctx, &database.Config{
		DSN:            cfg.DSN,
		MaxConns:       cfg.MaxConns,
		MinConns:       cfg.MinConns,
		ConnectTimeout: cfg.ConnectTimeout,
		MaxElapsed:     cfg.ConnectMaxElapsed,
	})
	if err != nil {
		logger.LogError("database", fmt.Sprintf("数据库连接失败: %v", err))
		log.Fatalf("❌ 数据库连接失败: %v", err)
	}

	store, err := feedback.NewPgxStore(ctx, pool)
	if err != nil {
		pool.Close()
		log.Fatalf("❌ 初始化反馈表失败: %v", err)
	}
	logger.LogSuccess("database", "PostgreSQL连接池创建成功")
	return store, pool
}

// runRecord 录制固定时长后保存，Ctrl+C 提前结束
func runRecord(cm *config.ConfigManager, duration time.Duration, output string) {
	cfg, err := cm.Load()
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := capture.NewManager(captureConfig(cfg), nil)
	manager.SetEventHandler(func(event capture.Event) {
		if event.Type == capture.EventCallbackFault {
			log.Printf("⚠️  采集回调异常: %s", event.Error)
		}
	})

	fmt.Printf("🎤 录音 %v (%dHz, %d声道)，按 Ctrl+C 提前结束\n", duration, cfg.Capture.SampleRate, cfg.Capture.Channels)
	path, err := manager.RecordFor(ctx, duration, output)
	if err != nil {
		log.Fatalf("❌ 录音失败: %v", err)
	}
	fmt.Printf("✅ 已保存: %s\n", path)
}

// runDemo 打印使用说明
func runDemo() {
	fmt.Println("🎙️  VoiceGuard Backend - 深度伪造语音检测后端")
	fmt.Println("==============================================")
	fmt.Println()

	fmt.Println("📋 功能:")
	fmt.Println("  ✅ 麦克风录音 (44.1kHz 单声道 16位 WAV)")
	fmt.Println("  ✅ 音频上传与分析占位结果")
	fmt.Println("  ✅ 用户反馈 (PostgreSQL / 内存)")
	fmt.Println("  ✅ 报告下载与邮件分享")
	fmt.Println("  ✅ WebSocket实时日志")
	fmt.Println()

	fmt.Println("🔧 快速开始:")
	fmt.Println("  # 启动服务")
	fmt.Println("  go run main.go -mode=server")
	fmt.Println()
	fmt.Println("  # 直接录音10秒")
	fmt.Println("  go run main.go -mode=record -duration=10s -output=sample.wav")
	fmt.Println()
	fmt.Println("  # 命令行客户端")
	fmt.Println("  go run ./cmd/voicectl start")
	fmt.Println("  go run ./cmd/voicectl stop --filename take1.wav")
}

func captureConfig(cfg *config.Config) *capture.Config {
	return &capture.Config{
		SampleRate:      cfg.Capture.SampleRate,
		Channels:        cfg.Capture.Channels,
		FramesPerBuffer: cfg.Capture.FramesPerBuffer,
		CloseTimeout:    cfg.Capture.CloseTimeout,
		OutputDir:       cfg.Storage.UploadsDir,
		DefaultFilename: cfg.Capture.DefaultFilename,
	}
}
