package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config 数据库配置
type Config struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	ConnectTimeout time.Duration // 单次ping超时
	MaxElapsed     time.Duration // 重试总时长
}

// DefaultConfig 默认配置
func DefaultConfig(dsn string) *Config {
	return &Config{
		DSN:            dsn,
		MaxConns:       10,
		MinConns:       1,
		ConnectTimeout: 5 * time.Second,
		MaxElapsed:     30 * time.Second,
	}
}

// ConnectPgx 创建连接池并等待数据库可用，启动时数据库未就绪会按指数退避重试
func ConnectPgx(ctx context.Context, config *Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// 设置连接池参数
	poolConfig.MaxConns = config.MaxConns
	poolConfig.MinConns = config.MinConns
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = 500 * time.Millisecond
	backOff.MaxElapsedTime = config.MaxElapsed

	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()

		if err := pool.Ping(pingCtx); err != nil {
			log.Printf("数据库连接失败 (第%d次): %v", attempt, err)
			return err
		}
		return nil
	}, backoff.WithContext(backOff, ctx))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ PostgreSQL连接池创建成功")
	return pool, nil
}

// PoolStats 连接池统计信息
func PoolStats(pool *pgxpool.Pool) map[string]interface{} {
	if pool == nil {
		return nil
	}
	stats := pool.Stat()
	return map[string]interface{}{
		"total_conns":    stats.TotalConns(),
		"idle_conns":     stats.IdleConns(),
		"acquired_conns": stats.AcquiredConns(),
		"max_conns":      stats.MaxConns(),
	}
}
