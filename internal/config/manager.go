package config

import (
	"fmt"
	"log"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ConfigManager 统一配置管理器
type ConfigManager struct {
	mu           sync.RWMutex
	config       *Config
	viper        *viper.Viper
	configPath   string
	watchEnabled bool
	onChange     []func(*Config)
}

// ConfigManagerOption 配置管理器选项
type ConfigManagerOption func(*ConfigManager)

// WithConfigPath 设置配置文件路径
func WithConfigPath(path string) ConfigManagerOption {
	return func(cm *ConfigManager) {
		cm.configPath = path
	}
}

// WithWatchEnabled 启用配置文件监控
func WithWatchEnabled(enabled bool) ConfigManagerOption {
	return func(cm *ConfigManager) {
		cm.watchEnabled = enabled
	}
}

// NewConfigManager 创建配置管理器
func NewConfigManager(opts ...ConfigManagerOption) *ConfigManager {
	cm := &ConfigManager{}
	for _, opt := range opts {
		opt(cm)
	}
	return cm
}

// Load 加载配置
func (cm *ConfigManager) Load() (*Config, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.config != nil {
		return cm.config, nil
	}

	config, v, err := LoadConfig(cm.configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	cm.config = config
	cm.viper = v

	// 只有真正读到配置文件时才需要监控
	if cm.watchEnabled && v.ConfigFileUsed() != "" {
		cm.watch()
	}

	return config, nil
}

// Get 获取配置（如果未加载则自动加载）
func (cm *ConfigManager) Get() (*Config, error) {
	cm.mu.RLock()
	if cm.config != nil {
		defer cm.mu.RUnlock()
		return cm.config, nil
	}
	cm.mu.RUnlock()

	return cm.Load()
}

// Mail 获取当前邮件配置，热重载后立即生效
func (cm *ConfigManager) Mail() MailConfig {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if cm.config == nil {
		return MailConfig{}
	}
	return cm.config.Mail
}

// OnChange 注册配置变更回调
func (cm *ConfigManager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.onChange = append(cm.onChange, fn)
}

// Reload 重新读取配置文件，验证失败时保留旧配置
func (cm *ConfigManager) Reload() error {
	cm.mu.Lock()
	if cm.viper == nil {
		cm.mu.Unlock()
		_, err := cm.Load()
		return err
	}

	if err := cm.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			cm.mu.Unlock()
			return fmt.Errorf("重新加载配置失败: %w", err)
		}
	}

	config, err := decode(cm.viper)
	if err != nil {
		cm.mu.Unlock()
		return fmt.Errorf("重新加载配置失败: %w", err)
	}

	cm.config = config
	callbacks := append([]func(*Config){}, cm.onChange...)
	cm.mu.Unlock()

	for _, fn := range callbacks {
		fn(config)
	}
	return nil
}

// ConfigFileUsed 实际使用的配置文件，未使用文件时为空
func (cm *ConfigManager) ConfigFileUsed() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if cm.viper == nil {
		return ""
	}
	return cm.viper.ConfigFileUsed()
}

// watch 监控配置文件变化，调用方持有锁
func (cm *ConfigManager) watch() {
	cm.viper.OnConfigChange(func(e fsnotify.Event) {
		log.Printf("配置文件变化: %s (%s)", e.Name, e.Op)
		if err := cm.Reload(); err != nil {
			log.Printf("配置热重载失败，继续使用旧配置: %v", err)
		}
	})
	cm.viper.WatchConfig()
}

// Summary 获取配置摘要信息，不包含敏感字段
func (cm *ConfigManager) Summary() map[string]interface{} {
	config, err := cm.Get()
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}

	return map[string]interface{}{
		"config_file":     cm.ConfigFileUsed(),
		"addr":            config.Server.Addr,
		"sample_rate":     config.Capture.SampleRate,
		"channels":        config.Capture.Channels,
		"uploads_dir":     config.Storage.UploadsDir,
		"reports_dir":     config.Storage.ReportsDir,
		"database":        config.Database.DSN != "",
		"mail_configured": config.Mail.Enabled(),
	}
}
