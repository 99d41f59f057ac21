package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 VOICEGUARD_SERVER_ADDR
const EnvPrefix = "VOICEGUARD"

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Addr            string        `yaml:"addr" mapstructure:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	DemoMessage     string        `yaml:"demo_message" mapstructure:"demo_message"`
}

// CaptureConfig 麦克风采集配置
type CaptureConfig struct {
	SampleRate      int           `yaml:"sample_rate" mapstructure:"sample_rate"`
	Channels        int           `yaml:"channels" mapstructure:"channels"`
	FramesPerBuffer int           `yaml:"frames_per_buffer" mapstructure:"frames_per_buffer"`
	CloseTimeout    time.Duration `yaml:"close_timeout" mapstructure:"close_timeout"`
	DefaultFilename string        `yaml:"default_filename" mapstructure:"default_filename"`
}

// StorageConfig 文件存储配置
type StorageConfig struct {
	UploadsDir     string `yaml:"uploads_dir" mapstructure:"uploads_dir"`
	ReportsDir     string `yaml:"reports_dir" mapstructure:"reports_dir"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
}

// DatabaseConfig 反馈存储数据库配置，DSN 为空时使用内存存储
type DatabaseConfig struct {
	DSN               string        `yaml:"dsn" mapstructure:"dsn"`
	MaxConns          int32         `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns          int32         `yaml:"min_conns" mapstructure:"min_conns"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	ConnectMaxElapsed time.Duration `yaml:"connect_max_elapsed" mapstructure:"connect_max_elapsed"`
}

// MailConfig 报告分享邮件配置
type MailConfig struct {
	Host        string        `yaml:"host" mapstructure:"host"`
	Port        int           `yaml:"port" mapstructure:"port"`
	Username    string        `yaml:"username" mapstructure:"username"`
	Password    string        `yaml:"password" mapstructure:"password"`
	From        string        `yaml:"from" mapstructure:"from"`
	TLSPolicy   string        `yaml:"tls_policy" mapstructure:"tls_policy"` // mandatory, opportunistic, none
	SendTimeout time.Duration `yaml:"send_timeout" mapstructure:"send_timeout"`
	MaxElapsed  time.Duration `yaml:"max_elapsed" mapstructure:"max_elapsed"`
}

// Enabled 是否配置了邮件服务
func (m MailConfig) Enabled() bool {
	return m.Host != "" && m.From != ""
}

// Config 完整的服务配置
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Capture  CaptureConfig  `yaml:"capture" mapstructure:"capture"`
	Storage  StorageConfig  `yaml:"storage" mapstructure:"storage"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Mail     MailConfig     `yaml:"mail" mapstructure:"mail"`
}

// newViper 创建带默认值和环境变量绑定的viper实例
func newViper(configPath string) *viper.Viper {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("voiceguard")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

// LoadConfig 加载配置。未指定路径且找不到配置文件时只使用默认值和环境变量
func LoadConfig(configPath string) (*Config, *viper.Viper, error) {
	v := newViper(configPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	config, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return config, v, nil
}

// decode 解析并校验
func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.demo_message", "Hello from VoiceGuard!")

	// 与参考前端约定的固定格式：44.1kHz 单声道 16 位
	v.SetDefault("capture.sample_rate", 44100)
	v.SetDefault("capture.channels", 1)
	v.SetDefault("capture.frames_per_buffer", 1024)
	v.SetDefault("capture.close_timeout", "3s")
	v.SetDefault("capture.default_filename", "recorded_audio.wav")

	v.SetDefault("storage.uploads_dir", "uploads")
	v.SetDefault("storage.reports_dir", "reports")
	v.SetDefault("storage.max_upload_bytes", 50<<20)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.connect_timeout", "5s")
	v.SetDefault("database.connect_max_elapsed", "30s")

	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.tls_policy", "mandatory")
	v.SetDefault("mail.send_timeout", "15s")
	v.SetDefault("mail.max_elapsed", "30s")
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr 不能为空")
	}
	if c.Capture.SampleRate <= 0 {
		return fmt.Errorf("capture.sample_rate 必须大于0")
	}
	if c.Capture.Channels <= 0 {
		return fmt.Errorf("capture.channels 必须大于0")
	}
	if c.Capture.CloseTimeout <= 0 {
		return fmt.Errorf("capture.close_timeout 必须大于0")
	}
	if c.Storage.UploadsDir == "" || c.Storage.ReportsDir == "" {
		return fmt.Errorf("storage 目录不能为空")
	}
	if c.Storage.MaxUploadBytes <= 0 {
		return fmt.Errorf("storage.max_upload_bytes 必须大于0")
	}
	if c.Database.DSN != "" && c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("database.max_conns 不能小于 min_conns")
	}
	if c.Mail.Host != "" {
		if c.Mail.Port <= 0 || c.Mail.Port > 65535 {
			return fmt.Errorf("mail.port 无效: %d", c.Mail.Port)
		}
		switch c.Mail.TLSPolicy {
		case "mandatory", "opportunistic", "none":
		default:
			return fmt.Errorf("mail.tls_policy 无效: %s", c.Mail.TLSPolicy)
		}
	}
	return nil
}
