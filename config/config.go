package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	OSS        OSSConfig        `mapstructure:"oss"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	CORS       CORSConfig       `mapstructure:"cors"`
	AIProvider AIProviderConfig `mapstructure:"ai_provider"`
	Lab        LabConfig        `mapstructure:"lab"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

// ArchiveConfig 未配置 OSS 时实验报告的本地落盘目录
type ArchiveConfig struct {
	LocalDir string `mapstructure:"local_dir"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// AIProviderConfig 全局 AI Provider 设置，target 未覆盖时使用
type AIProviderConfig struct {
	URL       string `mapstructure:"url"`
	APIKey    string `mapstructure:"api_key"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

type LabConfig struct {
	MaxTargets        int              `mapstructure:"max_targets"`
	MaxConcurrency    int              `mapstructure:"max_concurrency"`
	DefaultTimeoutMs  int              `mapstructure:"default_timeout_ms"`
	MinTimeoutMs      int              `mapstructure:"min_timeout_ms"`
	MaxTimeoutMs      int              `mapstructure:"max_timeout_ms"`
	StaleAfterMinutes int              `mapstructure:"stale_after_minutes"`
	RetentionDays     int              `mapstructure:"retention_days"`
	Queue             string           `mapstructure:"queue"`
	Workers           int              `mapstructure:"workers"`
	Models            []LabModelConfig `mapstructure:"models"`
}

// LabModelConfig 模型目录项，前端用来预填 target 的定价
type LabModelConfig struct {
	Name                   string  `mapstructure:"name"`
	DisplayName            string  `mapstructure:"display_name"`
	ProviderURL            string  `mapstructure:"provider_url"`
	InputTokensPerMillion  float64 `mapstructure:"input_tokens_per_million"`
	OutputTokensPerMillion float64 `mapstructure:"output_tokens_per_million"`
	Description            string  `mapstructure:"description"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("jwt.expire_hours", 72)
	v.SetDefault("archive.local_dir", "/tmp/ailab/reports")
	v.SetDefault("ai_provider.timeout_ms", 45000)

	v.SetDefault("lab.max_targets", 6)
	v.SetDefault("lab.max_concurrency", 6)
	v.SetDefault("lab.default_timeout_ms", 45000)
	v.SetDefault("lab.min_timeout_ms", 1000)
	v.SetDefault("lab.max_timeout_ms", 120000)
	v.SetDefault("lab.stale_after_minutes", 30)
	// 0 表示不自动清理历史实验
	v.SetDefault("lab.retention_days", 0)
	v.SetDefault("lab.queue", "lab_runs")
	v.SetDefault("lab.workers", 2)
}

// Default 返回只包含默认值的配置（测试和 CLI 使用）
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
