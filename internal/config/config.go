package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the service configuration
type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	CORS       CORSConfig       `yaml:"cors"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	HotReload  HotReloadConfig  `yaml:"hot_reload"`
	Versions   VersionsConfig   `yaml:"versions"`
}

// AppConfig represents application configuration
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	ReadTimeout    Duration `yaml:"read_timeout"`
	WriteTimeout   Duration `yaml:"write_timeout"`
	MaxHeaderBytes int      `yaml:"max_header_bytes"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	User     string   `yaml:"user"`
	Password string   `yaml:"password"`
	DBName   string   `yaml:"dbname"`
	SSLMode  string   `yaml:"sslmode"`
	MaxOpen  int      `yaml:"max_open"`
	MaxIdle  int      `yaml:"max_idle"`
	Timeout  Duration `yaml:"timeout"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Channel  string `yaml:"channel"`
}

// AuthConfig represents JWT authentication configuration
type AuthConfig struct {
	Enabled   bool     `yaml:"enabled"`
	SecretKey string   `yaml:"secret_key"`
	Duration  Duration `yaml:"duration"`
}

// CORSConfig represents CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// RateLimitConfig represents rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	LogDir     string `yaml:"log_dir"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// MonitoringConfig represents monitoring configuration
type MonitoringConfig struct {
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	PrometheusPath    string `yaml:"prometheus_path"`
}

// HotReloadConfig represents hot reload configuration
type HotReloadConfig struct {
	Enabled           bool     `yaml:"enabled"`
	WatchDirs         []string `yaml:"watch_dirs"`
	WatchFiles        []string `yaml:"watch_files"`
	FilePatterns      []string `yaml:"file_patterns"`
	CheckInterval     Duration `yaml:"check_interval"`
	BackupDir         string   `yaml:"backup_dir"`
	BackupCount       int      `yaml:"backup_count"`
	ValidationTimeout Duration `yaml:"validation_timeout"`
	HistorySize       int      `yaml:"history_size"`
}

// VersionsConfig represents version management configuration
type VersionsConfig struct {
	Dir             string `yaml:"dir"`
	KeepCount       int    `yaml:"keep_count"`
	CleanupSchedule string `yaml:"cleanup_schedule"` // cron spec
	PersistToDB     bool   `yaml:"persist_to_db"`
}

// Duration wraps time.Duration so YAML values like "30s" parse
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	// 裸整数按秒处理
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration value: %s", value.Value)
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load loads the service configuration from a YAML file. Environment
// variable references in the file (${VAR} and ${VAR:default}) are expanded
// before parsing.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyConfigDefaults(&config)
	return &config, nil
}

// LoadDotEnv loads environment variables from .env files. Missing files are
// not an error.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	return nil
}

func applyConfigDefaults(cfg *Config) {
	if cfg.App.Environment == "" {
		cfg.App.Environment = os.Getenv("ENVIRONMENT")
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8082
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = Duration(15 * time.Second)
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = Duration(15 * time.Second)
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = 1 << 20
	}
	if cfg.Redis.Channel == "" {
		cfg.Redis.Channel = "qconf:changes"
	}
	if len(cfg.HotReload.FilePatterns) == 0 {
		cfg.HotReload.FilePatterns = []string{"*.yaml", "*.yml", "*.json"}
	}
	if cfg.HotReload.CheckInterval == 0 {
		cfg.HotReload.CheckInterval = Duration(time.Second)
	}
	if cfg.HotReload.BackupDir == "" {
		cfg.HotReload.BackupDir = "config_backups"
	}
	if cfg.HotReload.BackupCount == 0 {
		cfg.HotReload.BackupCount = 10
	}
	if cfg.HotReload.ValidationTimeout == 0 {
		cfg.HotReload.ValidationTimeout = Duration(30 * time.Second)
	}
	if cfg.HotReload.HistorySize == 0 {
		cfg.HotReload.HistorySize = 1000
	}
	if cfg.Versions.Dir == "" {
		cfg.Versions.Dir = "config_versions"
	}
	if cfg.Versions.KeepCount == 0 {
		cfg.Versions.KeepCount = 10
	}
	if cfg.Versions.CleanupSchedule == "" {
		cfg.Versions.CleanupSchedule = "0 3 * * *"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Monitoring.PrometheusPath == "" {
		cfg.Monitoring.PrometheusPath = "/metrics"
	}
}
