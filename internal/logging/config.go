package logging

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// FileConfig 完整的日志配置文件结构，支持按环境和按模块覆盖
type FileConfig struct {
	Logger       Config                       `yaml:"logger"`
	Environments map[string]EnvironmentConfig `yaml:"environments"`
	Modules      map[string]ModuleConfig      `yaml:"modules"`
}

// EnvironmentConfig 环境特定配置
type EnvironmentConfig struct {
	Logger Config `yaml:"logger"`
}

// ModuleConfig 模块特定配置
type ModuleConfig struct {
	Level        string `yaml:"level"`
	SeparateFile bool   `yaml:"separate_file"`
	Filename     string `yaml:"filename"`
}

// DefaultConfig 默认日志配置
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "json",
		Output:     "stdout",
		MaxSize:    100,
		MaxBackups: 10,
		MaxAge:     30,
		Compress:   true,
	}
}

// LoadFileConfig 从YAML文件加载日志配置，应用环境特定覆盖
func LoadFileConfig(path, environment string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read logging config %s: %w", path, err)
	}

	var fileConfig FileConfig
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("failed to parse logging config %s: %w", path, err)
	}

	cfg := fileConfig.Logger
	applyDefaults(&cfg)

	// 环境特定配置覆盖基础配置
	if envCfg, ok := fileConfig.Environments[environment]; ok {
		overlay(&cfg, &envCfg.Logger)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Level == "" {
		cfg.Level = def.Level
	}
	if cfg.Format == "" {
		cfg.Format = def.Format
	}
	if cfg.Output == "" {
		cfg.Output = def.Output
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.MaxBackups == 0 {
		cfg.MaxBackups = def.MaxBackups
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = def.MaxAge
	}
}

func overlay(base, env *Config) {
	if env.Level != "" {
		base.Level = env.Level
	}
	if env.Format != "" {
		base.Format = env.Format
	}
	if env.Output != "" {
		base.Output = env.Output
	}
	if env.LogDir != "" {
		base.LogDir = env.LogDir
	}
	if env.MaxSize != 0 {
		base.MaxSize = env.MaxSize
	}
	if env.MaxBackups != 0 {
		base.MaxBackups = env.MaxBackups
	}
	if env.MaxAge != 0 {
		base.MaxAge = env.MaxAge
	}
}
