package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"qconf/internal/testutils"
)

func TestLoadConfig(t *testing.T) {
	suite := testutils.NewTestSuite(t)
	defer suite.TearDown()

	// 创建测试配置文件
	configContent := `
app:
  name: "qconf test"
  version: "1.0.0"
  environment: "development"

server:
  port: 8082
  host: "localhost"
  read_timeout: 10s
  write_timeout: 10s

database:
  enabled: false

redis:
  enabled: false

hot_reload:
  enabled: true
  watch_dirs: ["configs"]
  check_interval: 2s
`

	configPath := suite.CreateTempFile("config.yaml", configContent)

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// 验证配置值
	if config.App.Name != "qconf test" {
		t.Errorf("Expected app name 'qconf test', got '%s'", config.App.Name)
	}

	if config.Server.Port != 8082 {
		t.Errorf("Expected port 8082, got %d", config.Server.Port)
	}

	if config.Server.ReadTimeout.Duration() != 10*time.Second {
		t.Errorf("Expected read timeout 10s, got %v", config.Server.ReadTimeout.Duration())
	}

	if config.HotReload.CheckInterval.Duration() != 2*time.Second {
		t.Errorf("Expected check interval 2s, got %v", config.HotReload.CheckInterval.Duration())
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	suite := testutils.NewTestSuite(t)
	defer suite.TearDown()

	configPath := suite.CreateTempFile("config.yaml", `
app:
  name: "qconf"
`)

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Server.Port != 8082 {
		t.Errorf("Expected default port 8082, got %d", config.Server.Port)
	}
	if config.Redis.Channel != "qconf:changes" {
		t.Errorf("Expected default channel 'qconf:changes', got '%s'", config.Redis.Channel)
	}
	if config.HotReload.ValidationTimeout.Duration() != 30*time.Second {
		t.Errorf("Expected default validation timeout 30s, got %v", config.HotReload.ValidationTimeout.Duration())
	}
	if config.Versions.KeepCount != 10 {
		t.Errorf("Expected default keep count 10, got %d", config.Versions.KeepCount)
	}
	if config.Versions.CleanupSchedule != "0 3 * * *" {
		t.Errorf("Expected default cleanup schedule, got '%s'", config.Versions.CleanupSchedule)
	}
}

func TestLoadConfigWithEnvSubstitution(t *testing.T) {
	suite := testutils.NewTestSuite(t)
	defer suite.TearDown()

	testutils.SetEnv(t, "TEST_DB_HOST", "db.example.com")

	configContent := `
app:
  name: "qconf"

database:
  enabled: true
  host: "${TEST_DB_HOST}"
  port: ${TEST_DB_PORT:5432}
  user: "${TEST_DB_USER:qconf}"
`

	configPath := suite.CreateTempFile("config.yaml", configContent)

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Database.Host != "db.example.com" {
		t.Errorf("Expected database host 'db.example.com' (from env), got '%s'", config.Database.Host)
	}
	if config.Database.Port != 5432 {
		t.Errorf("Expected port 5432 (default), got %d", config.Database.Port)
	}
	if config.Database.User != "qconf" {
		t.Errorf("Expected user 'qconf' (default), got '%s'", config.Database.User)
	}
}

func TestShippedConfigWatchDirsExist(t *testing.T) {
	root := filepath.Join("..", "..")

	config, err := Load(filepath.Join(root, "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Failed to load shipped config: %v", err)
	}

	// 监听目录相对仓库根目录，服务从根目录启动时必须存在
	for _, dir := range config.HotReload.WatchDirs {
		if _, err := os.Stat(filepath.Join(root, dir)); err != nil {
			t.Errorf("Watch dir %s not found from repository root: %v", dir, err)
		}
	}
}

func TestDurationUnmarshal(t *testing.T) {
	suite := testutils.NewTestSuite(t)
	defer suite.TearDown()

	configPath := suite.CreateTempFile("config.yaml", `
server:
  read_timeout: 1m30s
  write_timeout: 45
`)

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Server.ReadTimeout.Duration() != 90*time.Second {
		t.Errorf("Expected 90s, got %v", config.Server.ReadTimeout.Duration())
	}

	// 整数值按秒处理
	if config.Server.WriteTimeout.Duration() != 45*time.Second {
		t.Errorf("Expected 45s, got %v", config.Server.WriteTimeout.Duration())
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{
			name:        "valid config",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name: "invalid port",
			mutate: func(c *Config) {
				c.Server.Port = 70000
			},
			expectError: true,
		},
		{
			name: "invalid environment",
			mutate: func(c *Config) {
				c.App.Environment = "qa"
			},
			expectError: true,
		},
		{
			name: "short jwt secret",
			mutate: func(c *Config) {
				c.Auth.Enabled = true
				c.Auth.SecretKey = "short"
				c.Auth.Duration = Duration(time.Hour)
			},
			expectError: true,
		},
		{
			name: "hot reload without watch targets",
			mutate: func(c *Config) {
				c.HotReload.Enabled = true
				c.HotReload.WatchDirs = nil
				c.HotReload.WatchFiles = nil
			},
			expectError: true,
		},
		{
			name: "database enabled but incomplete",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Host = ""
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBaseConfig()
			tt.mutate(cfg)

			err := NewValidator(cfg).Validate()
			if tt.expectError && err == nil {
				t.Errorf("Expected validation error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func validBaseConfig() *Config {
	cfg := &Config{
		App: AppConfig{
			Name:        "qconf",
			Version:     "1.0.0",
			Environment: "development",
		},
	}
	applyConfigDefaults(cfg)
	cfg.HotReload.Enabled = true
	cfg.HotReload.WatchDirs = []string{"configs"}
	return cfg
}
