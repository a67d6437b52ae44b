package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"qconf/internal/cache"
	"qconf/internal/config"
	"qconf/internal/hotreload"
	"qconf/internal/testutils"
	"qconf/internal/version"
)

func newTestServer(t *testing.T, authEnabled bool) (*Server, *testutils.TestSuite) {
	suite := testutils.NewTestSuite(t)
	t.Cleanup(suite.TearDown)

	cfgDir := suite.CreateTempDir("configs")
	suite.CreateTempFile("configs/app.yaml", "server:\n  port: 8080\n  host: localhost\n")

	registry := config.NewManager(cfgDir, "development")
	if err := registry.LoadDir(); err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}

	reloader, err := hotreload.NewManager(config.HotReloadConfig{
		WatchDirs:         []string{cfgDir},
		FilePatterns:      []string{"*.yaml", "*.yml"},
		CheckInterval:     config.Duration(time.Second),
		BackupDir:         filepath.Join(suite.TempDir, "backups"),
		BackupCount:       3,
		ValidationTimeout: config.Duration(time.Second),
		HistorySize:       100,
	}, registry)
	if err != nil {
		t.Fatalf("hotreload.NewManager failed: %v", err)
	}

	versions, err := version.NewManager(config.VersionsConfig{
		Dir:       filepath.Join(suite.TempDir, "versions"),
		KeepCount: 5,
	}, registry, nil)
	if err != nil {
		t.Fatalf("version.NewManager failed: %v", err)
	}

	cfg := &config.Config{}
	cfg.App.Name = "qconf"
	cfg.App.Version = "1.0.0"
	cfg.App.Environment = "development"
	cfg.Server.Port = 8082
	if authEnabled {
		cfg.Auth.Enabled = true
		cfg.Auth.SecretKey = "test-secret-key-at-least-32-chars!!"
		cfg.Auth.Duration = config.Duration(time.Hour)
	}

	server := NewServer(cfg, registry, reloader, versions, nil, cache.NewMemoryCache())
	return server, suite
}

func newTestHelper(suite *testutils.TestSuite, server *Server) *testutils.HTTPTestHelper {
	helper := testutils.NewHTTPTestHelper(suite)
	helper.Router = server.Router()
	return helper
}

func TestHealthEndpoint(t *testing.T) {
	server, suite := newTestServer(t, false)
	helper := newTestHelper(suite, server)

	resp := helper.GET("/health", nil)
	resp.AssertStatus(http.StatusOK).AssertContains("healthy")
	resp.AssertContains("unavailable") // 数据库未启用
}

func TestListConfigs(t *testing.T) {
	server, suite := newTestServer(t, false)
	helper := newTestHelper(suite, server)

	resp := helper.GET("/api/v1/configs", nil)
	resp.AssertStatus(http.StatusOK).AssertContains("app")

	var envelope Response
	if err := resp.GetJSON(&envelope); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !envelope.Success {
		t.Error("Expected success=true")
	}
	if envelope.Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}
}

func TestGetConfig(t *testing.T) {
	server, suite := newTestServer(t, false)
	helper := newTestHelper(suite, server)

	helper.GET("/api/v1/configs/app", nil).
		AssertStatus(http.StatusOK).
		AssertContains("localhost")

	resp := helper.GET("/api/v1/configs/missing", nil)
	resp.AssertStatus(http.StatusNotFound)

	var envelope Response
	resp.GetJSON(&envelope)
	if envelope.Success {
		t.Error("Expected success=false for missing config")
	}
	if envelope.Error == "" {
		t.Error("Expected error message for missing config")
	}
}

func TestSetConfigRejectedByValidator(t *testing.T) {
	server, suite := newTestServer(t, false)
	helper := newTestHelper(suite, server)

	rules := config.NewRuleSet("app",
		config.Rule{KeyPattern: "server.port", Type: config.TypeFloat, Min: config.Float(1), Max: config.Float(65535)},
	)
	server.registry.RegisterValidator("app", rules)

	helper.PUT("/api/v1/configs/app", map[string]interface{}{
		"server": map[string]interface{}{"port": 99999},
	}, nil).AssertStatus(http.StatusBadRequest)

	// 被拒绝的配置不能替换已生效的配置
	value, err := server.registry.GetValue("app", "server.port")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if value != 8080 {
		t.Errorf("Expected served port to remain 8080, got %v", value)
	}
}

func TestSetConfigPersistsAndVersions(t *testing.T) {
	server, suite := newTestServer(t, false)
	helper := newTestHelper(suite, server)

	resp := helper.PUT("/api/v1/configs/app", map[string]interface{}{
		"server": map[string]interface{}{"port": 9191, "host": "localhost"},
	}, nil)
	resp.AssertStatus(http.StatusOK).AssertContains("version")

	// 更新写回磁盘
	path := filepath.Join(suite.TempDir, "configs", "app.yaml")
	doc, err := config.ParseDocument(path, testutils.ReadTestFile(t, path))
	if err != nil {
		t.Fatalf("failed to parse saved config: %v", err)
	}
	if value, _ := config.GetValue(doc, "server.port"); value != 9191 && value != float64(9191) {
		t.Errorf("Expected saved port 9191, got %v", value)
	}

	// 覆盖前写入备份
	backups, err := filepath.Glob(filepath.Join(suite.TempDir, "backups", "app.*.backup"))
	if err != nil || len(backups) == 0 {
		t.Errorf("Expected a backup before overwrite, got %v (err=%v)", backups, err)
	}

	// 自动创建版本
	helper.GET("/api/v1/versions", nil).
		AssertStatus(http.StatusOK).
		AssertContains("updated app via API")

	// 重新从磁盘加载后更新仍然生效
	helper.POST("/api/v1/configs/app/reload", nil, nil).AssertStatus(http.StatusOK)
	value, err := server.registry.GetValue("app", "server.port")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if value != 9191 && value != float64(9191) {
		t.Errorf("Expected update to survive reload, got %v", value)
	}
}

func TestGetSetValue(t *testing.T) {
	server, suite := newTestServer(t, false)
	helper := newTestHelper(suite, server)

	helper.PUT("/api/v1/configs/app/value", SetValueRequest{
		Key:   "server.port",
		Value: 9090,
	}, nil).AssertStatus(http.StatusOK)

	resp := helper.GET("/api/v1/configs/app/value?key=server.port", nil)
	resp.AssertStatus(http.StatusOK).AssertContains("9090")

	helper.GET("/api/v1/configs/app/value?key=no.such.key", nil).
		AssertStatus(http.StatusNotFound)

	helper.GET("/api/v1/configs/app/value", nil).
		AssertStatus(http.StatusBadRequest)
}

func TestDeleteConfig(t *testing.T) {
	server, suite := newTestServer(t, false)
	helper := newTestHelper(suite, server)

	helper.DELETE("/api/v1/configs/app", nil).AssertStatus(http.StatusOK)
	helper.GET("/api/v1/configs/app", nil).AssertStatus(http.StatusNotFound)
	helper.DELETE("/api/v1/configs/app", nil).AssertStatus(http.StatusNotFound)
}

func TestVersionLifecycle(t *testing.T) {
	server, suite := newTestServer(t, false)
	helper := newTestHelper(suite, server)

	resp := helper.POST("/api/v1/versions", CreateVersionRequest{
		Description: "release 1.0",
		Author:      "tester",
	}, nil)
	resp.AssertStatus(http.StatusOK)

	var created Response
	if err := resp.GetJSON(&created); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	data := created.Data.(map[string]interface{})
	versionID := data["id"].(string)
	if !strings.HasPrefix(versionID, "v_") {
		t.Errorf("Expected version ID with v_ prefix, got %s", versionID)
	}

	helper.GET("/api/v1/versions", nil).
		AssertStatus(http.StatusOK).
		AssertContains(versionID)

	helper.GET("/api/v1/versions/"+versionID, nil).
		AssertStatus(http.StatusOK).
		AssertContains("release 1.0")

	// 修改后回滚
	helper.PUT("/api/v1/configs/app/value", SetValueRequest{
		Key:   "server.host",
		Value: "changed-host",
	}, nil).AssertStatus(http.StatusOK)

	helper.POST("/api/v1/versions/"+versionID+"/rollback", nil, nil).
		AssertStatus(http.StatusOK)

	value, err := server.registry.GetValue("app", "server.host")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if value != "localhost" {
		t.Errorf("Expected host restored to localhost, got %v", value)
	}

	helper.POST("/api/v1/versions/v_unknown/rollback", nil, nil).
		AssertStatus(http.StatusNotFound)
}

func TestVersionDiff(t *testing.T) {
	server, suite := newTestServer(t, false)
	helper := newTestHelper(suite, server)

	resp := helper.POST("/api/v1/versions", CreateVersionRequest{Description: "before"}, nil)
	var before Response
	resp.GetJSON(&before)
	oldID := before.Data.(map[string]interface{})["id"].(string)

	helper.PUT("/api/v1/configs/app/value", SetValueRequest{
		Key:   "server.port",
		Value: 9090,
	}, nil).AssertStatus(http.StatusOK)

	resp = helper.POST("/api/v1/versions", CreateVersionRequest{Description: "after"}, nil)
	var after Response
	resp.GetJSON(&after)
	newID := after.Data.(map[string]interface{})["id"].(string)

	helper.GET("/api/v1/versions/diff?old="+oldID+"&new="+newID, nil).
		AssertStatus(http.StatusOK).
		AssertContains("app.server.port")

	helper.GET("/api/v1/versions/diff?old="+oldID, nil).
		AssertStatus(http.StatusBadRequest)

	_ = server
}

func TestVersionStats(t *testing.T) {
	server, suite := newTestServer(t, false)
	helper := newTestHelper(suite, server)
	_ = server

	helper.POST("/api/v1/versions", CreateVersionRequest{Description: "s"}, nil).
		AssertStatus(http.StatusOK)

	resp := helper.GET("/api/v1/versions/stats", nil)
	resp.AssertStatus(http.StatusOK).AssertContains("total")
}

func TestHotReloadEndpoints(t *testing.T) {
	server, suite := newTestServer(t, false)
	helper := newTestHelper(suite, server)
	_ = server

	helper.GET("/api/v1/hotreload/status", nil).
		AssertStatus(http.StatusOK).
		AssertContains(`"running":false`)

	helper.GET("/api/v1/hotreload/stats", nil).
		AssertStatus(http.StatusOK).
		AssertContains("success_rate")

	helper.GET("/api/v1/hotreload/changes?limit=10", nil).
		AssertStatus(http.StatusOK).
		AssertContains("count")
}

func TestSystemStatus(t *testing.T) {
	server, suite := newTestServer(t, false)
	helper := newTestHelper(suite, server)
	_ = server

	resp := helper.GET("/api/v1/system/status", nil)
	resp.AssertStatus(http.StatusOK).
		AssertContains("goroutines").
		AssertContains("qconf")
}

func TestAuthRequired(t *testing.T) {
	server, suite := newTestServer(t, true)
	helper := newTestHelper(suite, server)
	_ = server

	helper.GET("/api/v1/configs", nil).AssertStatus(http.StatusUnauthorized)

	testutils.SetEnv(t, "QCONF_ADMIN_USER", "admin")
	testutils.SetEnv(t, "QCONF_ADMIN_PASSWORD", "test-password")

	// 错误凭证
	helper.POST("/api/v1/auth/login", LoginRequest{
		Username: "admin",
		Password: "wrong",
	}, nil).AssertStatus(http.StatusUnauthorized)

	// 正确凭证
	resp := helper.POST("/api/v1/auth/login", LoginRequest{
		Username: "admin",
		Password: "test-password",
	}, nil)
	resp.AssertStatus(http.StatusOK)

	var envelope Response
	if err := resp.GetJSON(&envelope); err != nil {
		t.Fatalf("failed to parse login response: %v", err)
	}
	token := envelope.Data.(map[string]interface{})["token"].(string)
	if token == "" {
		t.Fatal("Expected non-empty token")
	}

	helper.GET("/api/v1/configs", map[string]string{
		"Authorization": "Bearer " + token,
	}).AssertStatus(http.StatusOK)

	// 刷新令牌
	resp = helper.POST("/api/v1/auth/refresh", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	resp.AssertStatus(http.StatusOK).AssertContains("token")
}

func TestLoginWithoutConfiguredPassword(t *testing.T) {
	server, suite := newTestServer(t, true)
	helper := newTestHelper(suite, server)
	_ = server

	testutils.SetEnv(t, "QCONF_ADMIN_PASSWORD", "")

	helper.POST("/api/v1/auth/login", LoginRequest{
		Username: "admin",
		Password: "anything",
	}, nil).AssertStatus(http.StatusUnauthorized)
}

func TestWebSocketChangeBroadcast(t *testing.T) {
	server, _ := newTestServer(t, false)

	go server.Hub().Run()
	defer server.Hub().Close()

	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/changes"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer conn.Close()

	testutils.Eventually(t, func() bool {
		return server.Hub().ClientCount() == 1
	}, 2*time.Second, "client registered")

	server.Hub().BroadcastChange(hotreload.ChangeRecord{
		ID:      "change-1",
		Name:    "app",
		Success: true,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read broadcast: %v", err)
	}
	if !strings.Contains(string(message), "config_change") {
		t.Errorf("Expected config_change notification, got %s", message)
	}
	if !strings.Contains(string(message), "change-1") {
		t.Errorf("Expected change record in notification, got %s", message)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	server, suite := newTestServer(t, false)
	server.config.RateLimit.Enabled = true
	server.config.RateLimit.RequestsPerMinute = 60
	server.config.RateLimit.Burst = 2

	// 重新装配路由以启用限流
	limited := NewServer(server.config, server.registry, server.reloader, server.versions, nil, server.cache)
	helper := newTestHelper(suite, limited)

	codes := make(map[int]int)
	for i := 0; i < 10; i++ {
		resp := helper.GET("/health", nil)
		codes[resp.StatusCode]++
	}

	if codes[http.StatusTooManyRequests] == 0 {
		t.Error("Expected some requests to be rate limited")
	}
	if codes[http.StatusOK] == 0 {
		t.Error("Expected some requests to succeed within burst")
	}
}
