package config

import (
	"fmt"
	"sync"
	"testing"

	"qconf/internal/testutils"
)

func TestManagerLoadAndGet(t *testing.T) {
	suite := testutils.NewTestSuite(t)
	defer suite.TearDown()

	suite.CreateTempFile("trading.yaml", `
engine:
  max_positions: 10
  mode: paper
`)

	manager := NewManager(suite.TempDir, "development")

	doc, err := manager.Load("trading")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if doc == nil {
		t.Fatal("Expected document, got nil")
	}

	value, err := manager.GetValue("trading", "engine.max_positions")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if value != 10 {
		t.Errorf("Expected 10, got %v", value)
	}

	if !manager.Has("trading", "engine.mode") {
		t.Error("Expected engine.mode to exist")
	}
	if manager.Has("trading", "engine.missing") {
		t.Error("Expected engine.missing to not exist")
	}
}

func TestManagerLoadDir(t *testing.T) {
	suite := testutils.NewTestSuite(t)
	defer suite.TearDown()

	suite.CreateTempFile("alpha.yaml", "key: a\n")
	suite.CreateTempFile("beta.yml", "key: b\n")
	suite.CreateTempFile("nested/gamma.yaml", "key: c\n")
	suite.CreateTempFile("ignore.txt", "not a config\n")

	manager := NewManager(suite.TempDir, "development")
	if err := manager.LoadDir(); err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}

	names := manager.List()
	expected := []string{"alpha", "beta", "gamma"}
	if len(names) != len(expected) {
		t.Fatalf("Expected %d configs, got %d: %v", len(expected), len(names), names)
	}
	for i, name := range expected {
		if names[i] != name {
			t.Errorf("Expected config %s at index %d, got %s", name, i, names[i])
		}
	}
}

func TestManagerSetValue(t *testing.T) {
	manager := NewManager(t.TempDir(), "development")

	if err := manager.SetValue("runtime", "limits.max_workers", 4); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	value, err := manager.GetValue("runtime", "limits.max_workers")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if value != 4 {
		t.Errorf("Expected 4, got %v", value)
	}
}

type rejectValidator struct {
	key string
}

func (r rejectValidator) Validate(name string, doc Document) error {
	if _, ok := GetValue(doc, r.key); ok {
		return fmt.Errorf("key %s is forbidden", r.key)
	}
	return nil
}

func TestManagerValidatorRejects(t *testing.T) {
	manager := NewManager(t.TempDir(), "development")
	manager.RegisterValidator("risky", rejectValidator{key: "danger"})

	err := manager.Set("risky", Document{"danger": true})
	if err == nil {
		t.Fatal("Expected validation error, got nil")
	}

	// 验证失败的文档不会进入注册表
	if _, exists := manager.Get("risky"); exists {
		t.Error("Rejected document must not be stored")
	}

	// 其他名称不受影响
	if err := manager.Set("safe", Document{"danger": true}); err != nil {
		t.Errorf("Validator must not apply to other names: %v", err)
	}
}

func TestManagerSetValueValidated(t *testing.T) {
	manager := NewManager(t.TempDir(), "development")
	manager.RegisterValidator("risky", rejectValidator{key: "danger"})

	if err := manager.Set("risky", Document{"safe": true}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// 点路径写入同样要经过校验
	if err := manager.SetValue("risky", "danger", 1); err == nil {
		t.Fatal("Expected SetValue to be rejected by validator")
	}

	// 被拒绝的写入不能改变已生效的配置
	if manager.Has("risky", "danger") {
		t.Error("Rejected value must not appear in served document")
	}
	if _, err := manager.GetValue("risky", "safe"); err != nil {
		t.Errorf("Served document must be unchanged: %v", err)
	}
}

func TestManagerGetReturnsCopy(t *testing.T) {
	manager := NewManager(t.TempDir(), "development")

	if err := manager.Set("app", Document{
		"server": map[string]interface{}{"port": 8080},
	}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	doc, _ := manager.Get("app")
	doc["server"].(map[string]interface{})["port"] = 1

	value, err := manager.GetValue("app", "server.port")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if value != 8080 {
		t.Errorf("Mutating a returned document must not affect the registry, got %v", value)
	}
}

func TestManagerConcurrentAccess(t *testing.T) {
	manager := NewManager(t.TempDir(), "development")
	if err := manager.Set("app", Document{
		"server": map[string]interface{}{"port": 8080, "host": "localhost"},
	}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if err := manager.SetValue("app", "server.port", 8080+w); err != nil {
					t.Errorf("SetValue failed: %v", err)
					return
				}
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if _, err := manager.GetValue("app", "server.host"); err != nil {
					t.Errorf("GetValue failed: %v", err)
					return
				}
				if doc, ok := manager.Get("app"); !ok || doc == nil {
					t.Error("Get lost the document during concurrent writes")
					return
				}
			}
		}()
	}
	wg.Wait()

	if _, err := manager.GetValue("app", "server.port"); err != nil {
		t.Errorf("GetValue failed after concurrent access: %v", err)
	}
}

func TestManagerGlobalValidator(t *testing.T) {
	manager := NewManager(t.TempDir(), "development")
	manager.RegisterValidator("", rejectValidator{key: "danger"})

	if err := manager.Set("any", Document{"danger": 1}); err == nil {
		t.Error("Global validator should apply to every document")
	}
}

func TestManagerSnapshotRestore(t *testing.T) {
	manager := NewManager(t.TempDir(), "development")

	if err := manager.Set("app", Document{"version": 1}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	snapshot := manager.CreateSnapshot()

	// 快照后修改配置
	if err := manager.SetValue("app", "version", 2); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	value, _ := manager.GetValue("app", "version")
	if value != 2 {
		t.Fatalf("Expected 2 after modification, got %v", value)
	}

	// 快照内容不受后续修改影响
	if snapshot.Docs["app"]["version"] != 1 {
		t.Error("Snapshot must be a deep copy")
	}

	if err := manager.RestoreSnapshot(snapshot); err != nil {
		t.Fatalf("RestoreSnapshot failed: %v", err)
	}

	value, _ = manager.GetValue("app", "version")
	if value != 1 {
		t.Errorf("Expected 1 after restore, got %v", value)
	}
}

func TestManagerSaveAndReload(t *testing.T) {
	suite := testutils.NewTestSuite(t)
	defer suite.TearDown()

	manager := NewManager(suite.TempDir, "development")

	if err := manager.SetValue("service", "server.port", 9000); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	if err := manager.Save("service"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// 新的manager从磁盘读回
	fresh := NewManager(suite.TempDir, "development")
	if _, err := fresh.Load("service"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	value, err := fresh.GetValue("service", "server.port")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if value != 9000 {
		t.Errorf("Expected 9000, got %v", value)
	}
}

func TestRuleSetValidation(t *testing.T) {
	rules := NewRuleSet("engine",
		Rule{KeyPattern: "engine.mode", Type: TypeString, Required: true,
			AllowedValues: []interface{}{"paper", "live"}},
		Rule{KeyPattern: "engine.max_positions", Type: TypeInt, Min: Float(1), Max: Float(100)},
		Rule{KeyPattern: "limits.*", Type: TypeFloat, Min: Float(0)},
	)

	valid := Document{
		"engine": map[string]interface{}{
			"mode":          "paper",
			"max_positions": 10,
		},
		"limits": map[string]interface{}{
			"max_drawdown": 0.2,
		},
	}
	if err := rules.Validate("engine", valid); err != nil {
		t.Errorf("Expected valid document, got: %v", err)
	}

	tests := []struct {
		name string
		doc  Document
	}{
		{
			name: "missing required key",
			doc:  Document{"engine": map[string]interface{}{"max_positions": 10}},
		},
		{
			name: "disallowed value",
			doc: Document{"engine": map[string]interface{}{
				"mode": "backtest", "max_positions": 10,
			}},
		},
		{
			name: "out of range",
			doc: Document{"engine": map[string]interface{}{
				"mode": "paper", "max_positions": 500,
			}},
		},
		{
			name: "wrong type",
			doc: Document{"engine": map[string]interface{}{
				"mode": "paper", "max_positions": "many",
			}},
		},
		{
			name: "negative limit",
			doc: Document{
				"engine": map[string]interface{}{"mode": "live"},
				"limits": map[string]interface{}{"max_drawdown": -0.5},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := rules.Validate("engine", tt.doc); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestRuleSetCustomCheck(t *testing.T) {
	rules := NewRuleSet("app",
		Rule{KeyPattern: "name", Check: func(value interface{}) error {
			s, ok := value.(string)
			if !ok || len(s) < 3 {
				return fmt.Errorf("name too short")
			}
			return nil
		}},
	)

	if err := rules.Validate("app", Document{"name": "qconf"}); err != nil {
		t.Errorf("Expected valid, got: %v", err)
	}
	if err := rules.Validate("app", Document{"name": "q"}); err == nil {
		t.Error("Expected custom check to fail")
	}
}
