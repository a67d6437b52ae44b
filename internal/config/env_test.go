package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"qconf/internal/testutils"
)

func TestEnvManagerTypedGetters(t *testing.T) {
	em := NewEnvManager("test-key", "QCONF_TEST_")

	testutils.SetEnv(t, "QCONF_TEST_NAME", "qconf")
	testutils.SetEnv(t, "QCONF_TEST_PORT", "8082")
	testutils.SetEnv(t, "QCONF_TEST_DEBUG", "true")
	testutils.SetEnv(t, "QCONF_TEST_TIMEOUT", "45s")
	testutils.SetEnv(t, "QCONF_TEST_BAD_INT", "abc")

	if got := em.GetString("name", "default"); got != "qconf" {
		t.Errorf("GetString = %q, want qconf", got)
	}
	if got := em.GetString("missing", "default"); got != "default" {
		t.Errorf("GetString default = %q, want default", got)
	}
	if got := em.GetInt("port", 0); got != 8082 {
		t.Errorf("GetInt = %d, want 8082", got)
	}
	if got := em.GetInt("bad_int", 7); got != 7 {
		t.Errorf("GetInt fallback = %d, want 7", got)
	}
	if got := em.GetBool("debug", false); !got {
		t.Error("GetBool = false, want true")
	}
	if got := em.GetDuration("timeout", time.Second); got != 45*time.Second {
		t.Errorf("GetDuration = %v, want 45s", got)
	}
}

func TestEnvManagerEncryptDecrypt(t *testing.T) {
	em := NewEnvManager("test-encryption-key", "QCONF_TEST_")

	plaintext := "super-secret-api-key"

	encrypted, err := em.EncryptValue(plaintext)
	if err != nil {
		t.Fatalf("EncryptValue failed: %v", err)
	}
	if !strings.HasPrefix(encrypted, "ENC:") {
		t.Errorf("Encrypted value must carry ENC: prefix, got %q", encrypted)
	}
	if strings.Contains(encrypted, plaintext) {
		t.Error("Encrypted value must not contain the plaintext")
	}

	decrypted, err := em.DecryptValue(encrypted)
	if err != nil {
		t.Fatalf("DecryptValue failed: %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("Decrypted = %q, want %q", decrypted, plaintext)
	}
}

func TestEnvManagerDecryptRejectsPlain(t *testing.T) {
	em := NewEnvManager("test-encryption-key", "QCONF_TEST_")

	if _, err := em.DecryptValue("not-encrypted"); err == nil {
		t.Error("Expected error decrypting value without ENC: prefix")
	}
}

func TestEnvManagerWrongKey(t *testing.T) {
	em1 := NewEnvManager("key-one", "QCONF_TEST_")
	em2 := NewEnvManager("key-two", "QCONF_TEST_")

	encrypted, err := em1.EncryptValue("secret")
	if err != nil {
		t.Fatalf("EncryptValue failed: %v", err)
	}

	// 错误密钥解密得到乱码而不是原文
	decrypted, err := em2.DecryptValue(encrypted)
	if err == nil && decrypted == "secret" {
		t.Error("Decryption with wrong key must not recover plaintext")
	}
}

func TestEnvManagerEncryptedRoundtrip(t *testing.T) {
	em := NewEnvManager("test-encryption-key", "QCONF_TEST_")

	if err := em.SetEncryptedString("db_password", "hunter2"); err != nil {
		t.Fatalf("SetEncryptedString failed: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("QCONF_TEST_DB_PASSWORD") })

	raw := os.Getenv("QCONF_TEST_DB_PASSWORD")
	if !strings.HasPrefix(raw, "ENC:") {
		t.Errorf("Stored value must carry ENC: prefix, got %q", raw)
	}

	if got := em.GetEncryptedString("db_password", ""); got != "hunter2" {
		t.Errorf("GetEncryptedString = %q, want hunter2", got)
	}
}

func TestEnvManagerLoadFromFile(t *testing.T) {
	suite := testutils.NewTestSuite(t)
	defer suite.TearDown()

	envFile := suite.CreateTempFile(".env", `
# comment line
QCONF_TEST_FILE_VAR="quoted value"
QCONF_TEST_FILE_PLAIN=plain

invalid line without equals
`)

	em := NewEnvManager("test-key", "QCONF_TEST_")
	if err := em.LoadFromFile(envFile); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("QCONF_TEST_FILE_VAR")
		os.Unsetenv("QCONF_TEST_FILE_PLAIN")
	})

	if got := os.Getenv("QCONF_TEST_FILE_VAR"); got != "quoted value" {
		t.Errorf("Expected quotes stripped, got %q", got)
	}
	if got := os.Getenv("QCONF_TEST_FILE_PLAIN"); got != "plain" {
		t.Errorf("Expected plain value, got %q", got)
	}
}

func TestEnvManagerExportToFile(t *testing.T) {
	suite := testutils.NewTestSuite(t)
	defer suite.TearDown()

	em := NewEnvManager("test-key", "QCONF_EXPORT_")
	testutils.SetEnv(t, "QCONF_EXPORT_PLAIN", "visible")
	testutils.SetEnv(t, "QCONF_EXPORT_SECRET", "ENC:abcdef")

	exportPath := filepath.Join(suite.TempDir, "export.env")
	if err := em.ExportToFile(exportPath, false); err != nil {
		t.Fatalf("ExportToFile failed: %v", err)
	}

	content := string(testutils.ReadTestFile(t, exportPath))
	if !strings.Contains(content, `QCONF_EXPORT_PLAIN="visible"`) {
		t.Errorf("Export missing plain variable:\n%s", content)
	}
	if strings.Contains(content, "QCONF_EXPORT_SECRET") {
		t.Error("Encrypted values must be skipped unless requested")
	}

	// includeEncrypted=true 时导出加密值
	if err := em.ExportToFile(exportPath, true); err != nil {
		t.Fatalf("ExportToFile failed: %v", err)
	}
	content = string(testutils.ReadTestFile(t, exportPath))
	if !strings.Contains(content, "QCONF_EXPORT_SECRET") {
		t.Error("Encrypted values must be exported when requested")
	}
}

func TestEnvManagerValidateRequired(t *testing.T) {
	em := NewEnvManager("test-key", "QCONF_REQ_")

	testutils.SetEnv(t, "QCONF_REQ_PRESENT", "yes")

	if err := em.ValidateRequired([]string{"present"}); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	err := em.ValidateRequired([]string{"present", "absent"})
	if err == nil {
		t.Fatal("Expected error for missing variable")
	}
	if !strings.Contains(err.Error(), "QCONF_REQ_ABSENT") {
		t.Errorf("Error should name the missing variable: %v", err)
	}
}
