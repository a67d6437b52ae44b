package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"qconf/internal/config"
	"qconf/internal/version"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "配置文件路径")
		envPath    = flag.String("env", ".env", "环境变量文件路径")
		validate   = flag.Bool("validate", false, "验证配置")
		encrypt    = flag.String("encrypt", "", "加密字符串")
		decrypt    = flag.String("decrypt", "", "解密字符串")
		list       = flag.Bool("list", false, "列出配置版本")
		snapshot   = flag.String("snapshot", "", "创建配置版本（参数为描述）")
		rollback   = flag.String("rollback", "", "回滚到指定版本")
		diffOld    = flag.String("diff-old", "", "对比的旧版本")
		diffNew    = flag.String("diff-new", "", "对比的新版本")
		export     = flag.String("export", "", "导出指定版本")
		output     = flag.String("output", "version_export.json", "导出文件路径")
		importPath = flag.String("import", "", "导入版本文件")
		cleanup    = flag.Int("cleanup", -1, "清理旧版本，保留指定数量")
		help       = flag.Bool("help", false, "显示帮助信息")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	if err := config.LoadDotEnv(*envPath); err != nil {
		log.Fatalf("加载环境变量失败: %v", err)
	}

	// 加密/解密功能
	if *encrypt != "" {
		encryptString(*encrypt)
		return
	}
	if *decrypt != "" {
		decryptString(*decrypt)
		return
	}

	if *validate {
		validateConfig(*configPath)
		return
	}

	// 版本管理功能
	switch {
	case *list:
		withVersions(*configPath, func(m *version.Manager) {
			listVersions(m)
		})
	case *snapshot != "":
		withVersions(*configPath, func(m *version.Manager) {
			createVersion(m, *snapshot)
		})
	case *rollback != "":
		withVersions(*configPath, func(m *version.Manager) {
			rollbackVersion(m, *rollback)
		})
	case *diffOld != "" && *diffNew != "":
		withVersions(*configPath, func(m *version.Manager) {
			diffVersions(m, *diffOld, *diffNew)
		})
	case *export != "":
		withVersions(*configPath, func(m *version.Manager) {
			exportVersion(m, *export, *output)
		})
	case *importPath != "":
		withVersions(*configPath, func(m *version.Manager) {
			importVersion(m, *importPath)
		})
	case *cleanup >= 0:
		withVersions(*configPath, func(m *version.Manager) {
			cleanupVersions(m, *cleanup)
		})
	default:
		showHelp()
	}
}

func showHelp() {
	fmt.Println("QConf 配置管理工具")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  confctl [选项]")
	fmt.Println()
	fmt.Println("选项:")
	fmt.Println("  -config string")
	fmt.Println("        配置文件路径 (默认: configs/config.yaml)")
	fmt.Println("  -env string")
	fmt.Println("        环境变量文件路径 (默认: .env)")
	fmt.Println("  -validate")
	fmt.Println("        验证配置文件")
	fmt.Println("  -encrypt string")
	fmt.Println("        加密字符串")
	fmt.Println("  -decrypt string")
	fmt.Println("        解密字符串 (ENC:前缀)")
	fmt.Println("  -list")
	fmt.Println("        列出配置版本")
	fmt.Println("  -snapshot string")
	fmt.Println("        创建配置版本，参数为版本描述")
	fmt.Println("  -rollback string")
	fmt.Println("        回滚到指定版本")
	fmt.Println("  -diff-old / -diff-new string")
	fmt.Println("        对比两个版本")
	fmt.Println("  -export string / -output string")
	fmt.Println("        导出指定版本到文件")
	fmt.Println("  -import string")
	fmt.Println("        从文件导入版本")
	fmt.Println("  -cleanup int")
	fmt.Println("        清理旧版本，保留指定数量")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  confctl -validate")
	fmt.Println("  confctl -encrypt 'my-secret-password'")
	fmt.Println("  confctl -list")
	fmt.Println("  confctl -rollback v_20260801_120000")
	fmt.Println("  confctl -diff-old v_20260801_120000 -diff-new v_20260802_090000")
}

func validateConfig(configPath string) {
	fmt.Printf("正在验证配置文件: %s\n", configPath)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("配置文件不存在: %s", configPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("加载配置文件失败: %v", err)
	}

	if err := config.NewValidator(cfg).Validate(); err != nil {
		log.Fatalf("配置验证失败: %v", err)
	}

	fmt.Println("配置验证通过 ✓")
	fmt.Printf("  应用: %s %s (%s)\n", cfg.App.Name, cfg.App.Version, cfg.App.Environment)
	fmt.Printf("  监听: %s:%d\n", cfg.Server.Host, cfg.Server.Port)
}

func encryptString(plaintext string) {
	em := config.NewEnvManager("", "")
	encrypted, err := em.EncryptValue(plaintext)
	if err != nil {
		log.Fatalf("加密失败: %v", err)
	}
	fmt.Println(encrypted)
}

func decryptString(encrypted string) {
	em := config.NewEnvManager("", "")
	plaintext, err := em.DecryptValue(encrypted)
	if err != nil {
		log.Fatalf("解密失败: %v", err)
	}
	fmt.Println(plaintext)
}

// withVersions builds a version manager from the service configuration and
// runs the given operation
func withVersions(configPath string, fn func(*version.Manager)) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("加载配置文件失败: %v", err)
	}

	baseDir := "configs"
	if len(cfg.HotReload.WatchDirs) > 0 {
		baseDir = cfg.HotReload.WatchDirs[0]
	}

	registry := config.NewManager(baseDir, cfg.App.Environment)
	if err := registry.LoadDir(); err != nil {
		log.Printf("警告: 部分配置文件加载失败: %v", err)
	}

	manager, err := version.NewManager(cfg.Versions, registry, nil)
	if err != nil {
		log.Fatalf("初始化版本管理失败: %v", err)
	}

	fn(manager)
}

func listVersions(m *version.Manager) {
	versions := m.List()
	if len(versions) == 0 {
		fmt.Println("暂无配置版本")
		return
	}

	fmt.Printf("共 %d 个版本:\n", len(versions))
	for _, meta := range versions {
		fmt.Printf("  %s  %s  configs=%d  %s\n",
			meta.ID, meta.Timestamp.Format("2006-01-02 15:04:05"), meta.ConfigCount, meta.Description)
	}
}

func createVersion(m *version.Manager, description string) {
	v, err := m.Create(context.Background(), description, currentUser())
	if err != nil {
		log.Fatalf("创建版本失败: %v", err)
	}
	fmt.Printf("版本已创建: %s (configs=%d)\n", v.ID, len(v.Configs))
}

func rollbackVersion(m *version.Manager, id string) {
	if err := m.Rollback(context.Background(), id); err != nil {
		log.Fatalf("回滚失败: %v", err)
	}
	fmt.Printf("已回滚到版本: %s\n", id)
}

func diffVersions(m *version.Manager, oldID, newID string) {
	diff, err := m.Diff(oldID, newID)
	if err != nil {
		log.Fatalf("版本对比失败: %v", err)
	}

	if diff.Empty() {
		fmt.Println("两个版本没有差异")
		return
	}

	for key, value := range diff.Added {
		fmt.Printf("  + %s = %v\n", key, value)
	}
	for key, value := range diff.Removed {
		fmt.Printf("  - %s = %v\n", key, value)
	}
	for key, change := range diff.Changed {
		fmt.Printf("  ~ %s: %v -> %v\n", key, change.Old, change.New)
	}
	for key, change := range diff.TypeChanged {
		fmt.Printf("  ! %s: %v (%T) -> %v (%T)\n", key, change.Old, change.Old, change.New, change.New)
	}
}

func exportVersion(m *version.Manager, id, output string) {
	if err := m.Export(id, output); err != nil {
		log.Fatalf("导出失败: %v", err)
	}
	fmt.Printf("版本 %s 已导出到 %s\n", id, output)
}

func importVersion(m *version.Manager, path string) {
	v, err := m.Import(context.Background(), path)
	if err != nil {
		log.Fatalf("导入失败: %v", err)
	}
	fmt.Printf("版本已导入: %s\n", v.ID)
}

func cleanupVersions(m *version.Manager, keep int) {
	removed, err := m.Cleanup(context.Background(), keep)
	if err != nil {
		log.Fatalf("清理失败: %v", err)
	}
	fmt.Printf("已清理 %d 个旧版本\n", removed)
}

func currentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "confctl"
}
