package main

import (
	"flag"
	"fmt"
	"log"

	"qconf/internal/config"
	"qconf/internal/database"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "配置文件路径")
		up         = flag.Bool("up", false, "运行数据库迁移")
		down       = flag.Bool("down", false, "回滚数据库迁移")
		version    = flag.Bool("version", false, "显示当前迁移版本")
		force      = flag.Int("force", -1, "强制设置迁移版本（用于修复脏状态）")
		drop       = flag.Bool("drop", false, "删除所有数据库表")
		path       = flag.String("path", "internal/database/migrations", "迁移文件目录")
		help       = flag.Bool("help", false, "显示帮助信息")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置文件失败: %v", err)
	}

	db, err := database.NewConnection(&database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		MaxOpen:  cfg.Database.MaxOpen,
		MaxIdle:  cfg.Database.MaxIdle,
		Timeout:  cfg.Database.Timeout.Duration(),
	})
	if err != nil {
		log.Fatalf("连接数据库失败: %v", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, *path)
	if err != nil {
		log.Fatalf("创建迁移器失败: %v", err)
	}
	defer migrator.Close()

	switch {
	case *up:
		runMigrations(migrator)
	case *down:
		rollbackMigrations(migrator)
	case *version:
		showVersion(migrator)
	case *force >= 0:
		forceMigrationVersion(migrator, *force)
	case *drop:
		dropDatabase(migrator)
	default:
		// 默认运行迁移
		runMigrations(migrator)
	}
}

func showHelp() {
	fmt.Println("QConf 数据库迁移工具")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  migrate [选项]")
	fmt.Println()
	fmt.Println("选项:")
	fmt.Println("  -config string")
	fmt.Println("        配置文件路径 (默认: configs/config.yaml)")
	fmt.Println("  -up")
	fmt.Println("        运行数据库迁移")
	fmt.Println("  -down")
	fmt.Println("        回滚数据库迁移")
	fmt.Println("  -version")
	fmt.Println("        显示当前迁移版本")
	fmt.Println("  -force int")
	fmt.Println("        强制设置迁移版本（用于修复脏状态）")
	fmt.Println("  -drop")
	fmt.Println("        删除所有数据库表")
	fmt.Println("  -path string")
	fmt.Println("        迁移文件目录 (默认: internal/database/migrations)")
}

func runMigrations(migrator *database.Migrator) {
	fmt.Println("正在运行数据库迁移...")
	if err := migrator.Up(); err != nil {
		log.Fatalf("迁移失败: %v", err)
	}
	fmt.Println("迁移完成 ✓")
	showVersion(migrator)
}

func rollbackMigrations(migrator *database.Migrator) {
	fmt.Println("正在回滚数据库迁移...")
	if err := migrator.Down(); err != nil {
		log.Fatalf("回滚失败: %v", err)
	}
	fmt.Println("回滚完成 ✓")
}

func showVersion(migrator *database.Migrator) {
	version, err := migrator.Version()
	if err != nil {
		log.Fatalf("获取迁移版本失败: %v", err)
	}
	fmt.Printf("当前迁移版本: %d\n", version)
}

func forceMigrationVersion(migrator *database.Migrator, version int) {
	if err := migrator.Force(version); err != nil {
		log.Fatalf("强制设置版本失败: %v", err)
	}
	fmt.Printf("迁移版本已强制设置为: %d\n", version)
}

func dropDatabase(migrator *database.Migrator) {
	fmt.Println("正在删除所有数据库表...")
	if err := migrator.Drop(); err != nil {
		log.Fatalf("删除失败: %v", err)
	}
	fmt.Println("删除完成")
}
