package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qconf/internal/api"
	"qconf/internal/cache"
	"qconf/internal/config"
	"qconf/internal/database"
	"qconf/internal/hotreload"
	"qconf/internal/logging"
	"qconf/internal/version"
)

func main() {
	var (
		configPath  = flag.String("config", "configs/config.yaml", "配置文件路径")
		envPath     = flag.String("env", ".env", "环境变量文件路径")
		loggingPath = flag.String("logging", "configs/logging.yaml", "日志配置文件路径")
	)
	flag.Parse()

	// 加载环境变量和服务配置
	if err := config.LoadDotEnv(*envPath); err != nil {
		log.Fatalf("加载环境变量失败: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置文件失败: %v", err)
	}

	if err := config.NewValidator(cfg).Validate(); err != nil {
		log.Fatalf("配置验证失败: %v", err)
	}

	// 独立日志配置文件优先，缺失时退回服务配置中的logging段
	logCfg := &logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		LogDir:     cfg.Logging.LogDir,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
	}
	if _, err := os.Stat(*loggingPath); err == nil {
		fileCfg, err := logging.LoadFileConfig(*loggingPath, cfg.App.Environment)
		if err != nil {
			log.Fatalf("加载日志配置失败: %v", err)
		}
		logCfg = fileCfg
	}

	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	logging.SetGlobalLogger(logger)

	logging.Infof("Starting %s %s (%s)", cfg.App.Name, cfg.App.Version, cfg.App.Environment)

	// 数据库不可用时降级为仅文件存储
	var db *database.DB
	if cfg.Database.Enabled {
		db, err = database.NewConnection(&database.Config{
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
			logging.WithError(err).Warn("database unavailable, running in degraded mode")
			db = nil
		} else {
			defer db.Close()
		}
	}

	cacheClient, err := cache.NewCache(&cache.Config{
		Enabled:  cfg.Redis.Enabled,
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		logging.WithError(err).Warn("redis unavailable, falling back to in-memory cache")
		cacheClient = cache.NewMemoryCache()
	}
	defer cacheClient.Close()

	// 配置注册表
	registry := config.NewManager(firstWatchDir(cfg), cfg.App.Environment)
	if err := registry.LoadDir(); err != nil {
		logging.WithError(err).Warn("some configuration files failed to load")
	}

	// 热重载
	var reloader *hotreload.Manager
	if cfg.HotReload.Enabled {
		reloader, err = hotreload.NewManager(cfg.HotReload, registry)
		if err != nil {
			log.Fatalf("初始化热重载失败: %v", err)
		}
	}

	// 版本管理
	var store version.Store
	if db != nil && cfg.Versions.PersistToDB {
		store = version.NewPostgresStore(db)
	}
	versions, err := version.NewManager(cfg.Versions, registry, store)
	if err != nil {
		log.Fatalf("初始化版本管理失败: %v", err)
	}
	if err := versions.StartCleanupScheduler(); err != nil {
		log.Fatalf("启动版本清理任务失败: %v", err)
	}
	defer versions.StopCleanupScheduler()

	server := api.NewServer(cfg, registry, reloader, versions, db, cacheClient)

	// 配置变更通知: WebSocket 广播、Redis 发布、数据库落盘
	if reloader != nil {
		reloader.RegisterHandler("", server.Hub().Handler())

		channel := cfg.Redis.Channel
		reloader.RegisterHandler("", func(record hotreload.ChangeRecord) error {
			payload, err := json.Marshal(record)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return cacheClient.Publish(ctx, channel, string(payload))
		})

		// 变更后的文档写入缓存，供其他进程读取
		reloader.RegisterHandler("", func(record hotreload.ChangeRecord) error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			key := "qconf:doc:" + record.Name
			doc, exists := registry.Get(record.Name)
			if !exists {
				return cacheClient.Delete(ctx, key)
			}
			payload, err := json.Marshal(doc)
			if err != nil {
				return err
			}
			return cacheClient.Set(ctx, key, string(payload), time.Hour)
		})

		if db != nil {
			reloader.RegisterHandler("", hotreload.NewChangeStore(db).Handler())
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := reloader.Start(ctx); err != nil {
			log.Fatalf("启动热重载失败: %v", err)
		}
		defer reloader.Stop()
	}

	go func() {
		if err := server.Start(); err != nil {
			logging.WithError(err).Fatal("API server failed")
		}
	}()

	// 等待退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logging.Infof("Received signal %v, shutting down...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logging.WithError(err).Error("error during shutdown")
	}
}

// firstWatchDir returns the registry base directory. The first watched
// directory doubles as the place managed configs live.
func firstWatchDir(cfg *config.Config) string {
	if len(cfg.HotReload.WatchDirs) > 0 {
		return cfg.HotReload.WatchDirs[0]
	}
	return "configs"
}
