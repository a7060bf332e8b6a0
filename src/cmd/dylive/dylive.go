package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bluele/gcache"
	"github.com/joho/godotenv"

	"github.com/dylive-go/dylive-go/src/cmd/dylive/internal/flag"
	"github.com/dylive-go/dylive-go/src/configs"
	"github.com/dylive-go/dylive-go/src/consts"
	"github.com/dylive-go/dylive-go/src/douyin"
	"github.com/dylive-go/dylive-go/src/instance"
	"github.com/dylive-go/dylive-go/src/log"
	"github.com/dylive-go/dylive-go/src/monitor"
	"github.com/dylive-go/dylive-go/src/notify"
	"github.com/dylive-go/dylive-go/src/pkg/dysentry"
	"github.com/dylive-go/dylive-go/src/pkg/events"
	"github.com/dylive-go/dylive-go/src/rooms"
	"github.com/dylive-go/dylive-go/src/scheduler"
	"github.com/dylive-go/dylive-go/src/servers"
	"github.com/dylive-go/dylive-go/src/storage"
)

// SentryDSN 编译时通过 -ldflags="-X main.SentryDSN=..." 注入，
// 或者运行时由环境变量 SENTRY_DSN 提供
var (
	SentryDSN = ""
	SentryEnv = "production"
)

func getConfig() (*configs.Config, error) {
	var config *configs.Config
	if *flag.Conf != "" {
		c, err := configs.NewConfigWithFile(*flag.Conf)
		if err != nil {
			return nil, err
		}
		config = c
	} else {
		config = flag.GenConfigFromFlags()
	}
	config.ApplyEnvOverrides()
	return config, config.Verify()
}

func main() {
	// 程序退出时刷新 Sentry 事件队列
	defer dysentry.Flush(2 * time.Second)
	// 捕获主 goroutine 的 panic
	defer dysentry.Recover()

	// .env 不存在不是错误
	_ = godotenv.Load()

	config, err := getConfig()
	if err != nil {
		fmt.Fprint(os.Stderr, err.Error())
		os.Exit(1)
	}
	configs.SetCurrentConfig(config)

	sentryDSN := SentryDSN
	if sentryDSN == "" {
		sentryDSN = os.Getenv("SENTRY_DSN")
	}
	if config.Sentry.Enable && sentryDSN != "" {
		environment := SentryEnv
		if config.Debug {
			environment = "development"
		}
		if err := dysentry.Init(sentryDSN, environment, consts.AppVersion); err != nil {
			fmt.Fprintf(os.Stderr, "警告: Sentry 初始化失败: %v\n", err)
		}
	}

	inst := new(instance.Instance)
	inst.Cache = gcache.New(4096).LRU().Build()

	// 可取消的根 context，所有 goroutine 都派生于它
	rootCtx, rootCancel := context.WithCancel(context.Background())
	ctx := context.WithValue(rootCtx, instance.Key, inst)

	logger := log.New(ctx)
	logger.Infof("%s Version: %s Link Start", consts.AppName, consts.AppVersion)
	if config.File != "" {
		logger.Debugf("config path: %s.", config.File)
		logger.Debugf("other flags have been ignored.")
	} else {
		logger.Debugf("config file is not used.")
		logger.Debugf("flag: %s used.", os.Args)
	}
	logger.Debugf("%+v", consts.GetAppInfo())
	logger.Debugf("%+v", configs.GetCurrentConfig())

	store, err := storage.NewSQLiteStore(config.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("failed to open database")
	}
	inst.Store = store

	ed := events.NewDispatcher(ctx)
	inst.EventDispatcher = ed

	signer, err := douyin.NewJSSigner(config.Douyin.SignScript)
	if err != nil {
		logger.WithError(err).Fatal("failed to load signature script")
	}
	deps := monitor.Deps{
		Config:     config,
		Prober:     douyin.NewResolver(config, inst.Cache),
		Signer:     signer,
		Dialer:     monitor.NewDialer(),
		Store:      store,
		Dispatcher: ed,
	}

	rm := rooms.NewManager(ctx, deps)
	if err := rm.Start(ctx); err != nil {
		logger.Fatalf("failed to init room manager, error: %s", err)
	}

	sched := scheduler.NewScheduler(ctx, rm, store)
	if err := sched.Start(ctx); err != nil {
		logger.Fatalf("failed to init scheduler, error: %s", err)
	}

	if cfg := configs.GetCurrentConfig(); cfg != nil && cfg.RPC.Enable {
		if err := servers.NewServer(ctx).Start(ctx); err != nil {
			logger.WithError(err).Fatalf("failed to init server")
		}
	}

	notify.RegisterEventListeners(ed)

	// 登记配置文件里声明的直播间
	for _, room := range config.LiveRooms {
		liveRoom := &storage.LiveRoom{
			LiveID:        room.LiveID,
			MonitorType:   room.MonitorType,
			AutoReconnect: room.AutoReconnect,
		}
		if err := rm.AddRoom(ctx, liveRoom); err != nil {
			logger.WithFields(map[string]interface{}{"live_id": room.LiveID}).
				WithError(err).Error("failed to add live room")
		}
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	dysentry.Go(func() {
		<-c
		logger.Info("Received shutdown signal, closing...")
		rootCancel()
		if cfg := configs.GetCurrentConfig(); cfg != nil && cfg.RPC.Enable {
			inst.Server.Close(ctx)
		}
		sched.Close(ctx)
		rm.Close(ctx)
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("failed to close database")
		}
		logger.Info("Shutdown complete")
	})

	inst.WaitGroup.Wait()
	logger.Info("Bye~")
}
