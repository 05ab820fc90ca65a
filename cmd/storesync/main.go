package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"storesync/internal/config"
	"storesync/internal/database"
	httpapi "storesync/internal/http"
	"storesync/internal/logger"
	"storesync/internal/mqtt"
	redisclient "storesync/internal/redis"
	"storesync/internal/repository"
	"storesync/internal/service"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "storesync")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// 数据层：DB 可用走 Postgres，否则退化到内存 repo 支持联测
	var (
		db          *sql.DB
		tenantsRepo repository.TenantsRepository
		ordersRepo  repository.OrdersRepository
		cursorsRepo repository.CursorsRepository
		runsRepo    repository.RunsRepository
	)
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
			db = d
			log.Info("DB enabled for storesync")
		} else {
			log.Warn("DB enabled but connection failed, falling back to memory repos", zap.Error(err))
		}
	}
	if db != nil {
		tenantsRepo = repository.NewPostgresTenantsRepository(db)
		ordersRepo = repository.NewPostgresOrdersRepository(db)
		cursorsRepo = repository.NewPostgresCursorsRepository(db)
		runsRepo = repository.NewPostgresRunsRepository(db)
	} else {
		tenantsRepo = repository.NewMemoryTenantsRepository()
		ordersRepo = repository.NewMemoryOrdersRepository()
		cursorsRepo = repository.NewMemoryCursorsRepository()
		runsRepo = repository.NewMemoryRunsRepository()
	}

	// Redis：运行锁 + 漂移标记；未启用时用进程内实现
	var (
		rdb    *redisclient.Client
		flags  service.DriftFlagStore
		locker service.RunLocker
	)
	if cfg.RedisEnabled {
		rdb = redisclient.NewRedisClient(&cfg.Redis)
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := redisclient.Ping(pingCtx, rdb)
		pingCancel()
		if err != nil {
			log.Warn("Redis enabled but unreachable, using in-process locks", zap.Error(err))
			rdb = nil
		}
	}
	if rdb != nil {
		flags = service.NewRedisDriftFlags(rdb)
		lockTTL := time.Duration(cfg.Sync.RunTimeoutSecs+60) * time.Second
		locker = service.NewRedisRunLocker(rdb, lockTTL, log)
	} else {
		flags = service.NewMemoryDriftFlags()
		locker = service.NewNoopRunLocker()
	}

	// 物流状态服务
	var delivery service.DeliveryStatusProvider
	if cfg.Delivery.Enabled {
		delivery = service.NewDeliveryClient(&cfg.Delivery, log)
	} else {
		delivery = service.NewNoopDeliveryProvider()
	}

	clock := service.NewRealClock()
	upserter := service.NewUpsertEngine(ordersRepo, log)
	reconciler := service.NewCursorReconciler(cursorsRepo, ordersRepo, flags, cfg.Sync.DriftAutoReset, log)
	syncSvc := service.NewSyncService(
		&cfg.Sync, tenantsRepo, runsRepo, cursorsRepo, ordersRepo,
		upserter, reconciler, service.NewStoreClient, clock, log,
	)
	statusSvc := service.NewStatusSyncService(
		&cfg.Sync, delivery, tenantsRepo, runsRepo,
		upserter, reconciler, ordersRepo, service.NewStoreClient,
		cfg.Delivery.BatchLimit, clock, log,
	)
	scheduler := service.NewScheduler(
		&cfg.Sync, syncSvc, statusSvc, tenantsRepo, runsRepo, locker, clock, log,
	)
	scheduler.Start()

	// 控制面
	router := httpapi.NewRouter(log)
	router.RegisterHealthRoutes()
	router.RegisterSchedulerRoutes(httpapi.NewSchedulerHandler(scheduler, log))
	router.RegisterRunRoutes(httpapi.NewRunsHandler(runsRepo, log))
	router.RegisterCursorRoutes(httpapi.NewCursorsHandler(cursorsRepo, flags, reconciler, log))
	router.RegisterAdminTenantRoutes(httpapi.NewTenantsHandler(tenantsRepo, log))

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MQTT 触发（可选）
	var trigger *mqtt.TriggerConsumer
	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.NewClient(&cfg.MQTT, log)
		if err != nil {
			log.Warn("MQTT enabled but connection failed, trigger disabled", zap.Error(err))
		} else {
			trigger = mqtt.NewTriggerConsumer(&cfg.MQTT, mqttClient, scheduler, log)
			go func() {
				if err := trigger.Start(ctx); err != nil {
					log.Error("MQTT trigger consumer exited", zap.Error(err))
				}
			}()
			defer mqttClient.Disconnect()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case <-errCh:
		cancel()
	}

	// 先停调度器，让进行中的运行以 aborted 收束
	scheduler.Stop()
	if trigger != nil {
		trigger.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if rdb != nil {
		_ = rdb.Close()
	}
	if db != nil {
		_ = db.Close()
	}
}
