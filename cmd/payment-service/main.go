package main

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"paysync/internal/pkg/bootstrap"
	"paysync/internal/pkg/logger"
	"paysync/internal/pkg/mq"
	"paysync/internal/service/payment/application"
	"paysync/internal/service/payment/domain"
	payport "paysync/internal/service/payment/domain/port"
	"paysync/internal/service/payment/infrastructure"
	"paysync/internal/service/payment/infrastructure/adapter"
	"paysync/internal/service/payment/interfaces"
)

// main 函数是应用的"组装根" (Composition Root)：
// 创建并组装所有依赖项，然后启动应用。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()
	logger.Init(cfg.Service.Name, cfg.Service.LogLevel)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. 订单存储
	var repo domain.OrderRepository
	switch cfg.Store.Backend {
	case "memory":
		repo = infrastructure.NewMemoryOrderRepository()
	default:
		db, err := gorm.Open(mysql.Open(cfg.Store.DSN), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to open mysql: %v", err)
		}
		if err := infrastructure.Migrate(db); err != nil {
			log.Fatalf("failed to migrate order schema: %v", err)
		}
		repo = infrastructure.NewGormOrderRepository(db)
	}

	// 2. 游标存储：Redis 不可用时退化为进程内游标
	var cursorStore payport.CursorStore
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	if err := redisClient.Ping(rootCtx).Err(); err != nil {
		log.Printf("WARN: redis unavailable (%v), event cursor will not survive restarts", err)
		cursorStore = infrastructure.NewMemoryCursorStore()
	} else {
		cursorStore = infrastructure.NewRedisCursorStore(redisClient, cfg.Redis.CursorKey)
	}

	// 3. 订单锁
	var locker payport.OrderLocker
	var zkLocker *adapter.ZookeeperLocker
	if cfg.Reconcile.LockBackend == "zookeeper" {
		var err error
		zkLocker, err = adapter.NewZookeeperLocker(cfg.Zookeeper.Servers, cfg.Reconcile.LockLease)
		if err != nil {
			log.Fatalf("failed to connect zookeeper lock backend: %v", err)
		}
		locker = zkLocker
	} else {
		locker = infrastructure.NewLeaseLock(cfg.Reconcile.LockLease)
	}

	// 4. 告警侧信道
	alertWriter := mq.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.AlertTopic)
	notifier := adapter.NewAlertKafkaAdapter(alertWriter)

	// 5. 网关客户端与状态流
	gateway := adapter.NewOnpayHTTPAdapter(cfg.Gateway.BaseURL, cfg.Gateway.APIKey)
	hub := interfaces.NewStatusStreamHub()
	go hub.Run(rootCtx)

	// 6. 对账引擎与调度器
	service := application.NewReconciliationService(repo, gateway, locker, notifier, cursorStore, hub, application.Config{
		GatewayID:        cfg.Gateway.GatewayID,
		Secret:           []byte(cfg.Gateway.Secret),
		FrontendURL:      cfg.Service.FrontendURL,
		BackendURL:       cfg.Service.BackendURL,
		OrderExpiry:      cfg.Reconcile.OrderExpiry,
		EventAgeLimit:    cfg.Reconcile.EventAgeLimit,
		PerOrderTimeout:  cfg.Reconcile.PerOrderTimeout,
		SweepParallelism: cfg.Reconcile.SweepParallelism,
		DedupCapacity:    cfg.Reconcile.DedupCapacity,
		FinalizeRetries:  cfg.Reconcile.FinalizeRetries,
		RetryBackoff:     cfg.Reconcile.RetryBackoff,
	})
	scheduler := application.NewScheduler(service, cfg.Reconcile.SweepInterval, cfg.Reconcile.PollInterval, cfg.Reconcile.TickTimeout)
	scheduler.Start(rootCtx)

	handler := interfaces.NewPaymentHandler(service)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: cfg.Service.Name,
		Port:        cfg.Service.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
			appCtx.Mux.HandleFunc("/ws/orders", hub.ServeWS)
		},
		OnShutdown: func(ctx context.Context) {
			scheduler.Stop()
			cancel()
			if err := notifier.Close(); err != nil {
				log.Printf("Error closing alert writer: %v", err)
			}
			if zkLocker != nil {
				zkLocker.Close()
			}
			if err := redisClient.Close(); err != nil {
				log.Printf("Error closing redis client: %v", err)
			}
		},
	})
}
