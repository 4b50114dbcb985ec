package main

import (
	"log"
	"os"
	"time"

	v1 "github.com/maxidea1024/gatrix-sub004/api/v1"
	"github.com/maxidea1024/gatrix-sub004/internal/audit"
	"github.com/maxidea1024/gatrix-sub004/internal/auth"
	"github.com/maxidea1024/gatrix-sub004/internal/cache"
	"github.com/maxidea1024/gatrix-sub004/internal/changereq"
	"github.com/maxidea1024/gatrix-sub004/internal/config"
	"github.com/maxidea1024/gatrix-sub004/internal/db"
	"github.com/maxidea1024/gatrix-sub004/internal/effects"
	"github.com/maxidea1024/gatrix-sub004/internal/entitylock"
	"github.com/maxidea1024/gatrix-sub004/internal/gateway"
	"github.com/maxidea1024/gatrix-sub004/internal/outbox"
	"github.com/maxidea1024/gatrix-sub004/internal/policy"
	"github.com/maxidea1024/gatrix-sub004/internal/scheduler"
	"github.com/maxidea1024/gatrix-sub004/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
		os.Exit(1)
	}
	log.Println("✓ Configuration loaded")

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	rootLog := logrus.NewEntry(logger)

	// 2. Initialize MySQL
	if err := db.InitMySQL(cfg.MySQL.DSN); err != nil {
		log.Fatalf("Failed to initialize MySQL: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Migrate {
		if err := db.Migrate(db.GetDB()); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
			os.Exit(1)
		}
		log.Println("✓ Database migrated")
	}

	// 3. Initialize Redis
	if err := cache.InitRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
		os.Exit(1)
	}
	defer cache.Close()

	// 4. Initialize JWT
	auth.InitJWT(cfg.JWT.Secret)

	// 5. Wire services
	registry := buildRegistry()
	effectsReg := buildEffects()

	gdb := db.GetDB()
	policySvc := policy.NewService(gdb)
	auditSvc := audit.NewService(gdb)
	locks := entitylock.NewService(gdb, time.Duration(cfg.EntityLock.TTLSec)*time.Second, rootLog)
	requests := changereq.NewService(gdb, registry, policySvc, auditSvc, rootLog)
	executor := changereq.NewExecutor(gdb, registry, policySvc, auditSvc, effectsReg, rootLog)
	gatewaySvc := gateway.NewService(gdb, registry, policySvc, requests, effectsReg, rootLog)

	// 6. Start background workers
	outboxWorker := outbox.NewWorker(&outbox.Config{
		DB:            gdb,
		Logger:        rootLog,
		IntervalSec:   cfg.OutboxWorker.IntervalSec,
		BatchSize:     cfg.OutboxWorker.BatchSize,
		RetentionDays: cfg.OutboxWorker.RetentionDays,
	})
	if cfg.OutboxWorker.Enabled {
		outboxWorker.Start()
		defer outboxWorker.Stop()
	}

	runner := scheduler.NewRunner(rootLog)
	runner.Add(scheduler.Job{
		Name:     "entity-lock-sweep",
		Interval: time.Duration(cfg.EntityLock.SweepIntervalSec) * time.Second,
		Run: func() error {
			_, err := locks.CleanupExpired()
			return err
		},
	})
	runner.Add(scheduler.Job{
		Name:     "change-request-cleanup",
		Interval: time.Duration(cfg.ChangeRequest.CleanupIntervalSec) * time.Second,
		Run: func() error {
			retention := time.Duration(cfg.ChangeRequest.RejectedRetentionDays) * 24 * time.Hour
			_, err := requests.Cleanup(retention)
			return err
		},
	})
	runner.Add(scheduler.Job{
		Name:     "outbox-cleanup",
		Interval: time.Hour,
		Run: func() error {
			if time.Now().UTC().Hour() != cfg.OutboxWorker.CleanupHourUTC {
				return nil
			}
			_, err := outboxWorker.CleanupOld()
			return err
		},
	})
	runner.Start()
	defer runner.Stop()

	// 7. Initialize Socket.IO and the Redis event relay
	if err := ws.InitServer(); err != nil {
		log.Fatalf("Failed to initialize WebSocket server: %v", err)
		os.Exit(1)
	}
	stopRelay := ws.StartRelay("gatrix:events:*")
	defer stopRelay()

	// 8. Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	wsHandler := ws.WrapWithAuth(ws.Server)
	r.GET("/socket.io/*any", gin.WrapH(wsHandler))
	r.POST("/socket.io/*any", gin.WrapH(wsHandler))

	// Setup API v1 routes
	v1.SetupRouter(r, &v1.Deps{
		DB:       gdb,
		Config:   cfg,
		Gateway:  gatewaySvc,
		Requests: requests,
		Executor: executor,
		Locks:    locks,
	})

	log.Printf("✓ Server starting on %s", cfg.HTTPAddr)

	// Start server
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
		os.Exit(1)
	}
}

// buildRegistry declares the tables that accept managed changes. Tables with
// an entity_version column use token comparison; the rest fall back to
// structural comparison of the captured snapshot.
func buildRegistry() *changereq.Registry {
	registry := changereq.NewRegistry()
	registry.Register(changereq.Table{
		Name:        "coupons",
		IDKind:      changereq.IDUUID,
		TokenColumn: "entity_version",
	})
	registry.Register(changereq.Table{
		Name:        "remote_config_templates",
		IDKind:      changereq.IDAutoIncrement,
		TokenColumn: "entity_version",
	})
	registry.Register(changereq.Table{
		Name:        "client_versions",
		IDKind:      changereq.IDAutoIncrement,
		TokenColumn: "entity_version",
	})
	registry.Register(changereq.Table{
		Name:   "service_notices",
		IDKind: changereq.IDAutoIncrement,
	})
	return registry
}

// buildEffects binds post-commit cache projections to the tables whose
// committed state the game servers read from Redis.
func buildEffects() *effects.Registry {
	reg := effects.NewRegistry()
	reg.Register("remote_config_templates", effects.RemoteConfigHandler())
	reg.Register("client_versions", effects.ClientVersionHandler())
	return reg
}
