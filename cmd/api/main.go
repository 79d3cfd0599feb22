package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meli-stock-audit/internal/config"
	"meli-stock-audit/internal/handler"
	"meli-stock-audit/internal/meli"
	"meli-stock-audit/internal/repository"
	"meli-stock-audit/internal/router"
	"meli-stock-audit/internal/service"

	"github.com/redis/go-redis/v9"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting stock audit service...")

	// Load configuration
	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	// Initialize the storage backend
	var (
		snapshots repository.SnapshotRepository
		movements repository.MovementRepository
		records   repository.RecordRepository
		props     repository.PropertyRepository
		pinger    handler.Pinger
	)

	switch cfg.Store.Type {
	case "postgres", "postgresql":
		store, err := repository.NewPostgresStore(cfg.Store.PostgresDSN())
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL store: %v", err)
		}
		defer store.Close()
		snapshots, movements, records, props, pinger = store, store, store, store.Properties(), store
		log.Println("PostgreSQL store initialized")
	case "mysql":
		store, err := repository.NewMySQLStore(cfg.Store.MySQLDSN())
		if err != nil {
			log.Fatalf("Failed to initialize MySQL store: %v", err)
		}
		defer store.Close()
		snapshots, movements, records, props, pinger = store, store, store, store.Properties(), store
		log.Println("MySQL store initialized")
	case "memory":
		store := repository.NewMemoryStore()
		snapshots, movements, records, props = store, store, store, store.Properties()
		log.Println("In-memory store initialized (data is not durable)")
	default: // sqlite
		store, err := repository.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite store: %v", err)
		}
		defer store.Close()
		snapshots, movements, records, props, pinger = store, store, store, store.Properties(), store
		log.Println("SQLite store initialized")
	}

	// Optionally move the property store to Redis
	if cfg.Store.PropsType == "redis" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddress(),
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			log.Printf("Warning: Redis connection failed, keeping DB property store: %v", err)
		} else {
			defer redisClient.Close()
			props = repository.NewRedisPropertyRepository(redisClient)
			log.Println("Redis property store initialized")
		}
	}

	// Initialize services. The token service and API client reference
	// each other, so the OAuth side is wired post-construction.
	tokenService := service.NewTokenService(props, cfg.Meli.ClientID, cfg.Meli.ClientSecret, cfg.Meli.RedirectURI)
	apiClient := meli.NewClient(meli.Config{
		BaseURL:    cfg.Meli.BaseURL,
		Tokens:     tokenService,
		MaxRetries: cfg.Meli.MaxRetries,
		RetryDelay: cfg.Meli.RetryDelay,
		Timeout:    cfg.Meli.Timeout,
	})
	tokenService.SetOAuthClient(apiClient)

	reconcileService := service.NewReconcileService(
		snapshots, movements, records, apiClient, tokenService, cfg.Audit.OrderLookback)
	auditService := service.NewAuditService(apiClient, reconcileService, props, tokenService, service.AuditConfig{
		PageSize: cfg.Audit.PageSize,
		Budget:   cfg.Audit.Budget,
	})
	queueService := service.NewQueueService(props, records, service.QueueConfig{
		MaxSize:          cfg.Queue.MaxSize,
		MaxProcessedIDs:  cfg.Queue.MaxProcessedIDs,
		ArchiveThreshold: cfg.Queue.ArchiveThreshold,
		Expiry:           cfg.Queue.Expiry,
		MaxAttempts:      cfg.Queue.MaxAttempts,
	})
	reportService := service.NewReportService(movements, 24*time.Hour)
	recoveryService := service.NewRecoveryService(apiClient, queueService, cfg.Meli.AppID)

	// Background workers
	processor := service.NewProcessor(
		queueService, reconcileService, auditService, records, apiClient, cfg.Queue.DrainInterval)
	processor.Start()
	defer processor.Stop()

	maintenance := service.NewMaintenanceScheduler(movements, service.MaintenanceConfig{
		LogRetention: cfg.Audit.LogRetention,
		Interval:     cfg.Audit.MaintInterval,
	})
	maintenance.Start()
	defer maintenance.Stop()

	// Initialize handlers
	healthHandler := handler.New(pinger)
	webhookHandler := handler.NewWebhookHandler(queueService)
	oauthHandler := handler.NewOAuthHandler(tokenService)
	adminHandler := handler.NewAdminHandler(
		queueService, reconcileService, auditService, reportService,
		recoveryService, snapshots, apiClient, tokenService, cfg.Meli.AppID)

	// Create router
	r := router.New(router.Config{
		Handler:        healthHandler,
		WebhookHandler: webhookHandler,
		OAuthHandler:   oauthHandler,
		AdminHandler:   adminHandler,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	processor.Stop()
	maintenance.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
