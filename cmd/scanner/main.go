package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"restack-guard/internal/cache"
	"restack-guard/internal/config"
	"restack-guard/internal/credentials"
	"restack-guard/internal/handler"
	"restack-guard/internal/middleware"
	"restack-guard/internal/notify"
	"restack-guard/internal/opclock"
	"restack-guard/internal/repository"
	"restack-guard/internal/router"
	"restack-guard/internal/service"
	"restack-guard/internal/upstream"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting restack-guard scanner...")

	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	store, err := openStateStore(&cfg.State)
	if err != nil {
		log.Fatalf("Failed to initialize %s state store: %v", cfg.State.Type, err)
	}
	defer store.Close()
	log.Printf("State store initialized (%s)", cfg.State.Type)

	state := service.NewReconciliationState(store)
	engine := service.NewEngine(state)
	client := upstream.New(upstream.Config{
		ApexBaseURL:      cfg.Upstream.ApexBaseURL,
		LoadEntryBaseURL: cfg.Upstream.LoadEntryBaseURL,
		Timeout:          cfg.Upstream.Timeout,
		RatePerSecond:    cfg.Upstream.RatePerSecond,
		Burst:            cfg.Upstream.Burst,
	})
	orchestrator := service.NewOrchestrator(client, engine, opclock.New(cfg.Scan.DayBoundaryHour))

	provider := credentials.NewStaticProvider(
		credentials.TokenSource{Token: cfg.Credentials.ApexToken, File: cfg.Credentials.ApexTokenFile},
		credentials.TokenSource{Token: cfg.Credentials.LoadEntryToken, File: cfg.Credentials.LoadEntryTokenFile},
	)

	notifiers := notify.Multi{notify.LogNotifier{}}
	if cfg.Notify.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout))
		log.Println("Webhook notifier enabled")
	}

	scheduler := service.NewScheduler(orchestrator, provider, notifiers, service.SchedulerConfig{
		SubDepts:      cfg.Scan.SubDepts,
		Interval:      cfg.Scan.Interval,
		CycleTimeout:  cfg.Scan.CycleTimeout,
		NotifyTimeout: cfg.Notify.Timeout,
	})

	if err := scheduler.Authenticate(context.Background()); err != nil {
		log.Printf("Warning: initial authentication failed, use POST /api/v1/scanner/authenticate: %v", err)
	} else if cfg.Scan.AutoStart {
		if err := scheduler.Start(); err != nil {
			log.Printf("Warning: scanner auto-start failed: %v", err)
		}
	}

	r := router.New(router.Config{
		Handler:        handler.New(scheduler, cfg.App.Name, cfg.App.Version),
		ScannerHandler: handler.NewScannerHandler(scheduler),
		AdminHandler:   handler.NewAdminHandler(scheduler, state, cfg.State.Type),
		AuthMiddleware: middleware.NewAuthMiddleware(cfg.App.APIKeys),
	})
	if len(cfg.App.APIKeys) == 0 {
		log.Println("Warning: DASHBOARD_API_KEYS is empty, control surface is unauthenticated")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if err := scheduler.Shutdown(ctx); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}

	log.Println("Scanner stopped")
	fmt.Println("Goodbye!")
}

// openStateStore builds the dedup set store selected by STATE_STORE_TYPE.
func openStateStore(cfg *config.StateConfig) (cache.SetStore, error) {
	switch cfg.Type {
	case "memory":
		log.Println("Warning: memory state store loses dedup history on restart")
		return cache.NewMemorySetStore(), nil
	case "redis":
		store, err := cache.NewRedisSetStore(cache.RedisSetConfig{
			Addr:      cfg.RedisAddress(),
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		driver, dsn, err := cfg.DSN()
		if err != nil {
			return nil, err
		}
		if driver == "sqlite" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
				return nil, fmt.Errorf("create state directory: %w", err)
			}
		}
		store, err := repository.NewSQLSetStore(driver, dsn)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}
