package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradeguard/internal/api"
	"tradeguard/internal/events"
	"tradeguard/internal/journal"
	"tradeguard/internal/monitor"
	"tradeguard/internal/risk"
	"tradeguard/pkg/config"
	"tradeguard/pkg/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[BOOT] config load failed: %v", err)
	}

	buildVersion := os.Getenv("APP_VERSION")
	if buildVersion == "" {
		buildVersion = "v1.0-dev"
	}
	log.Printf("[BOOT] starting tradeguard %s on port %s (db: %s)", buildVersion, cfg.Port, cfg.DBPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("[BOOT] db init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("[BOOT] db migrations failed: %v", err)
	}

	sysMetrics := monitor.NewSystemMetrics()

	defaults := risk.Limits{
		MaxDailyLoss:     cfg.DefaultLimits.MaxDailyLoss,
		MaxTradesPerDay:  cfg.DefaultLimits.MaxTradesPerDay,
		MaxTradesMonthly: cfg.DefaultLimits.MaxTradesMonthly,
		MaxTradesYearly:  cfg.DefaultLimits.MaxTradesYearly,
	}
	if err := defaults.Validate(); err != nil {
		log.Fatalf("[BOOT] invalid default limits: %v", err)
	}
	cooldown := time.Duration(cfg.LockCooldownHours) * time.Hour

	store := risk.NewSQLStore(database.DB)
	engine := risk.NewEngine(store, bus, sysMetrics, defaults, cooldown)
	log.Printf("[RISK] engine ready: daily loss $%s, caps %d/%d/%d, cooldown %s",
		defaults.MaxDailyLoss, defaults.MaxTradesPerDay, defaults.MaxTradesMonthly,
		defaults.MaxTradesYearly, cooldown)

	journalSvc := journal.NewService(database, engine, bus, sysMetrics)

	// Drop idle per-user engine state and refresh the active-user gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				engine.CleanupIdle(30 * time.Minute)
				sysMetrics.SetRiskActiveUsers(engine.UserCount())
			}
		}
	}()

	server := api.NewServer(
		bus,
		database,
		engine,
		journalSvc,
		sysMetrics,
		api.SystemMeta{Version: buildVersion},
		cfg.JWTSecret,
	)
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("[API] server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("[BOOT] shutting down")
}
