package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/liamcoop/stagegate/internal/config"
	"github.com/liamcoop/stagegate/internal/logger"
	"github.com/liamcoop/stagegate/jobs"
	"github.com/liamcoop/stagegate/rules"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	if err := logger.Configure(context.Background(), logger.Options{
		Level:       cfg.Log.Level,
		SampleRate:  cfg.Log.SampleRate,
		OTELEnabled: cfg.Log.OTELEnabled,
		ServiceName: cfg.Log.ServiceName,
	}); err != nil {
		logger.Warn("logger setup degraded", "error", err)
	}

	ruleSet, err := loadRuleSet(cfg.RulesFile)
	if err != nil {
		logger.Fatal("failed to load stage rules", "error", err, "file", cfg.RulesFile)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to open database", "error", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatal("failed to ping database", "error", err)
	}

	store := jobs.NewPostgresJobStore(db)
	provider := jobs.NewPostgresFactProvider(db, ruleSet.Table, ruleSet.Deriver)
	svc := jobs.NewService(store, provider, ruleSet.Table, cfg.SnapshotTimeout)
	server := NewServer(svc, db, cfg.RequestTimeout)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("server starting",
			"port", cfg.Port,
			"stages", len(ruleSet.Table.Stages()),
			"derived", ruleSet.Deriver.Names(),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(ctx); err != nil {
		logger.Error("logger shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

// loadRuleSet reads path, or falls back to the built-in pipeline when path is empty
func loadRuleSet(path string) (*rules.RuleSet, error) {
	if path == "" {
		return rules.DefaultRuleSet()
	}
	return rules.LoadRuleFile(path)
}
