package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bilancio/internal/api"
	"bilancio/internal/cache"
	"bilancio/internal/config"
	"bilancio/internal/core"
	"bilancio/internal/events"
	gexport "bilancio/internal/export/google"
	"bilancio/internal/filter"
	apphttp "bilancio/internal/http"
	applog "bilancio/internal/log"
	"bilancio/internal/notify"
	"bilancio/internal/poller"
	"bilancio/internal/storage"
)

// The list views served by this instance. Each gets its own persisted
// filter spec.
var views = []string{"movimenti", "amministrazione"}

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Component: applog.ComponentApp,
	})
	applog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStore(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize view-state store", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer store.Close()

	client := api.NewClient(cfg.APIBaseURL, api.WithToken(cfg.APIToken))

	snapshots := cache.NewLRUCache[core.LimitSet](100, 5*time.Minute)
	balances := cache.NewLRUCache[int64](10, 30*time.Second)

	cacheManager := cache.NewManager()
	cacheManager.Register(snapshots)
	cacheManager.Register(balances)
	cacheManager.StartCleanup(10 * time.Minute)
	defer cacheManager.Stop()

	jobPoller := poller.New(client, poller.Caches{
		Snapshots: snapshots,
		Balances:  balances,
	}, notify.LogNotifier{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	controllers := make(map[string]*filter.Controller, len(views))
	for _, view := range views {
		controllers[view] = filter.NewController(ctx, view, store, client)
	}

	var exporter apphttp.Exporter
	if cfg.SheetsExportEnabled() {
		sheets, err := gexport.New(ctx, gexport.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleCredentialsJSON,
			CredentialsFile: cfg.GoogleCredentialsFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Sheets exporter", "error", err)
			os.Exit(1)
		}
		exporter = sheets
		logger.Info("Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	}

	var bus apphttp.RefreshPublisher
	if cfg.AMQPURL != "" {
		eventsClient, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Error("Failed to initialize events client", "error", err)
			os.Exit(1)
		}
		defer eventsClient.Close()
		bus = eventsClient
		logger.Info("Event bus connected", "exchange", cfg.AMQPExchange)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Views:  controllers,
		Poller: jobPoller,
		PollOpts: poller.Options{
			Cost:     cfg.RefreshCost,
			Interval: cfg.RefreshInterval,
			Timeout:  cfg.RefreshTimeout,
		},
		Exporter: exporter,
		Bus:      bus,
		Logger:   logger,
	})

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting bilancio server", "port", cfg.Port, "views", views)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
