package main

import (
	"context"
	"errors"
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
	applog "bilancio/internal/log"
	"bilancio/internal/notify"
	"bilancio/internal/poller"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Component: applog.ComponentWorker,
	})
	applog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	logger.Info("Starting bilancio-worker")

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

	pollOpts := poller.Options{
		Cost:     cfg.RefreshCost,
		Interval: cfg.RefreshInterval,
		Timeout:  cfg.RefreshTimeout,
	}

	eventsClient, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		logger.Error("Failed to initialize events client", "error", err)
		os.Exit(1)
	}
	defer eventsClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(ctx context.Context, msg *events.RefreshRequested) error {
		result, err := jobPoller.Run(ctx, msg.BudgetID, pollOpts)
		if err != nil {
			// Precheck and single-flight rejections are terminal for this
			// message: report them instead of requeueing.
			if errors.Is(err, poller.ErrInsufficientBalance) || errors.Is(err, poller.ErrRefreshInFlight) {
				completed := &events.RefreshCompleted{
					BudgetID:  msg.BudgetID,
					Outcome:   "rejected",
					Error:     err.Error(),
					Timestamp: time.Now(),
				}
				return eventsClient.PublishRefreshCompleted(ctx, completed)
			}
			return err
		}

		completed := &events.RefreshCompleted{
			BudgetID:  msg.BudgetID,
			Outcome:   result.Outcome.String(),
			ElapsedMs: result.Elapsed.Milliseconds(),
			Timestamp: time.Now(),
		}
		if result.Err != nil {
			completed.Error = result.Err.Error()
		}
		return eventsClient.PublishRefreshCompleted(ctx, completed)
	}

	go func() {
		if err := eventsClient.ConsumeRefreshRequests(ctx, handler); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
			}
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down worker...")
	cancel()

	// Give the in-flight job a moment to observe cancellation.
	time.Sleep(500 * time.Millisecond)
	logger.Info("Worker shutdown complete")
}
