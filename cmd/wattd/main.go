package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wattlink/wattlink/params"
	"github.com/wattlink/wattlink/pkg/api"
	"github.com/wattlink/wattlink/pkg/balance"
	"github.com/wattlink/wattlink/pkg/core/plan"
	"github.com/wattlink/wattlink/pkg/core/predicate"
	"github.com/wattlink/wattlink/pkg/oracle"
	"github.com/wattlink/wattlink/pkg/report"
	"github.com/wattlink/wattlink/pkg/resolver"
	"github.com/wattlink/wattlink/pkg/series"
	"github.com/wattlink/wattlink/pkg/storage"
	"github.com/wattlink/wattlink/pkg/util"
)

// Simulated feed defaults for dev mode (no ORACLE_FEED_URL set).
const devPrice = 348_514_000_000 // 3485.14 USD, 8 decimals

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (write to both console and file)
	logger, err := util.NewLoggerWithFile(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.LogFile)

	clock := util.RealClock{}

	// ---- State: series + balances ----
	seriesMgr, err := series.NewManager(cfg.Storage.SeriesDBPath, clock)
	if err != nil {
		sugar.Fatalw("series_store_failed", "path", cfg.Storage.SeriesDBPath, "err", err)
	}
	defer seriesMgr.Close()

	balanceMgr, err := balance.NewManager(cfg.Storage.BalanceDBPath, clock)
	if err != nil {
		sugar.Fatalw("balance_store_failed", "path", cfg.Storage.BalanceDBPath, "err", err)
	}
	defer balanceMgr.Close()

	journal, err := storage.NewFileJournal(cfg.Storage.FillJournalPath)
	if err != nil {
		sugar.Fatalw("fill_journal_failed", "path", cfg.Storage.FillJournalPath, "err", err)
	}
	defer journal.Close()

	// ---- Oracle provider ----
	// Feed gateway when configured, otherwise the in-memory simulator.
	var provider oracle.Provider
	var recorder resolver.Recorder
	if cfg.Oracle.FeedURL != "" {
		feed := oracle.NewFeedProvider(oracle.FeedConfig{
			BaseURL:        cfg.Oracle.FeedURL,
			RequestTimeout: cfg.Oracle.RequestTimeout,
			MinInterval:    cfg.Oracle.MinInterval,
			MaxStale:       cfg.Oracle.MaxStale,
		}, clock)
		provider = feed
		recorder = feed
		sugar.Infow("oracle_feed", "url", cfg.Oracle.FeedURL, "ref", cfg.Oracle.Ref)
	} else {
		sim := oracle.NewSimProvider(devPrice, cfg.Oracle.MinInterval)
		sim.SetPrice(devPrice, clock.Now().UnixMilli())
		provider = sim
		recorder = sim
		sugar.Infow("oracle_sim", "price", devPrice, "min_interval", cfg.Oracle.MinInterval)
	}

	eval := predicate.NewEvaluator(provider, clock, cfg.Oracle.RequestTimeout)
	planner := plan.NewPlanner(clock)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API Server ----
	apiServer := api.NewServer(planner, seriesMgr, balanceMgr, eval, cfg.API.AllowedOrigins)

	go func() {
		sugar.Infow("api_server_starting", "addr", cfg.API.Addr)
		if err := apiServer.Start(cfg.API.Addr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	// ---- Reporter + Resolver ----
	reporter := report.NewReporter(balanceMgr, journal, apiServer, sugar)
	res := resolver.NewResolver(seriesMgr, eval, reporter, recorder, clock,
		cfg.Resolver.PollInterval, sugar)

	go res.Run(ctx)

	sugar.Infow("wattd_started",
		"poll_interval", cfg.Resolver.PollInterval,
		"min_interval", cfg.Oracle.MinInterval,
		"api_addr", cfg.API.Addr)

	// Progress logging loop
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sugar.Info("shutting down")
			return
		case <-ticker.C:
			outstanding, err := seriesMgr.Outstanding()
			if err != nil {
				continue
			}
			sugar.Infow("resolver_progress",
				"outstanding_series", len(outstanding),
				"oracle_failures", res.OracleFailures(),
				"duplicate_fills_suppressed", reporter.Duplicates(),
				"known_meters", balanceMgr.Count())
		}
	}
}
