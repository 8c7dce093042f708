// Package main runs the round selector service: scheduled rounds plus a
// status and metrics HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"solana-round-selector/internal/aggregator"
	"solana-round-selector/internal/config"
	"solana-round-selector/internal/dexscreener"
	"solana-round-selector/internal/logging"
	"solana-round-selector/internal/round"
	"solana-round-selector/internal/selector"
	"solana-round-selector/internal/solana"
	"solana-round-selector/internal/source"
	"solana-round-selector/internal/storage"
	chstore "solana-round-selector/internal/storage/clickhouse"
	"solana-round-selector/internal/storage/memory"
	"solana-round-selector/internal/storage/migrations"
	pgstore "solana-round-selector/internal/storage/postgres"
	redisstore "solana-round-selector/internal/storage/redis"
)

// allStores holds the round sinks and the exclusion history.
type allStores struct {
	audits    storage.AuditStore
	snapshots storage.SnapshotStore
	used      storage.UsedMintStore
}

func main() {
	configPath := flag.String("config", os.Getenv("SELECTOR_CONFIG"), "Path to a YAML config file")
	runNow := flag.Bool("run-now", false, "Run one round immediately on start")
	flag.Parse()

	if err := run(context.Background(), *configPath, *runNow); err != nil {
		fmt.Fprintf(os.Stderr, "selector: %v\n", err)
		os.Exit(1)
	}
}

// run starts the service and blocks until shutdown. Every resource opened
// here is released before it returns.
func run(parent context.Context, configPath string, runNow bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	stores, cleanup, err := createStores(ctx, cfg.Storage, cfg.Selector.ExclusionWindowRounds, logger)
	if err != nil {
		return fmt.Errorf("create stores: %w", err)
	}
	defer cleanup()

	agg, stopFeed, err := createAggregator(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create aggregator: %w", err)
	}
	defer stopFeed()

	sel, err := selector.New(cfg.Selector, stores.used, selector.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("create selector: %w", err)
	}

	runner := round.NewRunner(agg, sel,
		round.WithAuditStore(stores.audits),
		round.WithSnapshotStore(stores.snapshots),
		round.WithMaxDraws(cfg.Round.MaxDraws),
		round.WithLogger(logger),
	)

	server := NewServer(runner, agg, stores.audits, cfg.Round.Timeout, logger)

	done := make(chan struct{})
	defer close(done)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		var sig os.Signal
		select {
		case sig = <-sigCh:
		case <-done:
			return
		}
		logger.Info("received signal, initiating graceful shutdown", zap.Stringer("signal", sig))
		cancel()

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing immediate shutdown", zap.Stringer("signal", sig))
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	go func() {
		if err := server.ListenAndServe(ctx, cfg.HTTP.Addr); err != nil {
			logger.Error("http server failed", zap.Error(err))
		}
	}()

	err = runSchedule(ctx, cfg.Round.Schedule, runNow, server, logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scheduler: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// runSchedule triggers a round on every cron tick until ctx is cancelled.
func runSchedule(ctx context.Context, spec string, runNow bool, server *Server, logger *zap.Logger) error {
	sched := cron.New()
	if _, err := sched.AddFunc(spec, func() { server.RunRound(ctx, "") }); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}

	logger.Info("round scheduler started", zap.String("schedule", spec))
	sched.Start()

	if runNow {
		go server.RunRound(ctx, "")
	}

	<-ctx.Done()
	<-sched.Stop().Done()
	return ctx.Err()
}

// createStores picks durable stores where a DSN is configured and memory stores elsewhere.
// window is the selector's exclusion window and bounds the redis history.
func createStores(ctx context.Context, cfg config.StorageConfig, window int, logger *zap.Logger) (*allStores, func(), error) {
	stores := &allStores{
		audits:    memory.NewAuditStore(),
		snapshots: memory.NewSnapshotStore(),
		used:      memory.NewUsedMintStore(),
	}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		stores.audits = pgstore.NewAuditStore(pool)
		logger.Info("audits stored in postgres")
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		closers = append(closers, func() { conn.Close() })
		stores.snapshots = chstore.NewSnapshotStore(conn)
		logger.Info("candidate snapshots stored in clickhouse")
	}

	if cfg.RedisURL != "" {
		client, err := redisstore.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		closers = append(closers, func() { closeRedis(client) })
		store := redisstore.NewUsedMintStore(client, usedMintOptions(cfg.RedisPrefix, window)...)
		stores.used = store
		logger.Info("used mints stored in redis", zap.String("key", store.Key()), zap.Int64("max_len", store.MaxLen()))
	}

	return stores, cleanup, nil
}

// usedMintOptions trims the redis history to the exclusion window. A window
// of 0 bans every past pick, so the list is kept whole.
func usedMintOptions(prefix string, window int) []redisstore.Option {
	opts := []redisstore.Option{redisstore.WithKeyPrefix(prefix)}
	if window > 0 {
		opts = append(opts, redisstore.WithMaxLen(int64(window)))
	}
	return opts
}

func closeRedis(c *goredis.Client) {
	_ = c.Close()
}

// createAggregator wires the market index, both primary sources, the optional
// launch feed and the ground-truth source. The returned func stops the feed.
func createAggregator(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*aggregator.Aggregator, func(), error) {
	rpc := solana.NewHTTPClient(cfg.Solana.RPCEndpoint,
		solana.WithTimeout(cfg.Solana.RPCTimeout),
		solana.WithMaxRetries(cfg.Solana.MaxRetries),
	)

	index := dexscreener.NewClient(
		dexscreener.WithBaseURL(cfg.Market.BaseURL),
		dexscreener.WithTimeout(cfg.Market.Timeout),
		dexscreener.WithRateLimit(rate.Limit(cfg.Market.RateLimit), cfg.Market.Burst),
		dexscreener.WithLogger(logger),
	)

	marketOpts := []source.MarketOption{
		source.WithFeedLimit(cfg.Market.FeedLimit),
		source.WithFetchTimeout(cfg.Market.Timeout),
		source.WithBatchConcurrency(cfg.Market.BatchConcurrency),
		source.WithMarketDownAfter(cfg.Aggregator.DownAfter),
		source.WithMarketLogger(logger),
	}

	stop := func() {}
	if cfg.Solana.LaunchFeed {
		ws, err := solana.NewWSClient(ctx, cfg.Solana.WSEndpoint, nil, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect launch feed: %w", err)
		}
		feed := source.NewLaunchFeed(ws, rpc, cfg.Solana.LaunchCapacity, logger)
		go func() {
			if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("launch feed stopped", zap.Error(err))
			}
		}()
		marketOpts = append(marketOpts, source.WithLaunchFeed(feed))
		stop = func() { _ = ws.Close() }
	}

	primary := []source.Source{
		source.NewMarketPairSource(index, marketOpts...),
		source.NewKeywordSource(index, cfg.Market.KeywordQueries, cfg.Market.Timeout, cfg.Aggregator.DownAfter, logger),
	}
	truth := source.NewGroundTruthSource(rpc, cfg.Aggregator.DownAfter, logger)

	agg, err := aggregator.New(primary, truth,
		aggregator.WithConflictPolicy(aggregator.PolicyByName(cfg.Aggregator.ConflictPolicy)),
		aggregator.WithSourceTimeout(cfg.Aggregator.SourceTimeout),
		aggregator.WithLogger(logger),
	)
	if err != nil {
		stop()
		return nil, nil, err
	}
	return agg, stop, nil
}
