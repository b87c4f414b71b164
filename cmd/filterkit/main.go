package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/filterkit/internal/api"
	"github.com/fluxbase-eu/filterkit/internal/collection"
	"github.com/fluxbase-eu/filterkit/internal/collection/gormset"
	"github.com/fluxbase-eu/filterkit/internal/collection/pgset"
	"github.com/fluxbase-eu/filterkit/internal/config"
	"github.com/fluxbase-eu/filterkit/internal/database"
	"github.com/fluxbase-eu/filterkit/internal/observability"
	"github.com/fluxbase-eu/filterkit/internal/pubsub"
	"github.com/fluxbase-eu/filterkit/internal/ratelimit"
	"github.com/fluxbase-eu/filterkit/internal/scaling"
	"github.com/fluxbase-eu/filterkit/internal/testutil"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// CLI flags
	showVersion = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("filterkit %s\n", Version)
		fmt.Printf("Commit: %s\n", Commit)
		fmt.Printf("Build Date: %s\n", BuildDate)
		os.Exit(0)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting filterkit")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx := context.Background()

	metrics := observability.NewMetrics(nil)
	tracer, err := observability.NewTracer(ctx, cfg.Tracing)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracing")
	}

	opts := []api.ServerOption{api.WithMetrics(metrics), api.WithTracer(tracer)}

	var (
		catalog api.Catalog
		pool    *pgxpool.Pool
		dbOpts  []api.ServerOption
	)
	if cfg.Filters.Backend == "memory" {
		catalog, err = memoryCatalog(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load filter definitions")
		}
	} else {
		var conn *database.Connection
		catalog, conn, dbOpts, err = databaseCatalog(ctx, cfg, metrics)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to set up database backend")
		}
		pool = conn.Pool()
	}

	if cfg.RateLimit.Enabled {
		opts = append(opts, rateLimitOptions(ctx, cfg, pool)...)
	}
	// Database closers go last: the limiter may still hold pool connections.
	opts = append(opts, dbOpts...)

	server := api.NewServer(cfg, catalog, opts...)

	go func() {
		log.Info().Str("address", cfg.Server.Address).Str("backend", cfg.Filters.Backend).Msg("Starting filterkit server")
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// memoryCatalog serves the sample dataset without a database.
func memoryCatalog(cfg *config.Config) (api.Catalog, error) {
	fx := testutil.NewFixture()
	log.Warn().Msg("Using the in-memory sample dataset; records are not persisted")
	catalog, err := api.NewStaticCatalog(fx.Registry, fx.Store, cfg.Filters.DefinitionsFile)
	if err != nil {
		return nil, err
	}
	return catalog, nil
}

// databaseCatalog connects to PostgreSQL, inspects the configured schemas and
// evaluates through pgx or gorm depending on the backend.
func databaseCatalog(ctx context.Context, cfg *config.Config, metrics *observability.Metrics) (api.Catalog, *database.Connection, []api.ServerOption, error) {
	conn, err := database.NewConnection(ctx, cfg.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	conn.SetMetrics(metrics)

	var source collection.Source = pgset.New(conn)
	closers := []func(){conn.Close}

	if cfg.Filters.Backend == "gorm" {
		db, err := gormset.Open(ctx, cfg.Database)
		if err != nil {
			conn.Close()
			return nil, nil, nil, err
		}
		source = gormset.New(db)
		if sqlDB, err := db.DB(); err == nil {
			closers = append(closers, func() { _ = sqlDB.Close() })
		}
	}

	cache := database.NewSchemaCache(conn.Inspector(), cfg.Filters.SchemaCacheTTL, cfg.Filters.Schemas...)
	cache.SetMetrics(metrics)

	ps, err := pubsub.NewPubSub(ctx, cfg.Invalidation, conn.Pool())
	if err != nil {
		conn.Close()
		return nil, nil, nil, err
	}
	cache.SetPubSub(ps)

	statsCtx, stopStats := context.WithCancel(context.Background())
	go reportPoolStats(statsCtx, conn, 15*time.Second)

	// Closers run in order: stop listeners before the pool goes away.
	closers = append([]func(){
		stopStats,
		cache.Close,
		func() {
			if err := ps.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close pub/sub")
			}
		},
	}, closers...)

	opts := []api.ServerOption{api.WithHealthCheck(conn.Health)}
	for _, fn := range closers {
		opts = append(opts, api.WithCloser(fn))
	}

	return api.NewSchemaCatalog(cache, source, cfg.Filters.DefinitionsFile), conn, opts, nil
}

// rateLimitOptions builds the limiter store. A shared Postgres store is swept
// by whichever instance holds the sweep lock.
func rateLimitOptions(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) []api.ServerOption {
	store, err := ratelimit.NewStore(ctx, cfg.RateLimit, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up rate limiting")
	}
	opts := []api.ServerOption{
		api.WithRateLimiter(ratelimit.NewLimiter(store, cfg.RateLimit.Requests, cfg.RateLimit.Window)),
	}

	if pgStore, ok := store.(*ratelimit.PostgresStore); ok {
		sweeper := ratelimit.NewSweeper(pgStore, cfg.RateLimit.Window)
		elector := scaling.NewLeaderElector(pool, scaling.RateLimitSweepLockID, "rate_limit_sweep")
		elector.Start(sweeper.Start, sweeper.Stop)
		opts = append(opts, api.WithCloser(func() {
			elector.Stop()
			sweeper.Stop()
		}))
	}

	return append(opts, api.WithCloser(func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close rate limit store")
		}
	}))
}

func reportPoolStats(ctx context.Context, conn *database.Connection, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.ReportStats()
		}
	}
}
