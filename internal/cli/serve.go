package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrtazz/admiral/internal/analytics"
	"github.com/mrtazz/admiral/internal/indexer/index"
	"github.com/mrtazz/admiral/internal/searcher/cache"
	"github.com/mrtazz/admiral/internal/searcher/executor"
	"github.com/mrtazz/admiral/internal/searcher/handler"
	"github.com/mrtazz/admiral/pkg/config"
	"github.com/mrtazz/admiral/pkg/health"
	"github.com/mrtazz/admiral/pkg/kafka"
	"github.com/mrtazz/admiral/pkg/metrics"
	"github.com/mrtazz/admiral/pkg/middleware"
	pkgredis "github.com/mrtazz/admiral/pkg/redis"
	"github.com/mrtazz/admiral/pkg/resilience"
)

func newServeCmd(a *app) *cobra.Command {
	var indexPath, snapshotName string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP query API over a saved index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if port > 0 {
				cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			idx, origin, err := loadIndex(cfg, indexPath, snapshotName)
			if err != nil {
				return err
			}
			slog.Info("index loaded", "source", origin, "documents", idx.DocCount(), "terms", idx.TermCount())

			server, cleanup := newSearchServer(ctx, cfg, idx)
			defer cleanup()
			return listenAndServe(ctx, server, cfg.Server.ShutdownTimeout)
		},
	}
	cmd.Flags().StringVar(&indexPath, "index", "", "index file to serve (default index.dataFile)")
	cmd.Flags().StringVar(&snapshotName, "snapshot", "", "serve a named snapshot instead of an index file")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default server.port)")
	cmd.MarkFlagsMutuallyExclusive("index", "snapshot")
	return cmd
}

// newSearchServer wires the query engine, the optional Redis cache, the
// optional Kafka analytics collector, health probes and metrics into an
// http.Server. Unreachable optional services are logged and skipped. The
// returned cleanup releases everything and flushes pending events.
func newSearchServer(ctx context.Context, cfg *config.Config, idx *index.Index) (*http.Server, func()) {
	ctx, cancel := context.WithCancel(ctx)
	cleanups := []func(){cancel}
	cleanup := func() {
		for _, fn := range cleanups {
			fn()
		}
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		m.ObserveIndex(idx.DocCount(), idx.TermCount())
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		cleanups = append(cleanups, func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			if err := shutdown(sctx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		})
	}

	engine := executor.New(idx, m)
	checker := health.NewChecker()
	checker.Register("index", health.IndexCheck(idx.DocCount))

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		var client *pkgredis.Client
		err := resilience.Retry(ctx, "redis connect", resilience.RetryConfig{MaxAttempts: 3}, func(context.Context) error {
			c, err := pkgredis.NewClient(cfg.Redis)
			if err != nil {
				return err
			}
			client = c
			return nil
		})
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			cleanups = append(cleanups, func() { client.Close() })
			breaker := resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{})
			queryCache = cache.New(cache.NewGuardedStore(client, breaker), cfg.Redis.CacheTTL, m)
			// Results cached for a previous index are stale.
			if _, err := queryCache.Invalidate(ctx); err != nil {
				slog.Warn("clearing stale cache entries failed", "error", err)
			}
			checker.Register("redis", health.PingCheck(client.Ping, 100*time.Millisecond))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var collector *analytics.Collector
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		collector = analytics.NewCollector(producer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval, m)
		// The collector outlives the signal context: handlers keep tracking
		// while Shutdown drains, so it stops only in cleanup.
		collectorCtx, stopCollector := context.WithCancel(context.WithoutCancel(ctx))
		collector.Start(collectorCtx)
		cleanups = append(cleanups, func() {
			stopCollector()
			collector.Close()
			if err := producer.Close(); err != nil {
				slog.Error("kafka producer close error", "error", err)
			}
		})
		slog.Info("search analytics enabled", "topic", cfg.Kafka.Topics.SearchEvents)
	}

	mux := http.NewServeMux()
	handler.New(engine, queryCache, collector, cfg.Search.DefaultLimit, cfg.Search.MaxResults).Register(mux)
	checker.Mount(mux)

	chain := []func(http.Handler) http.Handler{middleware.RequestID, middleware.AccessLog}
	if m != nil {
		chain = append(chain, middleware.Metrics(m))
	}
	chain = append(chain, middleware.CORS(middleware.DefaultCORSConfig()), middleware.Timeout(cfg.Server.WriteTimeout))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, chain...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return server, cleanup
}

// listenAndServe runs server until ctx is done, then shuts it down
// gracefully. It returns only after Shutdown has drained in-flight requests.
func listenAndServe(ctx context.Context, server *http.Server, shutdownTimeout time.Duration) error {
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	<-drained
	slog.Info("server stopped")
	return nil
}
