package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrtazz/admiral/internal/analytics"
	"github.com/mrtazz/admiral/internal/analytics/aggregator"
	"github.com/mrtazz/admiral/pkg/config"
	"github.com/mrtazz/admiral/pkg/health"
	"github.com/mrtazz/admiral/pkg/kafka"
	"github.com/mrtazz/admiral/pkg/metrics"
	"github.com/mrtazz/admiral/pkg/middleware"
	"github.com/mrtazz/admiral/pkg/postgres"
	"github.com/mrtazz/admiral/pkg/resilience"
)

func newAnalyticsCmd(a *app) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Consume search events from Kafka and serve aggregated stats",
		Long: `Analytics reads the search and build events published by "admiral serve" and
"admiral build", keeps running statistics (latency percentiles, top queries,
zero-result queries, unknown terms) and serves them on /api/v1/analytics.
With PostgreSQL enabled the stats are snapshotted periodically and the
history is served on /api/v1/analytics/history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if !cfg.Kafka.Enabled {
				return fmt.Errorf("analytics needs kafka.enabled or ADMIRAL_KAFKA_BROKERS")
			}
			if port > 0 {
				cfg.Analytics.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runAnalytics(ctx, cfg)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default analytics.port)")
	return cmd
}

func runAnalytics(ctx context.Context, cfg *config.Config) error {
	agg := analytics.NewAggregator()
	checker := health.NewChecker()

	var history analytics.History
	if cfg.Postgres.Enabled {
		var db *postgres.Client
		err := resilience.Retry(ctx, "postgres connect", resilience.RetryConfig{}, func(context.Context) error {
			c, err := postgres.New(cfg.Postgres)
			if err != nil {
				return err
			}
			db = c
			return nil
		})
		if err != nil {
			return err
		}
		defer db.Close()

		store := aggregator.NewStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		store.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
		history = store
		checker.Register("postgres", health.PingCheck(db.Ping, 200*time.Millisecond))
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents, analytics.HandleEvent(agg))
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()
	slog.Info("analytics consumer started", "topic", cfg.Kafka.Topics.SearchEvents, "group", cfg.Kafka.ConsumerGroup)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	mux := http.NewServeMux()
	analytics.NewHandler(agg, history).Register(mux)
	checker.Mount(mux)

	chain := []func(http.Handler) http.Handler{middleware.RequestID, middleware.AccessLog}
	if m != nil {
		chain = append(chain, middleware.Metrics(m))
	}
	chain = append(chain, middleware.CORS(middleware.DefaultCORSConfig()))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Analytics.Port),
		Handler:      middleware.Chain(mux, chain...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return listenAndServe(ctx, server, cfg.Server.ShutdownTimeout)
}
