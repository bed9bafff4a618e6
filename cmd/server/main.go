// Command server runs the splitlab HTTP service: variant evaluation,
// conversion tracking and results analysis.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"splitlab/internal/events"
	expconfig "splitlab/internal/experiment/config"
	"splitlab/internal/experiment/handler"
	"splitlab/internal/experiment/metrics"
	"splitlab/internal/experiment/ports"
	"splitlab/internal/experiment/service"
	"splitlab/internal/experiment/store/assignment"
	"splitlab/internal/experiment/store/results"
	"splitlab/internal/identity"
	"splitlab/internal/platform/config"
	"splitlab/internal/platform/httpserver"
	"splitlab/internal/platform/logger"
	platformredis "splitlab/internal/platform/redis"
	httptransport "splitlab/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.FromEnv()
	log := logger.New(logger.ParseLevel(cfg.LogLevel))
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	provider := buildConfigProvider(cfg, log, m)

	assignments, cleanup, err := buildAssignmentStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	resultsStore, dbCleanup, err := buildResultsStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer dbCleanup()

	sinks := []events.Sink{resultsStore}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, events.WithKafkaLogger(log))
		if err != nil {
			return err
		}
		defer kafka.Close()
		sinks = append(sinks, kafka)
		log.Info("kafka publishing enabled", "topic", cfg.KafkaTopic)
	}

	emitter := events.NewEmitter(sinks, events.WithLogger(log))
	queue := events.NewQueue(cfg.EventBuffer, log, m.IncrementDroppedEvents)
	worker := events.NewWorker(emitter, queue.Inbox())

	svc := service.New(provider, assignments,
		service.WithPublisher(queue),
		service.WithLogger(log),
		service.WithMetrics(m),
	)

	h := handler.New(svc, identity.NewResolver(), provider, resultsStore, log)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(h))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting splitlab", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildConfigProvider assembles the fail-open chain: remote or file source,
// static fallback, TTL cache on top.
func buildConfigProvider(cfg config.Server, log *slog.Logger, m *metrics.Metrics) ports.ConfigProvider {
	static, _ := expconfig.NewStatic(nil)

	var primary ports.ConfigProvider
	switch {
	case cfg.ConfigURL != "":
		primary = expconfig.NewEdge(cfg.ConfigURL,
			expconfig.WithFetchTimeout(cfg.ConfigTimeout),
			expconfig.WithEdgeLogger(log),
		)
		log.Info("loading test config from edge", "url", cfg.ConfigURL)
	case cfg.ConfigPath != "":
		primary = expconfig.NewFile(cfg.ConfigPath, log)
		log.Info("loading test config from file", "path", cfg.ConfigPath)
	default:
		log.Warn("no test config source set, all evaluations serve the default experience")
		return static
	}

	chained := expconfig.NewFallback(primary, static, log, m.IncrementConfigFallback)
	return expconfig.NewCached(chained, cfg.ConfigTTL)
}

func buildAssignmentStore(cfg config.Server) (ports.AssignmentStore, func(), error) {
	client, err := platformredis.New(cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return assignment.NewMemory(), func() {}, nil
	}

	var opts []assignment.RedisOption
	if cfg.AssignmentTTL > 0 {
		opts = append(opts, assignment.WithTTL(cfg.AssignmentTTL))
	}
	return assignment.NewRedis(client.Client, opts...), func() { _ = client.Close() }, nil
}

func buildResultsStore(ctx context.Context, cfg config.Server) (ports.ResultsStore, func(), error) {
	if cfg.PostgresDSN == "" {
		return results.NewMemory(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	store := results.NewPostgres(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, func() { _ = db.Close() }, nil
}
