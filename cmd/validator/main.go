package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"repval/internal/platform/config"
	"repval/internal/platform/httpserver"
	"repval/internal/platform/logger"
	platformmetrics "repval/internal/platform/metrics"
	"repval/internal/platform/middleware"
	platformredis "repval/internal/platform/redis"
	"repval/internal/platform/token"
	"repval/internal/report/handler"
	reportmetrics "repval/internal/report/metrics"
	"repval/internal/report/models"
	"repval/internal/report/pipeline"
	"repval/internal/report/rules"
	"repval/internal/report/schema"
	"repval/internal/report/source"
	"repval/internal/report/store"
	"repval/internal/report/store/memory"
	"repval/internal/report/store/postgres"
	"repval/internal/report/store/rediscache"
	"repval/pkg/platform/audit"
	auditkafka "repval/pkg/platform/audit/kafka"
	auditworker "repval/pkg/platform/audit/worker"
)

// main wires dependencies and owns the process lifecycle. Validation
// logic lives in internal/report.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	reportSchema, err := schema.Load(cfg.SchemaVersion)
	if err != nil {
		log.Error("load schema", "version", cfg.SchemaVersion, "error", err)
		os.Exit(1)
	}
	catalog := rules.NewCatalog()
	m := reportmetrics.New()

	// Result store: postgres when configured, in-memory otherwise.
	// Either way the pipeline talks to the retrying decorator.
	var resultStore store.Store
	if cfg.PostgresDSN != "" {
		pg, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			log.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(context.Background()); err != nil {
			log.Error("ensure postgres schema", "error", err)
			os.Exit(1)
		}
		resultStore = pg
		log.Info("result store: postgres")
	} else {
		resultStore = memory.New()
		log.Info("result store: memory")
	}
	resultStore = store.NewRetrying(resultStore, cfg.PhaseRetries, cfg.RetryBackoff)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []pipeline.Option{
		pipeline.WithLogger(log),
		pipeline.WithMetrics(m),
		pipeline.WithShards(cfg.Shards),
		pipeline.WithBatchSize(cfg.BatchSize),
		pipeline.WithRetryPolicy(cfg.PhaseRetries, cfg.RetryBackoff),
	}

	// Optional run-status cache for dashboards.
	if cfg.Redis.URL != "" {
		redisClient, err := platformredis.New(rootCtx, cfg.Redis)
		if err != nil {
			log.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		cache := rediscache.New(redisClient, cfg.Redis.StatusTTL, log)
		opts = append(opts, pipeline.WithStatusListener(cache.OnRunUpdate))
		log.Info("run-status cache enabled")
	}

	// Optional Kafka audit trail of run transitions.
	if cfg.Kafka.Brokers != "" {
		publisher, err := auditkafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()

		events := make(chan audit.Event, 256)
		go func() {
			if err := auditworker.NewWorker(publisher, events, log).Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit worker stopped", "error", err)
			}
		}()
		opts = append(opts, pipeline.WithStatusListener(func(run *models.ReportRun) {
			event := audit.Event{
				ExecutionID: run.ExecutionID.String(),
				ReportDate:  run.ReportDate,
				Status:      string(run.Status),
				Reason:      run.FailureReason,
				OccurredAt:  time.Now(),
			}
			select {
			case events <- event:
			default:
				// a full inbox never blocks a run
			}
		}))
		log.Info("audit trail enabled", "topic", cfg.Kafka.Topic)
	}

	orchestrator, err := pipeline.New(reportSchema, catalog, resultStore, opts...)
	if err != nil {
		log.Error("build pipeline", "error", err)
		os.Exit(1)
	}

	tokens, err := token.NewService(cfg.JWTSigningKey, "repval")
	if err != nil {
		log.Error("build token service", "error", err)
		os.Exit(1)
	}

	csvSources := func(r *http.Request) (source.Source, error) {
		return source.NewCSVSource(r.Body, reportSchema)
	}
	runHandler, err := handler.New(orchestrator, resultStore, csvSources, log)
	if err != nil {
		log.Error("build handler", "error", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(platformmetrics.NewHTTP().Middleware)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth(tokens, log))
		runHandler.Register(r)
	})

	srv := httpserver.New(cfg.Addr, router)
	go func() {
		log.Info("listening", "addr", cfg.Addr, "schema_version", cfg.SchemaVersion)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
