package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"conforma/internal/activity"
	activitypg "conforma/internal/activity/store/postgres"
	audithandler "conforma/internal/audit/handler"
	auditmetrics "conforma/internal/audit/metrics"
	"conforma/internal/audit/service"
	actionstore "conforma/internal/audit/store/action"
	auditstore "conforma/internal/audit/store/audit"
	auditorstore "conforma/internal/audit/store/auditor"
	findingstore "conforma/internal/audit/store/finding"
	inspectionstore "conforma/internal/audit/store/inspection"
	userstore "conforma/internal/audit/store/user"
	"conforma/internal/auth"
	"conforma/internal/notify"
	"conforma/internal/platform/config"
	"conforma/internal/platform/httpserver"
	"conforma/internal/platform/logger"
	"conforma/internal/platform/middleware"
	"conforma/internal/platform/postgres"
	"conforma/internal/platform/redis"
	"conforma/internal/scheduler"
)

// main wires configuration, stores, services, and transports, then runs the
// HTTP server and the status scheduler until shutdown.
func main() {
	configPath := flag.String("config", "", "optional config file path")
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var gateway notify.Gateway
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaGateway, err := notify.NewKafkaGateway(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Error("failed to connect to kafka", "error", err)
			os.Exit(1)
		}
		defer kafkaGateway.Close()
		gateway = kafkaGateway
	}

	registry := prometheus.NewRegistry()
	metrics := auditmetrics.New(registry)
	schedulerMetrics := scheduler.NewMetrics(registry)

	recorder := activity.NewRecorder(activitypg.New(db), log)
	dispatcher := notify.NewDispatcher(gateway, log, metrics.IncrementNotifyFailures)

	stores := service.Stores{
		Audits:      auditstore.NewPostgres(db),
		Findings:    findingstore.NewPostgres(db),
		Actions:     actionstore.NewPostgres(db),
		Auditors:    auditorstore.NewPostgres(db),
		Users:       userstore.NewPostgres(db),
		Inspections: inspectionstore.NewPostgres(db),
	}
	svc := service.New(stores,
		service.WithTx(postgres.NewTxRunner(db)),
		service.WithActivityRecorder(recorder),
		service.WithNotifier(dispatcher),
		service.WithMetrics(metrics),
		service.WithLogger(log),
	)

	job := scheduler.New(stores.Audits,
		scheduler.WithBatchSize(cfg.Scheduler.BatchSize),
		scheduler.WithActivityRecorder(recorder),
		scheduler.WithMetrics(schedulerMetrics),
		scheduler.WithLogger(log),
	)

	jwtService := auth.NewJWTService(cfg.Auth.JWTSigningKey, "conforma")

	router := chi.NewRouter()
	router.Use(middleware.RequestMetadata)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(jwtService, log))
		audithandler.New(svc, recorder, log).Register(r)
		scheduler.NewHandler(job, log).Register(r)
	})

	if cfg.Scheduler.Enabled {
		var lease scheduler.Leaser
		if redisClient != nil {
			lease = scheduler.NewLease(redisClient.Client, cfg.Scheduler.LeaseKey, cfg.Scheduler.LeaseTTL)
		}
		runner := scheduler.NewRunner(job, cfg.Scheduler.Interval, lease, log)
		go runner.Run(ctx)
	}

	srv := httpserver.New(cfg.HTTP.Addr, router)
	go func() {
		log.Info("starting conforma", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
