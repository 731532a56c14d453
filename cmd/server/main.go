package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mailhook/internal/events"
	"mailhook/internal/functions"
	"mailhook/internal/ingest"
	"mailhook/internal/ingest/attachments"
	"mailhook/internal/ingest/delivery"
	ingestmetrics "mailhook/internal/ingest/metrics"
	"mailhook/internal/ingest/webhook"
	"mailhook/internal/objectstore"
	"mailhook/internal/platform/awsclient"
	"mailhook/internal/platform/config"
	"mailhook/internal/platform/httpserver"
	"mailhook/internal/platform/logger"
	"mailhook/internal/platform/middleware"
	"mailhook/internal/platform/redis"
	registryhandler "mailhook/internal/registry/handler"
	registrymetrics "mailhook/internal/registry/metrics"
	registryservice "mailhook/internal/registry/service"
	"mailhook/internal/registry/store"
	"mailhook/internal/routing"
	routingmetrics "mailhook/internal/routing/metrics"
	"mailhook/internal/verification"
)

// main wires the dependency graph and owns the process lifecycle. Business
// logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx := context.Background()

	ranks, err := config.LoadEnvRanks(cfg.RanksFile)
	if err != nil {
		log.Error("failed to load environment ranks", "error", err.Error())
		os.Exit(1)
	}

	// Stores: PostgreSQL when DATABASE_URL is set, in-memory otherwise.
	var (
		domains store.Store
		records delivery.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to open database", "error", err.Error())
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("database unreachable", "error", err.Error())
			os.Exit(1)
		}
		domains = store.NewPostgres(db)
		records = delivery.NewPostgresStore(db)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		domains = store.NewMemory()
		records = delivery.NewMemoryStore()
	}

	awsCfg, err := awsclient.Load(ctx, cfg.AWS.Region)
	if err != nil {
		log.Error("failed to load AWS config", "error", err.Error())
		os.Exit(1)
	}
	s3client := s3.NewFromConfig(awsCfg)
	sesclient := ses.NewFromConfig(awsCfg)

	verifier := verification.NewSES(sesclient, cfg.InboundMX)
	objects := objectstore.NewS3(s3client)

	rule := routing.NewSESRule(s3client, sesclient, cfg.AWS.DatabaseBucket, cfg.Rule.RuleSet, log)
	synchronizer := routing.NewSynchronizer(
		rule,
		cfg.Rule.Name,
		routing.NewRanker(ranks),
		cfg.Rule.Cap,
		routing.NewRegistryLister(domains),
		log,
		routingmetrics.New(),
	)

	var publisher events.Publisher = events.Noop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Error("failed to build kafka publisher", "error", err.Error())
			os.Exit(1)
		}
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	registry := registryservice.New(
		domains, verifier, synchronizer, publisher, log, registrymetrics.New(), cfg.Environment)

	platform := functions.NewCloudflare(
		cfg.Functions.APIToken, cfg.Functions.AccountID, cfg.Functions.WorkersSubdomain)
	functionService := functions.NewService(domains, platform, log)

	var claims ingest.ClaimStore
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err.Error())
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		claims = ingest.NewRedisClaims(redisClient.Client)
	}

	pipeline := ingest.NewPipeline(
		objects,
		attachments.NewUploader(objects, cfg.AWS.AttachmentsBucket),
		domains,
		functions.NewInvoker(functions.WithInvokeTimeout(cfg.Timeouts.Function)),
		webhook.NewClient(webhook.WithTimeout(cfg.Timeouts.Webhook)),
		records,
		claims,
		publisher,
		log,
		ingestmetrics.New(),
		cfg.Timeouts.Pipeline,
	)

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(log))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		if cfg.AdminToken != "" {
			r.Use(middleware.RequireAdminToken(cfg.AdminToken, log))
		} else {
			log.Warn("MAILHOOK_ADMIN_TOKEN not set, API routes are unauthenticated")
		}
		registryhandler.New(registry, log).Register(r)
		functions.NewHandler(functionService, log).Register(r)
		ingest.NewHandler(pipeline, log).Register(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting mailhook", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err.Error())
		os.Exit(1)
	}
	log.Info("server stopped")
}
