package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/bargaining-backend/api/controllers"
	"github.com/angelmondragon/bargaining-backend/api/routes"
	"github.com/angelmondragon/bargaining-backend/internal/bargaining"
	"github.com/angelmondragon/bargaining-backend/internal/bargainrequests"
	"github.com/angelmondragon/bargaining-backend/internal/catalog"
	"github.com/angelmondragon/bargaining-backend/internal/categories"
	"github.com/angelmondragon/bargaining-backend/internal/credentials"
	"github.com/angelmondragon/bargaining-backend/pkg/config"
	"github.com/angelmondragon/bargaining-backend/pkg/db"
	"github.com/angelmondragon/bargaining-backend/pkg/logger"
	"github.com/angelmondragon/bargaining-backend/pkg/metrics"
	"github.com/angelmondragon/bargaining-backend/pkg/migrate"
	"github.com/angelmondragon/bargaining-backend/pkg/redis"
	"github.com/angelmondragon/bargaining-backend/pkg/shopify"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	readiness := map[string]controllers.Pinger{"db": dbClient}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		readiness["redis"] = redisClient
	} else {
		logg.Info(context.Background(), "redis not configured, using in-process cache and locks")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bargainMetrics := metrics.NewBargainingMetrics(registry)

	shopifyClient := shopify.NewClient(
		shopify.WithHTTPClient(&http.Client{Timeout: cfg.Catalog.Timeout}),
		shopify.WithBaseURLTemplate(cfg.Catalog.BaseURLTemplate),
		shopify.WithPageSize(cfg.Catalog.PageSize),
		shopify.WithTimeoutRetry(cfg.Catalog.RetryAttempts, cfg.Catalog.RetryBaseDelay),
	)
	credentialRepo := credentials.NewRepository(dbClient.DB())

	catalogAccessor, err := catalog.NewAccessor(credentialRepo, shopifyClient, logg, bargainMetrics)
	requireService(logg, "catalog accessor", err)

	cacheOpts := []categories.Option{
		categories.WithTTL(cfg.Catalog.CategoryTTL),
		categories.WithLogger(logg),
		categories.WithMetrics(bargainMetrics),
	}
	admissionOpts := []bargaining.AdmissionOption{
		bargaining.WithAdmissionLogger(logg),
		bargaining.WithAdmissionMetrics(bargainMetrics),
	}
	if redisClient != nil {
		store, err := categories.NewRedisStore(redisClient)
		requireService(logg, "category redis store", err)
		cacheOpts = append(cacheOpts, categories.WithStore(store))
		admissionOpts = append(admissionOpts, bargaining.WithRedisLock(redisClient))
	}
	categoryCache, err := categories.NewCache(credentialRepo, shopifyClient, cacheOpts...)
	requireService(logg, "category cache", err)

	ruleRepo := bargaining.NewRepository(dbClient.DB())
	admission, err := bargaining.NewAdmission(dbClient, ruleRepo, bargaining.AdmissionConfig{
		Cap:      cfg.Bargaining.AdmissionCap,
		LockTTL:  cfg.Bargaining.ToggleLockTTL,
		LockWait: cfg.Bargaining.ToggleLockWait,
	}, admissionOpts...)
	requireService(logg, "admission controller", err)

	cascade, err := bargaining.NewCascade(ruleRepo, logg)
	requireService(logg, "deactivation cascade", err)

	bargainingService, err := bargaining.NewService(bargaining.ServiceParams{
		Repo:        ruleRepo,
		Admission:   admission,
		Cascade:     cascade,
		Catalog:     catalogAccessor,
		Categories:  categoryCache,
		Merchants:   credentialRepo,
		Logger:      logg,
		Metrics:     bargainMetrics,
		SampleLimit: cfg.Bargaining.SampleCalcLimit,
	})
	requireService(logg, "bargaining service", err)

	requestService, err := bargainrequests.NewService(bargainrequests.NewRepository(dbClient.DB()), credentialRepo, logg)
	requireService(logg, "bargain request service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":           cfg.App.Env,
		"addr":          addr,
		"admission_cap": admission.Cap(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			Readiness:       readiness,
			Bargaining:      bargainingService,
			BargainRequests: requestService,
			Gatherer:        registry,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}

func requireService(logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to create "+name, err)
	os.Exit(1)
}
