package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kpibot-inc/kpibot-engine/pkg/config"
	"github.com/kpibot-inc/kpibot-engine/pkg/database"
	"github.com/kpibot-inc/kpibot-engine/pkg/handlers"
	"github.com/kpibot-inc/kpibot-engine/pkg/llm"
	"github.com/kpibot-inc/kpibot-engine/pkg/middleware"
	"github.com/kpibot-inc/kpibot-engine/pkg/repositories"
	"github.com/kpibot-inc/kpibot-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", cfg.Database.Host),
		zap.Bool("enrichment", cfg.Enrichment.Enabled),
	)

	catalog, err := config.LoadKPICatalog(cfg.KPICatalogPath)
	if err != nil {
		logger.Fatal("Failed to load KPI catalog", zap.Error(err))
	}
	logger.Info("KPI catalog loaded", zap.Strings("kpis", catalog.Keys()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := database.MigrateUp(cfg.Database.ConnectionString(), cfg.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Repositories
	dimensionRepo := repositories.NewDimensionRepository(db.Pool)
	queryRepo := repositories.NewQueryRepository(db.Pool)
	auditRepo := repositories.NewUnsupportedKPIRepository(db.Pool)

	// Enrichment client (optional)
	var llmClient llm.Client
	if cfg.Enrichment.Enabled {
		client, err := llm.NewClient(&llm.Config{
			Endpoint: cfg.Enrichment.BaseURL,
			Model:    cfg.Enrichment.Model,
			APIKey:   cfg.Enrichment.APIKey,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create enrichment client", zap.Error(err))
		}
		llmClient = client
	}

	// Services
	scopeExtractor := services.NewScopeExtractor(services.ScopeExtractorConfig{
		KnownProducts:       cfg.Extraction.KnownProducts,
		SerialWindowMin:     cfg.Extraction.SerialWindowMin,
		SerialWindowMax:     cfg.Extraction.SerialWindowMax,
		MaxLookupCandidates: cfg.Extraction.MaxLookupCandidates,
	}, dimensionRepo, logger)
	enricher := services.NewEnricher(llmClient, catalog, cfg.Enrichment, logger)
	intentService := services.NewIntentService(
		catalog,
		services.NewKpiResolver(nil),
		services.NewTimeResolver(),
		scopeExtractor,
		enricher,
		services.NewSlotCompletionPolicy(),
		auditRepo,
		logger,
	)
	merger := services.NewContextMerger(intentService)
	queryService := services.NewQueryService(queryRepo, logger)

	// Handlers
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, db.Pool, logger).RegisterRoutes(mux)
	handlers.NewModelsHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewChatHandler(cfg, catalog, merger, queryService, logger).RegisterRoutes(mux)
	handlers.NewChartHandler(catalog, merger, queryService, logger).RegisterRoutes(mux)
	handlers.NewDownloadHandler(catalog, merger, queryService, logger).RegisterRoutes(mux)
	handlers.NewDimensionHandler(catalog, dimensionRepo, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting kpibot-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

// newLogger builds a production logger for deployed environments and a
// development logger locally.
func newLogger(env string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if env == "local" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	return logger
}
