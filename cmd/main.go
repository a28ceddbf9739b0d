package main

import (
	"context"
	"fmt"
	"os"

	"github.com/biographdb/biograph-backend/internal/app"
	"github.com/biographdb/biograph-backend/internal/data/db"
	"github.com/biographdb/biograph-backend/internal/data/entitystore"
	"github.com/biographdb/biograph-backend/internal/data/graphnet"
	jobsrepo "github.com/biographdb/biograph-backend/internal/data/repos/jobs"
	apihttp "github.com/biographdb/biograph-backend/internal/http"
	"github.com/biographdb/biograph-backend/internal/http/handlers"
	"github.com/biographdb/biograph-backend/internal/jobs/executor"
	pipelines "github.com/biographdb/biograph-backend/internal/jobs/pipeline"
	"github.com/biographdb/biograph-backend/internal/jobs/runtime"
	"github.com/biographdb/biograph-backend/internal/jobs/toolrunner"
	"github.com/biographdb/biograph-backend/internal/platform/logger"
	"github.com/biographdb/biograph-backend/internal/platform/neo4jdb"
	"github.com/biographdb/biograph-backend/internal/platform/redisdb"
	"github.com/biographdb/biograph-backend/internal/services"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Config
	log.Info("Loading configuration from main...")
	cfg, err := app.LoadConfig(log)
	if err != nil {
		log.Error("Config load failed", "error", err)
		os.Exit(1)
	}

	// Database
	dbService, err := db.New(log)
	if err != nil {
		log.Error("Database init failed", "error", err)
		os.Exit(1)
	}
	if err = dbService.AutoMigrateAll(); err != nil {
		log.Error("Database auto migration failed", "error", err)
		os.Exit(1)
	}
	theDB := dbService.DB()

	// Graph database
	neoClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Error("Graph database init failed", "error", err)
		os.Exit(1)
	}
	if neoClient == nil {
		log.Error("NEO4J_URI is not set")
		os.Exit(1)
	}
	defer neoClient.Close(context.Background())

	// Cache
	redisClient, err := redisdb.NewFromEnv(log)
	if err != nil {
		log.Warn("Redis init failed, network extraction will not be cached", "error", err)
	}

	// Repos
	log.Info("Setting up repos from main...")
	jobRepo := jobsrepo.NewJobRepo(theDB, log)

	// Entity store and network extraction
	store := entitystore.NewNeo4jStore(neoClient, log)
	networks := graphnet.NewExtractor(neoClient, redisClient, log, cfg.NetworkCacheTTL)

	// Pipelines
	log.Info("Setting up pipelines from main...")
	runner := toolrunner.New(log)
	registry := runtime.NewRegistry()
	biconPipeline := pipelines.NewBiconPipeline(cfg.Tools.Bicon, runner, networks, cfg.ToolTimeout, log)
	for _, kind := range []runtime.Kind{
		pipelines.NewDiamondPipeline(cfg.Tools.Diamond, runner, networks, cfg.ToolTimeout, log),
		pipelines.NewMustPipeline(cfg.Tools.Must, runner, networks, cfg.ToolTimeout, log),
		pipelines.NewTrustrankPipeline(cfg.Tools.Trustrank, runner, cfg.ToolTimeout, log),
		pipelines.NewClosenessPipeline(cfg.Tools.Closeness, runner, cfg.ToolTimeout, log),
		biconPipeline,
		pipelines.NewGraphPipeline(store, log),
	} {
		if err := registry.Register(kind); err != nil {
			log.Error("Pipeline registration failed", "error", err)
			os.Exit(1)
		}
	}

	// Executor and services
	log.Info("Setting up services from main...")
	exec := executor.New(jobRepo, registry, log, cfg.WorkerConcurrency, cfg.ResultsDir, cfg.StaticDir)
	jobService := services.NewJobService(jobRepo, registry, exec, cfg.ResultsDir, log)

	// Handlers
	log.Info("Setting up handlers from main...")
	jobHandler := handlers.NewJobHandler(log, jobService)
	biconHandler := handlers.NewBiconHandler(log, jobService, biconPipeline, cfg.ResultsDir)
	graphHandler := handlers.NewGraphHandler(log, jobService)
	healthHandler := handlers.NewHealthHandler()

	// Router
	log.Info("Setting up router from main...")
	server := apihttp.NewServer(apihttp.RouterConfig{
		Log:           log,
		Kinds:         registry.Names(),
		JobHandler:    jobHandler,
		BiconHandler:  biconHandler,
		GraphHandler:  graphHandler,
		HealthHandler: healthHandler,
	})

	log.Info("Starting server", "port", cfg.Port)
	if err := server.Run(":" + cfg.Port); err != nil {
		log.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}
