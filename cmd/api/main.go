package main

import (
	"fmt"
	"os"

	"beanmind/internal/config"
	"beanmind/internal/database"
	"beanmind/internal/logger"
	"beanmind/internal/server"
)

// @title           BeanMind API
// @version         1.0
// @description     BeanMind automates periodic personal finance: recurring transactions posted into a double-entry journal, and budgets evaluated cycle by cycle against actual spending.
// @termsOfService  http://swagger.io/terms/

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	dbManager, err := database.NewManager(database.NewConfig(appConfig))
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer func() {
		if err := dbManager.Close(); err != nil {
			log.Warnf("database close error: %v", err)
		}
	}()

	if err := dbManager.Migrate(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	services := server.NewServices(dbManager.DB(), appConfig)
	router := server.NewRouter(services, appConfig)

	if appConfig.PipelineAPIKey == "" {
		log.Warn("PIPELINE_API_KEY is not set; the pipeline trigger endpoint is disabled")
	}

	log.Infof("Starting BeanMind server on port %s", appConfig.Port)
	log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
	return router.Run(":" + appConfig.Port)
}
