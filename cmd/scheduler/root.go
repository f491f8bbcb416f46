package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"beanmind/internal/config"
	"beanmind/internal/database"
	"beanmind/internal/logger"
	"beanmind/internal/server"
)

var flagMigrate bool

var rootCmd = &cobra.Command{
	Use:          "scheduler",
	Short:        "Run recurring transaction rules",
	Long:         "Execute due recurring rules once, on an interval, or preview a rule's upcoming dates.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagMigrate, "migrate", false, "Apply database migrations before running")
}

// app holds what every subcommand needs.
type app struct {
	cfg      *config.Config
	db       *gorm.DB
	services *server.Services
	close    func()
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	dbManager, err := database.NewManager(database.NewConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create database manager: %w", err)
	}
	if flagMigrate || cfg.DBDriver == "sqlite" {
		if err := dbManager.Migrate(); err != nil {
			_ = dbManager.Close()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
	}

	db := dbManager.DB()
	return &app{
		cfg:      cfg,
		db:       db,
		services: server.NewServices(db, cfg),
		close: func() {
			if err := dbManager.Close(); err != nil {
				logger.Get().Warnf("database close error: %v", err)
			}
		},
	}, nil
}
