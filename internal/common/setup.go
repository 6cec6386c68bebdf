package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"sms-rupee-go/internal/api"
	"sms-rupee-go/internal/config"
	"sms-rupee-go/internal/database"
	"sms-rupee-go/internal/events"
	"sms-rupee-go/internal/formance"
	"sms-rupee-go/internal/models"
	"sms-rupee-go/internal/settlement"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Try to load .env file - if it doesn't exist, that's okay
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService  *database.Service
	Events     events.Publisher
	Settler    *settlement.Settler
	ApiService *api.Service
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// Bootstrap installs the global logger before loading configuration so a
// config error is logged instead of going to the no-op logger.
func Bootstrap() (*models.Config, func(), error) {
	_, cleanup := InitializeLogger()
	cfg, err := config.Load()
	if err != nil {
		return nil, cleanup, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, cleanup, nil
}

// InitializeServices opens the ledger store and wires the optional journal
// mirror and event publisher into settlement and the account service.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database, cfg.Feed)
	if err != nil {
		return nil, err
	}

	publisher, err := events.New(cfg.Events.URL, cfg.Events.Exchange)
	if err != nil {
		dbService.Close()
		return nil, fmt.Errorf("failed to connect event publisher: %w", err)
	}

	var journal settlement.Journal
	if cfg.Formance.Enabled() {
		j, err := formance.NewJournal(ctx, cfg.Formance)
		if err != nil {
			publisher.Close()
			dbService.Close()
			return nil, err
		}
		journal = j
	} else {
		zap.L().Info("Formance journal mirror disabled")
	}

	settler := settlement.New(settlement.Config{
		Store:              dbService,
		RewardPerSMS:       cfg.Rewards.RewardPerSMS,
		ReferralPercentage: cfg.Rewards.ReferralPercentage,
		Journal:            journal,
		Events:             publisher,
	})

	apiService := api.NewService(api.Config{
		Store:   dbService,
		Rewards: cfg.Rewards,
		Events:  publisher,
	})

	return &Services{
		DbService:  dbService,
		Events:     publisher,
		Settler:    settler,
		ApiService: apiService,
	}, nil
}

// InitializeDatabaseOnly initializes just the database service without the mirrors
// Useful for read-only operations like querying balances
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	return database.NewService(ctx, cfg.Database, cfg.Feed)
}

func (cs *Services) Close() {
	if cs.Events != nil {
		cs.Events.Close()
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
