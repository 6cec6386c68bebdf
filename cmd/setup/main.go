package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"sms-rupee-go/internal/common"
	"sms-rupee-go/internal/config"
	"sms-rupee-go/internal/models"

	"go.uber.org/zap"
)

// seedAdmin stores the admin credential from ADMIN_USERNAME and ADMIN_PASSWORD
func seedAdmin(ctx context.Context, services *common.Services, admin models.AdminConfig) error {
	if admin.Password == "" {
		zap.L().Warn("ADMIN_PASSWORD not set, skipping admin credential")
		return nil
	}

	if err := services.ApiService.SetAdminPassword(ctx, admin.Username, admin.Password); err != nil {
		zap.L().Error("Error storing admin credential",
			zap.String("username", admin.Username),
			zap.Error(err))
		return err
	}

	zap.L().Info("Stored admin credential", zap.String("username", admin.Username))
	return nil
}

// loadInventory bulk-adds "number,message" lines from a file
func loadInventory(ctx context.Context, services *common.Services, file string) (*models.BulkResult, error) {
	zap.L().Info("Loading inventory file", zap.String("file", file))
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory file: %w", err)
	}

	result, err := services.ApiService.BulkAddSms(ctx, string(data))
	if err != nil {
		zap.L().Error("Error loading inventory", zap.String("file", file), zap.Error(err))
		return nil, err
	}

	zap.L().Info("Inventory loaded",
		zap.Int("added", result.Added),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func printSims(sims []models.SimSlot) {
	fmt.Println("SIM slots:")
	for i, s := range sims {
		fmt.Printf("%s %d: %s\n", common.BoxPrefix(i == len(sims)-1), s.Id, s.Name)
	}
}

func runInit(ctx context.Context, services *common.Services, cfg *models.Config, inventoryFile string) {
	zap.L().Info("Initializing database", zap.String("path", cfg.Database.Path))

	sims, err := common.LoadSimConfig(cfg.Sender.SimsFile)
	if err != nil {
		zap.L().Fatal("Failed to load SIM config", zap.Error(err))
	}

	if err := seedAdmin(ctx, services, cfg.Admin); err != nil {
		zap.L().Fatal("Failed to seed admin credential", zap.Error(err))
	}

	var bulk *models.BulkResult
	if inventoryFile != "" {
		bulk, err = loadInventory(ctx, services, inventoryFile)
		if err != nil {
			zap.L().Fatal("Failed to load inventory", zap.Error(err))
		}
	}

	unsent, err := services.DbService.CountUnsent(ctx)
	if err != nil {
		zap.L().Fatal("Failed to count inventory", zap.Error(err))
	}

	common.PrintHeader("SETUP COMPLETE", common.DefaultWidth)
	fmt.Printf("Database:        %s\n", cfg.Database.Path)
	fmt.Printf("Admin:           %s\n", cfg.Admin.Username)
	if bulk != nil {
		fmt.Printf("Inventory added: %d (skipped %d)\n", bulk.Added, bulk.Skipped)
	}
	fmt.Printf("Unsent SMS:      %d\n", unsent)
	printSims(sims)
	common.PrintSeparator("=", common.DefaultWidth)

	zap.L().Info("Initialization complete")
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	inventoryFlag := flag.String("inventory", "", "Optional file of \"number,message\" lines to load")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	runInit(ctx, services, cfg, *inventoryFlag)
}
