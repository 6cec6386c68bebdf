/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"sms-rupee-go/internal/common"
	"sms-rupee-go/internal/device"
	"sms-rupee-go/internal/inventory"
	"sms-rupee-go/internal/models"
	"sms-rupee-go/internal/projection"
	"sms-rupee-go/internal/runner"
	"sms-rupee-go/internal/scheduler"

	"go.uber.org/zap"
)

// parseSlots resolves the -slots flag against the configured SIMs. Empty means all.
func parseSlots(raw string, sims []models.SimSlot) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		ids := make([]int, 0, len(sims))
		for _, s := range sims {
			ids = append(ids, s.Id)
		}
		return ids, nil
	}

	var ids []int
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid slot %q: %w", part, err)
		}
		if _, ok := common.FindSim(sims, id); !ok {
			return nil, fmt.Errorf("slot %d is not configured", id)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func watchSession(session *projection.Session, r *runner.Runner) {
	for snap := range session.Updates() {
		fmt.Printf("%s Balance %s | Spins %d | Pending SMS %d | Sent this session %d\n",
			snap.UpdatedAt.Format("15:04:05"), common.Rupees(snap.Balance),
			snap.SpinsAvailable, snap.PendingSms, r.SessionSentCount())
	}
}

func main() {
	mobileFlag := flag.String("mobile", "", "Mobile number of the sending account (required)")
	passwordFlag := flag.String("password", "", "Account password (required)")
	deviceFlag := flag.String("device", "", "Device id (default: DEVICE_ID or the hostname)")
	slotsFlag := flag.String("slots", "", "Comma separated SIM slot ids to start (default: all configured)")
	flag.Parse()

	cfg, loggerCleanup, err := common.Bootstrap()
	defer loggerCleanup()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	if *mobileFlag == "" || *passwordFlag == "" {
		zap.L().Fatal("Both --mobile and --password are required")
	}

	deviceId := *deviceFlag
	if deviceId == "" {
		deviceId = device.ResolveDeviceId(cfg.Device)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting SMS sender", zap.String("device_id", deviceId))

	sims, err := common.LoadSimConfig(cfg.Sender.SimsFile)
	if err != nil {
		zap.L().Fatal("Failed to load SIM config", zap.Error(err))
	}
	slots, err := parseSlots(*slotsFlag, sims)
	if err != nil {
		zap.L().Fatal("Invalid --slots", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	sender, err := services.ApiService.Login(ctx, *mobileFlag, *passwordFlag, deviceId)
	if err != nil {
		zap.L().Fatal("Login failed", zap.Error(err))
	}

	dev, err := device.New(cfg.Device)
	if err != nil {
		zap.L().Fatal("Failed to create device", zap.Error(err))
	}

	r := runner.New(runner.Config{
		Claims:       inventory.NewClaimer(services.DbService, deviceId, cfg.Sender.ClaimLease),
		Settler:      services.Settler,
		Device:       dev,
		Permissions:  dev,
		Sender:       *sender,
		Slots:        sims,
		SendInterval: cfg.Sender.SendInterval,
		IdleBackoff:  cfg.Sender.IdleBackoff,
		ErrorBackoff: cfg.Sender.ErrorBackoff,
		SendTimeout:  cfg.Sender.SendTimeout,
		Console:      os.Stdout,
		OnStatus: func(s runner.SlotStatus) {
			zap.L().Debug("Slot status",
				zap.Int("slot", s.Slot),
				zap.String("state", s.StateName),
				zap.String("status", s.Status))
		},
	})

	// Expired leases from a crashed sender are freed even if no server runs.
	sched := scheduler.New(scheduler.NewJobs(services.DbService))
	if err := sched.Start(cfg.Scheduler.ClaimReaperSchedule); err != nil {
		zap.L().Fatal("Failed to start scheduler", zap.Error(err))
	}

	session, err := projection.Open(ctx, services.DbService, sender.Mobile)
	if err != nil {
		zap.L().Fatal("Failed to open session projection", zap.Error(err))
	}
	go watchSession(session, r)

	started := 0
	for _, slot := range slots {
		if err := r.Start(ctx, slot); err != nil {
			zap.L().Error("Failed to start slot", zap.Int("slot", slot), zap.Error(err))
			continue
		}
		started++
	}
	if started == 0 {
		zap.L().Fatal("No SIM slots started")
	}

	zap.L().Info("Sender running",
		zap.String("mobile", sender.Mobile),
		zap.Int("slots", started),
		zap.String("reward_per_sms", services.Settler.Reward().StringFixed(2)),
		zap.String("referral_commission", services.Settler.Commission().StringFixed(2)))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping all slots...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := r.StopAll(shutdownCtx); err != nil {
		zap.L().Warn("Forced shutdown after timeout", zap.Error(err))
	} else {
		zap.L().Info("All slots stopped gracefully",
			zap.Int64("sent_this_session", r.SessionSentCount()))
	}

	<-sched.Stop().Done()
	session.Close()
}
