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
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sms-rupee-go/internal/common"
	"sms-rupee-go/internal/httpapi"
	"sms-rupee-go/internal/scheduler"

	"go.uber.org/zap"
)

func main() {
	cfg, loggerCleanup, err := common.Bootstrap()
	defer loggerCleanup()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting SMS rewards API server")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	sched := scheduler.New(scheduler.NewJobs(services.DbService))
	if err := sched.Start(cfg.Scheduler.ClaimReaperSchedule); err != nil {
		zap.L().Fatal("Failed to start scheduler", zap.Error(err))
	}

	router := httpapi.NewRouter(httpapi.NewHandler(services.ApiService))
	server := httpapi.NewServer(cfg.HTTP.Addr, cfg.HTTP.WriteTimeout, router)

	go func() {
		zap.L().Info("Listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("Forced shutdown after timeout", zap.Error(err))
	}

	select {
	case <-sched.Stop().Done():
		zap.L().Info("Server stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Scheduled jobs still running at shutdown")
	}
}
