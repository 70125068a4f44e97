/*
 * Copyright 2026 Isolapurr Project.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
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
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/isolapurr/hubmon/pkg/agent"
	"github.com/isolapurr/hubmon/pkg/api"
	"github.com/isolapurr/hubmon/pkg/config"
	"github.com/isolapurr/hubmon/pkg/deviceapi"
	"github.com/isolapurr/hubmon/pkg/discovery"
	"github.com/isolapurr/hubmon/pkg/logger"
	"github.com/isolapurr/hubmon/pkg/notify"
	"github.com/isolapurr/hubmon/pkg/registry"
	"github.com/isolapurr/hubmon/pkg/runtime"
	"github.com/isolapurr/hubmon/pkg/scan"
	"github.com/isolapurr/hubmon/pkg/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/hubmon/hubmond.json", "Path to monitor config file")
	flag.Parse()

	var cfg config.MonitorConfig
	if err := config.LoadFile(*configPath, &cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg.Normalize()

	mainLogger, err := logger.New(*cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifier := notify.NewLogNotifier(mainLogger)

	local := storage.NewLocalStore(cfg.DataDir, mainLogger)

	var (
		store    registry.Store = local
		backend  bool
		migrator api.Migrator
	)

	if cfg.AgentURL != "" {
		if bootstrap := agent.TryBootstrap(ctx, cfg.AgentURL, mainLogger); bootstrap != nil {
			client := agent.NewClient(bootstrap, mainLogger)
			store = agent.NewStore(client)
			backend = true
			migrator = agent.NewLocalMigrator(client, local)

			mainLogger.Info().Str("agent", bootstrap.AgentBaseURL).Msg("using desktop agent storage")

			if bootstrap.Warning != "" {
				notifier.Push(notify.Toast{Level: notify.LevelWarning, Message: bootstrap.Warning})
			}
		} else {
			mainLogger.Info().Msg("desktop agent unavailable, using local storage")
		}
	}

	reg := registry.New(store, backend, notifier, mainLogger)
	reg.Load(ctx)

	deviceClient := deviceapi.NewClient(deviceapi.Options{
		Timeout:       time.Duration(cfg.RequestTimeoutMS) * time.Millisecond,
		SecureContext: cfg.SecureContext,
	}, mainLogger)

	scanner := scan.NewScanner(deviceClient, cfg.ScanConcurrency, mainLogger)
	session := discovery.NewSession(scanner, cfg.MaxScanHosts, mainLogger)

	defer session.Close()

	monitor := runtime.NewMonitor(deviceClient, reg, notifier, runtime.Config{
		PollInterval:     time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		OfflineThreshold: time.Duration(cfg.OfflineThresholdMS) * time.Millisecond,
	}, mainLogger)

	monitor.Start(ctx)
	defer monitor.Stop()

	server := api.NewServer(reg, monitor, session, migrator, cfg.ListenAddr, mainLogger)

	errCh := make(chan error, 1)

	go func() {
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		mainLogger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return server.Shutdown(shutdownCtx)
}
