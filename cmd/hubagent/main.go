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

	"github.com/isolapurr/hubmon/pkg/agentserver"
	"github.com/isolapurr/hubmon/pkg/config"
	"github.com/isolapurr/hubmon/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/hubmon/hubagent.json", "Path to agent config file")
	flag.Parse()

	var cfg config.AgentConfig
	if err := config.LoadFile(*configPath, &cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg.Normalize()

	mainLogger, err := logger.New(*cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	store, err := agentserver.OpenStore(cfg.DBPath, mainLogger)
	if err != nil {
		return fmt.Errorf("failed to open storage database: %w", err)
	}

	defer func() { _ = store.Close() }()

	server, err := agentserver.NewServer(store, cfg.ListenAddr, mainLogger)
	if err != nil {
		return err
	}

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
