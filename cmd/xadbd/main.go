// Copyright 2026 The XA Coordinator Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command xadbd starts the XA transaction coordinator: it loads
// configuration, dials the configured storage engine, runs the startup
// recovery scan, and serves prometheus metrics while the coordinator's
// XaCommands sits ready for a SQL front end to drive it. Parsing and
// executing the XA SQL statements themselves is the embedding server's
// job; this binary wires only the coordinator itself.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xadb/xa-coordinator/internal/xalog"
	"github.com/xadb/xa-coordinator/pkg/xa/cache"
	"github.com/xadb/xa-coordinator/pkg/xa/config"
	"github.com/xadb/xa-coordinator/pkg/xa/coordinator"
	"github.com/xadb/xa-coordinator/pkg/xa/engine"
	"github.com/xadb/xa-coordinator/pkg/xa/recovery"
	"github.com/xadb/xa-coordinator/pkg/xa/registry"
)

var (
	configPath  = flag.String("config", "xadbd.toml", "path to the coordinator's TOML config file")
	metricsAddr = flag.String("metrics-addr", ":9260", "address to serve /metrics on")
	dryRun      = flag.Bool("recovery-dry-run", false, "run recovery in dry-run mode and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "xadbd: %v\n", err)
		os.Exit(1)
	}

	log := xalog.Named("xadbd")
	xalog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Fatal("xadbd exiting", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var engines []engine.Engine
	if cfg.DSN != "" {
		sqlEngine, err := engine.NewSQLEngine("primary", cfg.DSN)
		if err != nil {
			return fmt.Errorf("open storage engine: %w", err)
		}
		engines = append(engines, sqlEngine)
	} else {
		log.Warn("no dsn configured, running with zero storage engines")
	}

	c := cache.New()
	reg := registry.New(cfg.PreparedRegistryShards)
	mdl := engine.NewInMemoryMDLManager()
	backups := engine.NewInMemoryBackupManager()
	binlog := engine.StaticBinlogFacade{}
	gtid := engine.NoopGTIDTracker{}

	heuristic, err := cfg.Heuristic()
	if err != nil {
		return err
	}

	resolver := recovery.New(c, reg, backups, engines)
	sets, err := binlog.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot binlog sets: %w", err)
	}
	result, err := resolver.Resolve(ctx, sets, recovery.Options{
		DryRun:                *dryRun,
		Heuristic:             heuristic,
		TotalEnginesWithTwoPC: len(engines),
		HasBinlog:             cfg.LogBin,
		Logger:                log,
	})
	if err != nil {
		return fmt.Errorf("startup recovery: %w", err)
	}
	log.Info("recovery complete",
		zap.Int("committed", len(result.EngineCommitted)),
		zap.Int("rolled_back", len(result.EngineRolledBack)),
		zap.Int("retained", len(result.Retained)))
	if *dryRun {
		return nil
	}

	xc := coordinator.New(c, reg, engines, mdl, backups, binlog, gtid,
		coordinator.WithLogger(log),
		coordinator.WithLockWaitTimeout(cfg.LockWaitTimeout()),
	)
	_ = xc // ready for the embedding SQL front end to drive.

	metricsSrv := &http.Server{
		Addr:    *metricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	log.Info("xadbd ready", zap.String("metrics_addr", *metricsAddr))

	waitSignal()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics server shutdown", zap.Error(err))
	}
	c.Shutdown()
	return nil
}

func waitSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
}
