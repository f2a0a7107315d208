// SPDX-License-Identifier: LGPL-3.0-or-later

// Command hyperfetchd wires configuration, logging, tracing, and the
// control API around an hyperfetch.Engine, the daemon counterpart to the
// interactive hyperfetch CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hyperfetch"
	"hyperfetch/config"
	"hyperfetch/daemon/api"
	"hyperfetch/logger"
	"hyperfetch/reporter"
	"hyperfetch/resolver"
	"hyperfetch/tracing"
)

const defaultAddr = "localhost:8090"

func main() {
	configFile := flag.String("config", "", "Path to config file (YAML)")
	addr := flag.String("addr", "", "control API address (overrides config file)")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	enableTracing := flag.Bool("tracing", false, "enable OpenTelemetry tracing")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configFile != "" {
		cfg, err = config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg = config.FromEnvironment()
	}

	if *addr != "" {
		cfg.DaemonAddr = *addr
	}
	if cfg.DaemonAddr == "" {
		cfg.DaemonAddr = defaultAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	log := logger.New(cfg.LogLevel)

	opts, err := cfg.ToOptions()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	provider, err := tracing.NewProvider(tracing.Config{
		Enabled:      *enableTracing,
		ServiceName:  "hyperfetchd",
		Exporter:     "stdout",
		SamplingRate: 1.0,
	})
	if err != nil {
		log.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer provider.Shutdown(context.Background())

	engine, err := hyperfetch.New(opts, resolver.URLResolver{}, reporter.NewMulti(
		reporter.NewBarReporter(os.Stdout),
		reporter.MetricsReporter{},
	))
	if err != nil {
		log.Error("failed to build engine", "error", err)
		os.Exit(1)
	}
	engine.WithLogger(log).WithTracer(provider.Tracer("hyperfetchd"))

	if watcher, err := config.Watch(*configFile, func(o hyperfetch.Options) {
		if err := engine.UpdateOptions(o); err != nil {
			log.Warn("live config reload rejected", "error", err)
		} else {
			log.Info("applied live config reload")
		}
	}); err == nil {
		defer watcher.Close()
	}

	server := api.NewServer(engine, log, cfg.DaemonAddr)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	log.Info("hyperfetchd started", "addr", cfg.DaemonAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", "signal", sig.String())
	case err := <-errCh:
		log.Error("control API error", "error", err)
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}
	if err := engine.SaveState(); err != nil {
		log.Warn("final checkpoint write failed", "error", err)
	}
}
