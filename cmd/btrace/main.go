// Package main implements the entry point for the btrace command.
// btrace builds a trace processing graph from a pipeline configuration
// file, runs it and prints the merged message flow.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/antmicro/libbtrace/collection"
	"github.com/antmicro/libbtrace/config"
	"github.com/antmicro/libbtrace/errors"
	"github.com/antmicro/libbtrace/message"
	"github.com/antmicro/libbtrace/metric"
	"github.com/antmicro/libbtrace/native"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "btrace"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Run failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	metrics := metric.NewMetrics()
	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	if cliCfg.MetricsPort > 0 {
		srv := metric.NewServer(cliCfg.MetricsPort, "/metrics", registry)
		go func() {
			if err := srv.Start(); err != nil {
				slog.Warn("Metrics server stopped", "error", err)
			}
		}()
		defer func() { _ = srv.Stop() }()
		slog.Info("Metrics server started", "address", srv.Address())
	}

	eng := native.Open()
	defer func() {
		if err := eng.Close(); err != nil {
			slog.Warn("Object engine closed with live objects", "error", err)
		}
	}()

	it, err := cfg.Build(eng, config.BuildOptions{
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	defer it.Release()

	// Interrupt the graph on the first signal; exit hard on the second.
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		slog.Info("Interrupting pipeline")
		it.Interrupt()
		<-sigs
		os.Exit(1)
	}()

	return printFlow(it, cliCfg.Quiet)
}

// printFlow drains the iterator, writing one line per message.
func printFlow(it *collection.Iterator, quiet bool) error {
	var total uint64
	for {
		m, err := it.Next()
		if err != nil {
			if errors.IsEnd(err) {
				slog.Info("Pipeline finished", "messages", total)
				return nil
			}
			if errors.IsTransient(err) {
				slog.Info("Pipeline interrupted", "messages", total)
				return nil
			}
			return err
		}
		total++
		if !quiet {
			printMessage(m)
		}
		m.Release()
	}
}

func printMessage(m *message.Message) {
	if ns, ok := m.NSFromOrigin(); ok {
		fmt.Printf("[%s] %d\n", m.Kind(), ns)
		return
	}
	fmt.Printf("[%s]\n", m.Kind())
}
