// Package main implements the streamroute daemon: it wires the catalogue,
// the stream router, and the metrics endpoint together and runs until
// signalled.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/kadledav/streamroute/catalogue"
	"github.com/kadledav/streamroute/config"
	"github.com/kadledav/streamroute/metric"
	"github.com/kadledav/streamroute/router"
)

const (
	// Version is the build version printed by -version
	Version = "0.1.0"
	appName = "streamrouted"
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
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to configuration file (YAML or JSON)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", appName, Version)
		return nil
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metric.NewRegistry()

	cat, cleanup, err := buildCatalogue(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	r := router.New(cfg.Router, cat, registry, logger)
	if err := r.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := r.Stop(10 * time.Second); err != nil {
			logger.Warn("Router stop failed", "error", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry.PrometheusRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("Metrics endpoint listening", "addr", cfg.Metrics.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	logger.Info("streamrouted started", "version", Version, "catalogue_mode", cfg.Catalogue.Mode)
	return group.Wait()
}

// buildCatalogue constructs the configured catalogue backend and returns a
// cleanup function for its resources
func buildCatalogue(ctx context.Context, cfg *config.Config, logger *slog.Logger) (catalogue.Catalogue, func(), error) {
	switch cfg.Catalogue.Mode {
	case config.CatalogueModeKV:
		kv, nc, err := catalogue.OpenKV(ctx, cfg.NATS, cfg.Catalogue.Bucket, logger)
		if err != nil {
			return nil, nil, err
		}
		return kv, nc.Close, nil
	default:
		return catalogue.NewMemory(), func() {}, nil
	}
}
