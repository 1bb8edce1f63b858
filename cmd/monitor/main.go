// ==========================
// File: cmd/monitor/main.go
// ==========================
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/solwatch/solwatch/internal/config"
	"github.com/solwatch/solwatch/internal/logger"
	"github.com/solwatch/solwatch/internal/monitor"
)

func main() {
	configPath := flag.String("config", "", "optional config file; environment variables always win")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fallback, _ := zap.NewDevelopment()
		fallback.Fatal("Failed to load configuration", zap.Error(err))
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Starting pool monitor")

	registry := prometheus.NewRegistry()
	mon, err := monitor.New(cfg, registry, log)
	if err != nil {
		log.Fatal("Failed to assemble monitor", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}

		g.Go(func() error {
			log.Info("Metrics listener up", zap.String("addr", cfg.MetricsAddr))
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	mon.Start()

	<-gCtx.Done()
	log.Info("Shutdown signal received")
	mon.Stop()

	if err := g.Wait(); err != nil {
		log.Warn("Shutdown finished with error", zap.Error(err))
	}
}
