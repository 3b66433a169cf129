package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rfidattend/internal/app"
	"rfidattend/internal/config"
	"rfidattend/internal/metrics"
	"rfidattend/internal/worker"
)

// Worker replays scans that devices buffered while offline.
func main() {
	cfg := config.Load()
	if cfg.QueueBackend != "redis" {
		log.Fatalf("worker needs QUEUE_BACKEND=redis, got %q", cfg.QueueBackend)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Open(ctx, cfg, 0)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = deps.Close(closeCtx)
	}()

	rec := metrics.New(nil)

	if cfg.WorkerMetricsPort != "" {
		srv := &http.Server{Addr: ":" + cfg.WorkerMetricsPort, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics listener: %v", err)
			}
		}()
		defer srv.Close()
	}

	log.Printf("worker started on queue %s", cfg.QueueKey)
	if err := worker.Run(ctx, deps.Queue, deps.Service, rec); err != nil {
		log.Printf("worker failed: %v", err)
		return
	}
	log.Println("worker stopped")
}
