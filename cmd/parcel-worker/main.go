package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"parcelbox/config"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("failed to load config, %v", err))
	}

	f := defaultWorkerFactories()
	p, closeFn, err := newPoller(cfg, f)
	if err != nil {
		panic(err)
	}
	if closeFn != nil {
		defer closeFn()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Ops HTTP endpoint is optional; the poller runs without it.
	if swaggerPath := os.Getenv("swaggerPath"); swaggerPath != "" {
		go func() {
			err := runWorkerHTTPServer(ctx, workerHTTPOpts{
				httpAddr:    cfg.Parcels.WorkerHTTPAddr,
				swaggerPath: swaggerPath,
				poller:      p,
				cfg:         cfg,
			})
			if err != nil && err != context.Canceled {
				slog.Error("worker http server stopped", "err", err)
			}
		}()
	}

	if err := p.Run(ctx); err != nil && err != context.Canceled {
		panic(err)
	}
}
