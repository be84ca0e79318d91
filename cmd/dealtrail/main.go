package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dealtrail/internal/api"
	"dealtrail/internal/app/dealtrail"
	"dealtrail/internal/config"
	"dealtrail/internal/logging"

	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.ParseConfig()
	if err != nil {
		log.Fatal(err)
	}
	logging.Init(cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))

	app, err := dealtrail.New(ctx, cfg)
	if err != nil {
		log.Fatal("dealtrail.New: ", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	var feed api.IFeedStatus
	if app.Manager != nil {
		feed = app.Manager
	}
	server, err := api.NewAPIServer(api.NewCRMService(app.Service, feed), app.Metrics,
		int(cfg.Service.GRPCPort), int(cfg.Service.HTTPPort))
	if err != nil {
		slog.Error("api.NewAPIServer", "error", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.Run(gctx) })
	g.Go(func() error { return server.Start(gctx) })

	if err := g.Wait(); err != nil {
		slog.Error("shutdown with an error", "error", err)
		return
	}
	slog.Info("shutdown by signal")
}
