package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/square-exporter/internal/config"
	httpapi "github.com/fairyhunter13/square-exporter/internal/http"
	"github.com/fairyhunter13/square-exporter/internal/obs"
	"github.com/fairyhunter13/square-exporter/internal/scheduler"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve /metrics and collect on a fixed interval (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			obs.InitLogger(cfg.LogLevel)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

// serve runs the exposition server and the scheduler until ctx is done.
func serve(ctx context.Context, cfg config.Config) error {
	obs.Logger.Info("service_starting", "version", Version, "location_id", cfg.LocationID, "window_hours", cfg.WindowHours)
	ex := newExporter(ctx, cfg)

	sched := scheduler.New(func(ctx context.Context, now time.Time) error {
		_, err := ex.controller.RunCycle(ctx, now)
		return err
	}, scheduler.Options{Interval: cfg.Interval(), Metrics: ex.metrics})

	app := httpapi.NewApp(cfg, ex.metrics, sched, ex.cache, ex.currency)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           httpapi.NewRouter(app),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		obs.Logger.Info("http_listen", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	sched.Start(ctx)

	var runErr error
	select {
	case <-ctx.Done():
		obs.Logger.Info("shutdown_signal")
	case err := <-srvErr:
		if err != nil {
			obs.Logger.Error("http_server_error", "error", err)
			runErr = err
		}
	}

	sched.Stop()
	ctxSrv, cancelSrv := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelSrv()
	if err := srv.Shutdown(ctxSrv); err != nil {
		obs.Logger.Error("http_shutdown_error", "error", err)
	}
	obs.Logger.Info("service_stopped")
	return runErr
}
