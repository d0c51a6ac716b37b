package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"market-anomaly-alerts/internal/metrics"
	"market-anomaly-alerts/internal/scheduler"
	"market-anomaly-alerts/internal/service"
)

// RunOptions configure the long-running mode.
type RunOptions struct {
	MetricsAddr string
}

// Run executes detection on the configured schedule until interrupted.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched, err := scheduler.New(scheduler.Options{
		Schedule:   a.Config.Scheduler.Schedule,
		RunOnStart: a.Config.Scheduler.RunOnStart,
	}, a.Logger)
	if err != nil {
		return err
	}

	engine, err := a.newEngine()
	if err != nil {
		return err
	}

	var recorder *metrics.Recorder
	if a.Config.Metrics.Enabled || opts.MetricsAddr != "" {
		recorder = metrics.NewRecorder()
		addr := opts.MetricsAddr
		if addr == "" {
			addr = a.Config.Metrics.ListenAddr
		}
		stop := a.serveMetrics(addr, a.Config.Metrics.Path, recorder.Handler())
		defer stop()
	}

	svc := service.New(
		a.serviceOptions("", "", 0),
		sched,
		a.newFetcher(""),
		engine,
		a.newNotifier(false),
		recorder,
		a.Logger,
	)

	a.Logger.Info().
		Str("schedule", a.Config.Scheduler.Schedule).
		Str("asset", a.Config.Market.CoinID).
		Msg("starting detection service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("detection service stopped")
	return nil
}

// serveMetrics starts the metrics endpoint and returns its shutdown func.
func (a *App) serveMetrics(addr, path string, handler http.Handler) func() {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, handler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.Logger.Info().Str("addr", addr).Str("path", path).Msg("metrics endpoint listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("metrics endpoint failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("metrics endpoint shutdown")
		}
	}
}
