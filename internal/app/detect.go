package app

import (
	"context"

	"market-anomaly-alerts/internal/export"
	"market-anomaly-alerts/internal/service"
)

// DetectOptions configure a single detection run.
type DetectOptions struct {
	InputPath string
	CSVPath   string
	PNGPath   string
	MaxPoints int
	Notify    bool
	Quiet     bool
}

// Detect fetches one batch, evaluates the rules and prints the alert feed.
func (a *App) Detect(ctx context.Context, opts DetectOptions) error {
	engine, err := a.newEngine()
	if err != nil {
		return err
	}

	svc := service.New(
		a.serviceOptions(opts.CSVPath, opts.PNGPath, opts.MaxPoints),
		nil,
		a.newFetcher(opts.InputPath),
		engine,
		a.newNotifier(opts.Notify),
		nil,
		a.Logger,
	)

	report, err := svc.Detect(ctx)
	if err != nil {
		return err
	}

	if opts.Quiet {
		return nil
	}
	return export.WriteAlertTable(a.Stdout, report.Result.Alerts)
}
