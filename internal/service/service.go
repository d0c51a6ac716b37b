package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"market-anomaly-alerts/internal/alerting"
	"market-anomaly-alerts/internal/anomaly"
	"market-anomaly-alerts/internal/export"
	"market-anomaly-alerts/internal/fetcher"
	"market-anomaly-alerts/internal/metrics"
	"market-anomaly-alerts/internal/scheduler"
)

// Options configure what a detection run does with its result.
type Options struct {
	CSVPath             string
	PNGPath             string
	Chart               export.ChartOptions
	MaxAlertsPerMessage int
	Channels            []string
}

// Report summarises one detection run.
type Report struct {
	Asset    string
	Result   *anomaly.Result
	Notified int
}

// Service orchestrates fetching, detection, export, and alerting.
type Service struct {
	opts      Options
	scheduler *scheduler.Scheduler
	source    fetcher.MarketChartFetcher
	engine    *anomaly.Engine
	channels  []*channel
	metrics   *metrics.Recorder
	logger    zerolog.Logger

	announced alerting.Ledger
}

// channel tracks deliveries per notifier so one failing channel does not
// make the others repeat themselves.
type channel struct {
	notifier  alerting.Notifier
	delivered alerting.Ledger
}

func splitChannels(notifier alerting.Notifier) []*channel {
	if notifier == nil {
		return nil
	}
	fanout, ok := notifier.(alerting.Fanout)
	if !ok {
		return []*channel{{notifier: notifier}}
	}
	channels := make([]*channel, 0, len(fanout))
	for _, n := range fanout {
		if n != nil {
			channels = append(channels, &channel{notifier: n})
		}
	}
	return channels
}

// New constructs the detection service. sched, notifier and recorder are optional.
func New(opts Options, sched *scheduler.Scheduler, source fetcher.MarketChartFetcher, engine *anomaly.Engine, notifier alerting.Notifier, recorder *metrics.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		opts:      opts,
		scheduler: sched,
		source:    source,
		engine:    engine,
		channels:  splitChannels(notifier),
		metrics:   recorder,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// Run begins the scheduled detection loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, func(ctx context.Context, at time.Time) error {
		_, err := s.Detect(ctx)
		return err
	})
}

// Detect 执行一次完整的检测流程。
func (s *Service) Detect(ctx context.Context) (*Report, error) {
	started := time.Now()
	report, err := s.detect(ctx)
	var res *anomaly.Result
	if report != nil {
		res = report.Result
	}
	s.metrics.ObserveRun(started, res, err)
	return report, err
}

func (s *Service) detect(ctx context.Context) (*Report, error) {
	chart, err := s.source.FetchMarketChart(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch market chart: %w", err)
	}

	res, err := s.engine.Run(chart.Prices, chart.Volumes)
	if err != nil {
		return nil, fmt.Errorf("detect anomalies for %s: %w", chart.Asset, err)
	}

	report := &Report{Asset: chart.Asset, Result: res}

	if s.opts.CSVPath != "" {
		if err := export.WriteAlertsCSV(s.opts.CSVPath, res.Alerts); err != nil {
			return report, fmt.Errorf("write csv: %w", err)
		}
		s.logger.Info().Str("path", s.opts.CSVPath).Int("alerts", len(res.Alerts)).Msg("alerts exported")
	}

	if s.opts.PNGPath != "" && len(res.Series) < 2 {
		s.logger.Warn().Int("samples", len(res.Series)).Msg("not enough samples to render chart")
	} else if s.opts.PNGPath != "" {
		chartOpts := s.opts.Chart
		if chartOpts.Asset == "" {
			chartOpts.Asset = chart.Asset
		}
		if err := export.WriteChartPNG(s.opts.PNGPath, chartOpts, res.Series, res.Alerts); err != nil {
			return report, fmt.Errorf("write chart: %w", err)
		}
		s.logger.Info().Str("path", s.opts.PNGPath).Msg("chart rendered")
	}

	report.Notified = s.notify(ctx, chart.Asset, res.Alerts)

	s.logger.Info().
		Str("asset", chart.Asset).
		Int("samples", len(res.Series)).
		Int("price_spikes", res.Flags[anomaly.RulePriceSpike]).
		Int("volume_spikes", res.Flags[anomaly.RuleVolumeSpike]).
		Int("alerts", len(res.Alerts)).
		Int("skipped_rows", len(res.Skipped)).
		Msg("detection complete")

	return report, nil
}

// notify sends every channel the alerts it has not delivered yet and returns
// how many alerts reached at least one channel for the first time.
func (s *Service) notify(ctx context.Context, asset string, alerts []anomaly.Alert) int {
	if len(s.channels) == 0 || len(alerts) == 0 {
		return 0
	}

	batch := alerting.Notification{
		Asset:       asset,
		GeneratedAt: time.Now().UTC(),
		Alerts:      alerts,
		MaxListed:   s.opts.MaxAlertsPerMessage,
		Channels:    s.opts.Channels,
	}
	for _, ch := range s.channels {
		note := ch.delivered.Fresh(batch)
		if len(note.Alerts) == 0 {
			continue
		}
		if err := ch.notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).
				Str("channel", fmt.Sprintf("%T", ch.notifier)).
				Int("alerts", len(note.Alerts)).
				Msg("failed to dispatch alert")
			continue
		}
		ch.delivered.Record(note, alerts[0].Timestamp)
	}

	var fresh []anomaly.Alert
	for _, a := range alerts {
		if s.announced.Delivered(a) {
			continue
		}
		for _, ch := range s.channels {
			if ch.delivered.Delivered(a) {
				fresh = append(fresh, a)
				break
			}
		}
	}
	s.announced.Record(alerting.Notification{Alerts: fresh}, alerts[0].Timestamp)
	if len(fresh) == 0 {
		s.logger.Debug().Msg("no new alerts delivered")
		return 0
	}
	s.metrics.ObserveNotified(fresh)
	return len(fresh)
}
