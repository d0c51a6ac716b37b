package app

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"market-anomaly-alerts/internal/alerting"
	"market-anomaly-alerts/internal/anomaly"
	"market-anomaly-alerts/internal/config"
	"market-anomaly-alerts/internal/export"
	"market-anomaly-alerts/internal/fetcher"
	"market-anomaly-alerts/internal/service"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Stdout io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		Stdout: os.Stdout,
	}
}

// newFetcher prefers an explicit snapshot file over the configured provider.
func (a *App) newFetcher(inputPath string) fetcher.MarketChartFetcher {
	market := a.Config.Market
	if inputPath != "" {
		return fetcher.NewSnapshot(inputPath, market.CoinID, a.Logger)
	}
	if market.Provider == "snapshot" {
		return fetcher.NewSnapshot(market.SnapshotPath, market.CoinID, a.Logger)
	}

	return fetcher.NewCoinGecko(fetcher.CoinGeckoOptions{
		BaseURL:         market.BaseURL,
		CoinID:          market.CoinID,
		VsCurrency:      market.VsCurrency,
		Days:            market.Days,
		APIKey:          market.APIKey,
		UserAgent:       market.UserAgent,
		Timeout:         market.RequestTimeout,
		RequestsPerSec:  market.RequestsPerSec,
		MaxRetries:      market.MaxRetries,
		MaxRetryElapsed: market.MaxRetryElapsed,
	}, a.Logger)
}

func (a *App) newEngine() (*anomaly.Engine, error) {
	rules := a.Config.Rules
	var evaluators []anomaly.Evaluator

	if rules.PriceSpike.Enabled {
		rule, err := anomaly.NewPriceSpikeRule(anomaly.PriceSpikeParams{
			Lookback:     rules.PriceSpike.Lookback,
			ThresholdPct: decimal.NewFromFloat(rules.PriceSpike.ThresholdPct),
		})
		if err != nil {
			return nil, err
		}
		params := rule.Params()
		a.Logger.Info().
			Int("lookback", params.Lookback).
			Str("threshold_pct", params.ThresholdPct.String()).
			Msg("price_spike rule enabled")
		evaluators = append(evaluators, rule)
	}

	if rules.VolumeSpike.Enabled {
		rule, err := anomaly.NewVolumeSpikeRule(anomaly.VolumeSpikeParams{
			Window:     rules.VolumeSpike.Window,
			Multiplier: decimal.NewFromFloat(rules.VolumeSpike.Multiplier),
		})
		if err != nil {
			return nil, err
		}
		params := rule.Params()
		a.Logger.Info().
			Int("window", params.Window).
			Str("multiplier", params.Multiplier.String()).
			Msg("volume_spike rule enabled")
		evaluators = append(evaluators, rule)
	}

	return anomaly.NewEngine(a.Logger, evaluators...)
}

// newNotifier returns nil when alerting is off. force turns it on for a
// single run and falls back to the log channel when nothing else is usable.
func (a *App) newNotifier(force bool) alerting.Notifier {
	cfg := a.Config.Alerting
	if !cfg.Enabled && !force {
		return nil
	}

	var fanout alerting.Fanout
	for _, channel := range cfg.Channels {
		switch strings.ToLower(strings.TrimSpace(channel)) {
		case "telegram":
			if !cfg.Telegram.Enabled {
				a.Logger.Warn().Msg("telegram channel listed but alerting.telegram.enabled is false")
				continue
			}
			tg := cfg.Telegram
			fanout = append(fanout, alerting.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, tg.Timeout, a.Logger))
		case "log":
			fanout = append(fanout, alerting.NewLogNotifier(a.Logger))
		case "":
		default:
			a.Logger.Warn().Str("channel", channel).Msg("unknown alert channel ignored")
		}
	}

	if len(fanout) == 0 {
		if !force {
			a.Logger.Warn().Msg("alerting enabled but no usable channel configured")
			return nil
		}
		fanout = append(fanout, alerting.NewLogNotifier(a.Logger))
	}
	return fanout
}

func (a *App) serviceOptions(csvPath, pngPath string, maxPoints int) service.Options {
	exp := a.Config.Export
	return service.Options{
		CSVPath: config.ResolveExportPath(csvPath, exp.CSVPath),
		PNGPath: config.ResolveExportPath(pngPath, exp.PNGPath),
		Chart: export.ChartOptions{
			Title:     exp.ChartTitle,
			Width:     exp.ChartWidth,
			Height:    exp.ChartHeight,
			MaxPoints: a.Config.ResolveMaxPoints(maxPoints),
		},
		MaxAlertsPerMessage: a.Config.Alerting.MaxAlertsPerMessage,
		Channels:            a.Config.Alerting.Channels,
	}
}
