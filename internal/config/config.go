package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"market-anomaly-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Market    MarketConfig    `mapstructure:"market"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Export    ExportConfig    `mapstructure:"export"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// MarketConfig selects and tunes the market-data provider.
type MarketConfig struct {
	Provider        string        `mapstructure:"provider"`
	SnapshotPath    string        `mapstructure:"snapshot_path"`
	BaseURL         string        `mapstructure:"base_url"`
	CoinID          string        `mapstructure:"coin_id"`
	VsCurrency      string        `mapstructure:"vs_currency"`
	Days            string        `mapstructure:"days"`
	APIKey          string        `mapstructure:"api_key"`
	UserAgent       string        `mapstructure:"user_agent"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	RequestsPerSec  float64       `mapstructure:"requests_per_sec"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MaxRetryElapsed time.Duration `mapstructure:"max_retry_elapsed"`
}

// RulesConfig holds the detector parameters.
type RulesConfig struct {
	PriceSpike  PriceSpikeConfig  `mapstructure:"price_spike"`
	VolumeSpike VolumeSpikeConfig `mapstructure:"volume_spike"`
}

// PriceSpikeConfig parameterises the look-back price change rule.
type PriceSpikeConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Lookback     int     `mapstructure:"lookback"`
	ThresholdPct float64 `mapstructure:"threshold_pct"`
}

// VolumeSpikeConfig parameterises the rolling volume rule.
type VolumeSpikeConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Window     int     `mapstructure:"window"`
	Multiplier float64 `mapstructure:"multiplier"`
}

// ExportConfig sets the default export targets.
type ExportConfig struct {
	CSVPath     string `mapstructure:"csv_path"`
	PNGPath     string `mapstructure:"png_path"`
	ChartTitle  string `mapstructure:"chart_title"`
	ChartWidth  int    `mapstructure:"chart_width"`
	ChartHeight int    `mapstructure:"chart_height"`
	MaxPoints   int    `mapstructure:"max_points"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled             bool           `mapstructure:"enabled"`
	MaxAlertsPerMessage int            `mapstructure:"max_alerts_per_message"`
	Channels            []string       `mapstructure:"channels"`
	Telegram            TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SchedulerConfig governs the run loop cadence.
type SchedulerConfig struct {
	Schedule   string `mapstructure:"schedule"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// MetricsConfig controls the Prometheus endpoint of the run loop.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
	Path       string `mapstructure:"path"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("ANOMALYWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDotEnv reads ./.env when present; existing variables win.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "anomalywatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("market.provider", "coingecko")
	v.SetDefault("market.snapshot_path", "")
	v.SetDefault("market.api_key", "")
	v.SetDefault("market.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("market.coin_id", "ethereum")
	v.SetDefault("market.vs_currency", "usd")
	v.SetDefault("market.days", "1")
	v.SetDefault("market.user_agent", "anomalywatch/1.0")
	v.SetDefault("market.request_timeout", "10s")
	v.SetDefault("market.requests_per_sec", 0.5)
	v.SetDefault("market.max_retries", 3)
	v.SetDefault("market.max_retry_elapsed", "30s")

	v.SetDefault("rules.price_spike.enabled", true)
	v.SetDefault("rules.price_spike.lookback", 3)
	v.SetDefault("rules.price_spike.threshold_pct", 2.0)
	v.SetDefault("rules.volume_spike.enabled", true)
	v.SetDefault("rules.volume_spike.window", 5)
	v.SetDefault("rules.volume_spike.multiplier", 1.5)

	v.SetDefault("export.csv_path", "eth_alerts.csv")
	v.SetDefault("export.png_path", "eth_alerts.png")
	v.SetDefault("export.chart_title", "ETH Price Anomalies Detected")
	v.SetDefault("export.chart_width", 1400)
	v.SetDefault("export.chart_height", 600)
	v.SetDefault("export.max_points", 2000)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.max_alerts_per_message", 10)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("scheduler.schedule", "@every 5m")
	v.SetDefault("scheduler.run_on_start", true)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9464")
	v.SetDefault("metrics.path", "/metrics")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Market.Provider {
	case "coingecko":
		if c.Market.CoinID == "" {
			return fmt.Errorf("market.coin_id must be configured")
		}
	case "snapshot":
		if c.Market.SnapshotPath == "" {
			return fmt.Errorf("market.snapshot_path must be configured for the snapshot provider")
		}
	default:
		return fmt.Errorf("market.provider %q is not supported", c.Market.Provider)
	}

	if !c.Rules.PriceSpike.Enabled && !c.Rules.VolumeSpike.Enabled {
		return fmt.Errorf("at least one of rules.price_spike or rules.volume_spike must be enabled")
	}
	if c.Rules.PriceSpike.Enabled {
		if c.Rules.PriceSpike.Lookback < 1 {
			return fmt.Errorf("rules.price_spike.lookback must be at least 1")
		}
		if c.Rules.PriceSpike.ThresholdPct <= 0 {
			return fmt.Errorf("rules.price_spike.threshold_pct must be greater than zero")
		}
	}
	if c.Rules.VolumeSpike.Enabled {
		if c.Rules.VolumeSpike.Window < 1 {
			return fmt.Errorf("rules.volume_spike.window must be at least 1")
		}
		if c.Rules.VolumeSpike.Multiplier <= 0 {
			return fmt.Errorf("rules.volume_spike.multiplier must be greater than zero")
		}
	}

	if c.Export.ChartWidth <= 0 || c.Export.ChartHeight <= 0 {
		return fmt.Errorf("export.chart_width and export.chart_height must be greater than zero")
	}
	if c.Export.MaxPoints <= 1 {
		return fmt.Errorf("export.max_points must be greater than one")
	}
	if c.Alerting.MaxAlertsPerMessage <= 0 {
		return fmt.Errorf("alerting.max_alerts_per_message must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if strings.TrimSpace(c.Scheduler.Schedule) == "" {
		return fmt.Errorf("scheduler.schedule must be configured")
	}
	return nil
}

// ResolveExportPath returns either the CLI override or the config default.
func ResolveExportPath(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxPoints
}
