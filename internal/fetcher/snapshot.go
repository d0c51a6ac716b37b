package fetcher

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// Snapshot replays a market chart saved on disk.
type Snapshot struct {
	path   string
	asset  string
	logger zerolog.Logger
}

// NewSnapshot builds a file-backed fetcher.
func NewSnapshot(path, asset string, logger zerolog.Logger) *Snapshot {
	return &Snapshot{path: path, asset: asset, logger: logger.With().Str("component", "snapshot_fetcher").Logger()}
}

// FetchMarketChart reads and decodes the snapshot file.
func (s *Snapshot) FetchMarketChart(ctx context.Context) (MarketChart, error) {
	if s.path == "" {
		return MarketChart{}, errors.New("snapshot path not configured")
	}
	if err := ctx.Err(); err != nil {
		return MarketChart{}, err
	}

	body, err := os.ReadFile(s.path)
	if err != nil {
		return MarketChart{}, fmt.Errorf("read snapshot: %w", err)
	}

	chart, err := decodeMarketChart(s.asset, body)
	if err != nil {
		return MarketChart{}, fmt.Errorf("snapshot %s: %w", s.path, err)
	}
	s.logger.Debug().Str("path", s.path).Int("prices", len(chart.Prices)).Msg("snapshot loaded")
	return chart, nil
}

var _ MarketChartFetcher = (*Snapshot)(nil)
