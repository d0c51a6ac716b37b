package fetcher

import (
	"context"

	"market-anomaly-alerts/internal/anomaly"
)

// MarketChart is one fetched batch of price and volume observations.
type MarketChart struct {
	Asset   string
	Prices  []anomaly.Observation
	Volumes []anomaly.Observation
}

// MarketChartFetcher retrieves the price/volume history of the configured asset.
type MarketChartFetcher interface {
	FetchMarketChart(ctx context.Context) (MarketChart, error)
}
