package fetcher

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"market-anomaly-alerts/internal/anomaly"
)

// marketChartPayload mirrors the CoinGecko market_chart body; snapshot files
// use the same shape.
type marketChartPayload struct {
	Prices       [][]json.Number `json:"prices"`
	MarketCaps   [][]json.Number `json:"market_caps,omitempty"`
	TotalVolumes [][]json.Number `json:"total_volumes"`
}

func decodeMarketChart(asset string, body []byte) (MarketChart, error) {
	var payload marketChartPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return MarketChart{}, fmt.Errorf("decode market chart: %w", err)
	}

	prices, err := toObservations("prices", payload.Prices)
	if err != nil {
		return MarketChart{}, err
	}
	volumes, err := toObservations("total_volumes", payload.TotalVolumes)
	if err != nil {
		return MarketChart{}, err
	}

	return MarketChart{Asset: asset, Prices: prices, Volumes: volumes}, nil
}

func toObservations(field string, points [][]json.Number) ([]anomaly.Observation, error) {
	out := make([]anomaly.Observation, 0, len(points))
	for i, point := range points {
		if len(point) != 2 {
			return nil, fmt.Errorf("%s[%d]: expected [timestamp, value], got %d elements", field, i, len(point))
		}
		ms, err := decimal.NewFromString(point[0].String())
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: parse timestamp: %w", field, i, err)
		}
		value, err := decimal.NewFromString(point[1].String())
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: parse value: %w", field, i, err)
		}
		out = append(out, anomaly.Observation{
			Timestamp: time.UnixMilli(ms.IntPart()).UTC(),
			Value:     value,
		})
	}
	return out, nil
}
