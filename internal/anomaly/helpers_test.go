package anomaly

import (
	"time"

	"github.com/shopspring/decimal"
)

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func at(i int) time.Time {
	return t0.Add(time.Duration(i) * 5 * time.Minute)
}

func obs(values ...float64) []Observation {
	out := make([]Observation, len(values))
	for i, v := range values {
		out[i] = Observation{Timestamp: at(i), Value: decimal.NewFromFloat(v)}
	}
	return out
}

func samples(prices, volumes []float64) []Sample {
	out := make([]Sample, len(prices))
	for i := range prices {
		out[i] = Sample{Timestamp: at(i), Price: decimal.NewFromFloat(prices[i]), Volume: decimal.NewFromFloat(volumes[i])}
	}
	return out
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func flaggedIndexes(flags []Flag) []int {
	idx := make([]int, len(flags))
	for i, f := range flags {
		idx[i] = f.Index
	}
	return idx
}
