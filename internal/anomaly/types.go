package anomaly

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rule identifies the detector that produced a flag.
type Rule string

const (
	RulePriceSpike  Rule = "price_spike"
	RuleVolumeSpike Rule = "volume_spike"
)

func (r Rule) String() string { return string(r) }

// Observation is a single provider point for one series (price or volume).
type Observation struct {
	Timestamp time.Time
	Value     decimal.Decimal
}

// Sample is one merged time point.
type Sample struct {
	Timestamp time.Time
	Price     decimal.Decimal
	Volume    decimal.Decimal
}

// EnrichedSample carries the statistics derived by the evaluators.
// Invalid NullDecimal values mean "not enough history" or a skipped row.
type EnrichedSample struct {
	Sample
	PricePctChange   decimal.NullDecimal
	VolumeRollingAvg decimal.NullDecimal
	IsVolumeSpike    bool
}

// Flag marks one row matched by one rule.
type Flag struct {
	Index  int
	Sample Sample
	Rule   Rule
}

// Alert is the externally visible record of a flagged row.
type Alert struct {
	Timestamp time.Time
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Rule      Rule
}

// NewSeries wraps merged samples for enrichment.
func NewSeries(samples []Sample) []EnrichedSample {
	series := make([]EnrichedSample, len(samples))
	for i, s := range samples {
		series[i] = EnrichedSample{Sample: s}
	}
	return series
}
