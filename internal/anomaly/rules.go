package anomaly

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Evaluator annotates the series with its statistics and flags matching rows.
type Evaluator interface {
	Rule() Rule
	// Enrich writes derived fields in place and returns row-level DataErrors
	// for rows it had to skip.
	Enrich(series []EnrichedSample) []error
	// Evaluate returns the flagged rows in series order.
	Evaluate(series []EnrichedSample) []Flag
}

// PriceSpikeParams configure the relative price change rule.
type PriceSpikeParams struct {
	Lookback     int
	ThresholdPct decimal.Decimal
}

// PriceSpikeRule flags rows whose price rose more than ThresholdPct percent
// against the row Lookback positions earlier.
type PriceSpikeRule struct {
	params PriceSpikeParams
}

// NewPriceSpikeRule validates params and builds the rule.
func NewPriceSpikeRule(params PriceSpikeParams) (*PriceSpikeRule, error) {
	if params.Lookback < 1 {
		return nil, fmt.Errorf("price spike lookback must be at least 1, got %d", params.Lookback)
	}
	if !params.ThresholdPct.IsPositive() {
		return nil, errors.New("price spike threshold_pct must be greater than zero")
	}
	return &PriceSpikeRule{params: params}, nil
}

func (r *PriceSpikeRule) Rule() Rule { return RulePriceSpike }

// Params returns the configured parameters.
func (r *PriceSpikeRule) Params() PriceSpikeParams { return r.params }

func (r *PriceSpikeRule) Enrich(series []EnrichedSample) []error {
	var rowErrs []error
	for i := range series {
		series[i].PricePctChange = decimal.NullDecimal{}
		if i < r.params.Lookback {
			continue
		}
		base := series[i-r.params.Lookback].Price
		if base.IsZero() {
			rowErrs = append(rowErrs, &DataError{
				Op:        "price pct change",
				Index:     i,
				Timestamp: series[i].Timestamp,
				Err:       ErrZeroDenominator,
			})
			continue
		}
		pct := series[i].Price.Sub(base).Div(base).Mul(hundred)
		series[i].PricePctChange = decimal.NullDecimal{Decimal: pct, Valid: true}
	}
	return rowErrs
}

func (r *PriceSpikeRule) Evaluate(series []EnrichedSample) []Flag {
	var flags []Flag
	for i, s := range series {
		if !s.PricePctChange.Valid {
			continue
		}
		if r.exceeds(s.Price, series[i-r.params.Lookback].Price) {
			flags = append(flags, Flag{Index: i, Sample: s.Sample, Rule: RulePriceSpike})
		}
	}
	return flags
}

// exceeds decides (price-base)/base*100 > threshold without dividing, so the
// rounded PricePctChange never decides a row at the boundary.
func (r *PriceSpikeRule) exceeds(price, base decimal.Decimal) bool {
	lhs := price.Sub(base).Mul(hundred)
	rhs := r.params.ThresholdPct.Mul(base)
	if base.IsNegative() {
		return lhs.LessThan(rhs)
	}
	return lhs.GreaterThan(rhs)
}

// VolumeSpikeParams configure the rolling volume rule.
type VolumeSpikeParams struct {
	Window     int
	Multiplier decimal.Decimal
}

// VolumeSpikeRule flags rows whose volume exceeds Multiplier times the mean
// volume of the trailing Window rows, current row included.
type VolumeSpikeRule struct {
	params VolumeSpikeParams
}

// NewVolumeSpikeRule validates params and builds the rule.
func NewVolumeSpikeRule(params VolumeSpikeParams) (*VolumeSpikeRule, error) {
	if params.Window < 1 {
		return nil, fmt.Errorf("volume spike window must be at least 1, got %d", params.Window)
	}
	if !params.Multiplier.IsPositive() {
		return nil, errors.New("volume spike multiplier must be greater than zero")
	}
	return &VolumeSpikeRule{params: params}, nil
}

func (r *VolumeSpikeRule) Rule() Rule { return RuleVolumeSpike }

// Params returns the configured parameters.
func (r *VolumeSpikeRule) Params() VolumeSpikeParams { return r.params }

func (r *VolumeSpikeRule) Enrich(series []EnrichedSample) []error {
	window := newRollingSum(r.params.Window)
	size := decimal.NewFromInt(int64(window.size()))
	for i := range series {
		series[i].VolumeRollingAvg = decimal.NullDecimal{}
		series[i].IsVolumeSpike = false
		if !window.push(series[i].Volume) {
			continue
		}
		sum := window.total()
		series[i].VolumeRollingAvg = decimal.NullDecimal{Decimal: sum.Div(size), Valid: true}
		// volume > m*sum/W  <=>  volume*W > m*sum, kept exact.
		series[i].IsVolumeSpike = series[i].Volume.Mul(size).GreaterThan(r.params.Multiplier.Mul(sum))
	}
	return nil
}

func (r *VolumeSpikeRule) Evaluate(series []EnrichedSample) []Flag {
	var flags []Flag
	for i, s := range series {
		if s.VolumeRollingAvg.Valid && s.IsVolumeSpike {
			flags = append(flags, Flag{Index: i, Sample: s.Sample, Rule: RuleVolumeSpike})
		}
	}
	return flags
}

var (
	_ Evaluator = (*PriceSpikeRule)(nil)
	_ Evaluator = (*VolumeSpikeRule)(nil)
)
