package anomaly

import (
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

func mustPriceRule(t *testing.T, lookback int, threshold float64) *PriceSpikeRule {
	t.Helper()
	r, err := NewPriceSpikeRule(PriceSpikeParams{Lookback: lookback, ThresholdPct: decimal.NewFromFloat(threshold)})
	if err != nil {
		t.Fatalf("构造价格规则失败: %v", err)
	}
	return r
}

func mustVolumeRule(t *testing.T, window int, multiplier float64) *VolumeSpikeRule {
	t.Helper()
	r, err := NewVolumeSpikeRule(VolumeSpikeParams{Window: window, Multiplier: decimal.NewFromFloat(multiplier)})
	if err != nil {
		t.Fatalf("构造成交量规则失败: %v", err)
	}
	return r
}

func runRule(ev Evaluator, s []Sample) ([]EnrichedSample, []Flag, []error) {
	series := NewSeries(s)
	errs := ev.Enrich(series)
	return series, ev.Evaluate(series), errs
}

func TestPriceSpikeScenario(t *testing.T) {
	rule := mustPriceRule(t, 3, 2.0)
	series, flags, errs := runRule(rule, samples([]float64{100, 100, 100, 103}, constant(4, 1)))
	if len(errs) != 0 {
		t.Fatalf("不应有行级错误: %v", errs)
	}

	for i := 0; i < 3; i++ {
		if series[i].PricePctChange.Valid {
			t.Fatalf("第 %d 行历史不足, 不应有涨跌幅", i)
		}
	}
	if !series[3].PricePctChange.Decimal.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("期望涨幅 3%%, 实际 %s", series[3].PricePctChange.Decimal)
	}
	if got := flaggedIndexes(flags); !reflect.DeepEqual(got, []int{3}) {
		t.Fatalf("期望仅第 3 行触发, 实际 %v", got)
	}
	if flags[0].Rule != RulePriceSpike {
		t.Fatalf("规则标签错误: %s", flags[0].Rule)
	}
}

func TestPriceSpikeLookbackExclusion(t *testing.T) {
	// the first rows jump sharply but have no full look-back history
	rule := mustPriceRule(t, 3, 2.0)
	_, flags, _ := runRule(rule, samples([]float64{1, 50, 500, 500, 500, 500}, constant(6, 1)))
	for _, f := range flags {
		if f.Index < 3 {
			t.Fatalf("前 3 行不应触发, 实际触发第 %d 行", f.Index)
		}
	}
	if got := flaggedIndexes(flags); !reflect.DeepEqual(got, []int{3, 4}) {
		t.Fatalf("期望第 3、4 行触发, 实际 %v", got)
	}
}

func TestPriceSpikeThresholdStrict(t *testing.T) {
	rule := mustPriceRule(t, 3, 2.0)

	_, flags, _ := runRule(rule, samples([]float64{100, 100, 100, 102}, constant(4, 1)))
	if len(flags) != 0 {
		t.Fatalf("等于阈值不应触发: %v", flaggedIndexes(flags))
	}

	_, flags, _ = runRule(rule, samples([]float64{100, 100, 100, 103}, constant(4, 1)))
	if len(flags) != 1 {
		t.Fatalf("超过阈值应触发")
	}
}

func TestPriceSpikeThresholdExactBeyondDivisionPrecision(t *testing.T) {
	rule := mustPriceRule(t, 1, 2.0)
	series := NewSeries([]Sample{
		{Timestamp: at(0), Price: decimal.NewFromInt(3), Volume: decimal.NewFromInt(1)},
		{Timestamp: at(1), Price: decimal.RequireFromString("3.06000000000000001"), Volume: decimal.NewFromInt(1)},
	})
	if errs := rule.Enrich(series); len(errs) != 0 {
		t.Fatalf("不应有行级错误: %v", errs)
	}
	flags := rule.Evaluate(series)
	if !reflect.DeepEqual(flaggedIndexes(flags), []int{1}) {
		t.Fatalf("略高于阈值的涨幅应被标记, pct=%s flags=%v", series[1].PricePctChange.Decimal, flaggedIndexes(flags))
	}

	exact := NewSeries([]Sample{
		{Timestamp: at(0), Price: decimal.NewFromInt(3), Volume: decimal.NewFromInt(1)},
		{Timestamp: at(1), Price: decimal.RequireFromString("3.06"), Volume: decimal.NewFromInt(1)},
	})
	rule.Enrich(exact)
	if flags := rule.Evaluate(exact); len(flags) != 0 {
		t.Fatalf("恰好等于阈值不应标记: %v", flaggedIndexes(flags))
	}
}

func TestPriceSpikeNegativeBase(t *testing.T) {
	rule := mustPriceRule(t, 1, 2.0)
	series, flags, _ := runRule(rule, samples([]float64{-100, -103, -100, -99}, constant(4, 1)))
	// -100 -> -103 is +3%, -103 -> -100 is about -2.9%, -100 -> -99 is -1%
	if !series[1].PricePctChange.Valid || !series[1].PricePctChange.Decimal.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("负基数涨幅计算错误: %v", series[1].PricePctChange)
	}
	if !reflect.DeepEqual(flaggedIndexes(flags), []int{1}) {
		t.Fatalf("负基数标记错误: %v", flaggedIndexes(flags))
	}
}

func TestRuleParams(t *testing.T) {
	price := mustPriceRule(t, 4, 2.5)
	if p := price.Params(); p.Lookback != 4 || !p.ThresholdPct.Equal(decimal.NewFromFloat(2.5)) {
		t.Fatalf("价格规则参数错误: %+v", p)
	}
	volume := mustVolumeRule(t, 7, 1.5)
	if p := volume.Params(); p.Window != 7 || !p.Multiplier.Equal(decimal.NewFromFloat(1.5)) {
		t.Fatalf("成交量规则参数错误: %+v", p)
	}
}

func TestPriceSpikeIgnoresDrops(t *testing.T) {
	rule := mustPriceRule(t, 1, 2.0)
	_, flags, _ := runRule(rule, samples([]float64{100, 90, 80}, constant(3, 1)))
	if len(flags) != 0 {
		t.Fatalf("下跌不应触发: %v", flaggedIndexes(flags))
	}
}

func TestPriceSpikeZeroDenominatorSkipped(t *testing.T) {
	rule := mustPriceRule(t, 1, 2.0)
	series, flags, errs := runRule(rule, samples([]float64{0, 100, 150}, constant(3, 1)))

	if len(errs) != 1 {
		t.Fatalf("期望 1 个行级错误, 实际 %d", len(errs))
	}
	if !errors.Is(errs[0], ErrZeroDenominator) {
		t.Fatalf("应为 ErrZeroDenominator: %v", errs[0])
	}
	var de *DataError
	if !errors.As(errs[0], &de) || de.Index != 1 {
		t.Fatalf("错误应指向第 1 行: %v", errs[0])
	}
	if series[1].PricePctChange.Valid {
		t.Fatal("被跳过的行不应有涨跌幅")
	}
	if got := flaggedIndexes(flags); !reflect.DeepEqual(got, []int{2}) {
		t.Fatalf("期望仅第 2 行触发, 实际 %v", got)
	}
}

func TestVolumeSpikeScenario(t *testing.T) {
	rule := mustVolumeRule(t, 5, 1.5)
	series, flags, _ := runRule(rule, samples(constant(6, 1), []float64{10, 10, 10, 10, 10, 30}))

	for i := 0; i < 4; i++ {
		if series[i].VolumeRollingAvg.Valid {
			t.Fatalf("第 %d 行窗口未满, 不应有均值", i)
		}
	}
	if !series[4].VolumeRollingAvg.Decimal.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("第 4 行均值应为 10, 实际 %s", series[4].VolumeRollingAvg.Decimal)
	}
	if !series[5].VolumeRollingAvg.Decimal.Equal(decimal.NewFromInt(14)) {
		t.Fatalf("第 5 行均值应为 14, 实际 %s", series[5].VolumeRollingAvg.Decimal)
	}
	if !series[5].IsVolumeSpike {
		t.Fatal("第 5 行应标记为放量")
	}
	if got := flaggedIndexes(flags); !reflect.DeepEqual(got, []int{5}) {
		t.Fatalf("期望仅第 5 行触发, 实际 %v", got)
	}
}

func TestVolumeSpikeWindowExclusion(t *testing.T) {
	rule := mustVolumeRule(t, 5, 1.5)
	_, flags, _ := runRule(rule, samples(constant(8, 1), []float64{1, 100, 1000, 10000, 1, 1, 1, 1}))
	for _, f := range flags {
		if f.Index < 4 {
			t.Fatalf("窗口填满前不应触发, 实际触发第 %d 行", f.Index)
		}
	}
}

func TestVolumeSpikeThresholdStrict(t *testing.T) {
	rule := mustVolumeRule(t, 2, 1.5)
	// mean(10, 30) = 20, 1.5*20 = 30: equal, not flagged
	_, flags, _ := runRule(rule, samples(constant(2, 1), []float64{10, 30}))
	if len(flags) != 0 {
		t.Fatalf("等于阈值不应触发")
	}
	// mean(10, 31) = 20.5, 1.5*20.5 = 30.75 < 31
	_, flags, _ = runRule(rule, samples(constant(2, 1), []float64{10, 31}))
	if len(flags) != 1 {
		t.Fatalf("超过阈值应触发")
	}
}

func TestRuleParamValidation(t *testing.T) {
	if _, err := NewPriceSpikeRule(PriceSpikeParams{Lookback: 0, ThresholdPct: decimal.NewFromInt(1)}); err == nil {
		t.Fatal("lookback=0 应报错")
	}
	if _, err := NewPriceSpikeRule(PriceSpikeParams{Lookback: 3}); err == nil {
		t.Fatal("threshold=0 应报错")
	}
	if _, err := NewVolumeSpikeRule(VolumeSpikeParams{Window: 0, Multiplier: decimal.NewFromInt(1)}); err == nil {
		t.Fatal("window=0 应报错")
	}
	if _, err := NewVolumeSpikeRule(VolumeSpikeParams{Window: 5, Multiplier: decimal.NewFromInt(-1)}); err == nil {
		t.Fatal("multiplier<0 应报错")
	}
}
