package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"market-anomaly-alerts/internal/alerting"
	"market-anomaly-alerts/internal/anomaly"
	"market-anomaly-alerts/internal/fetcher"
	"market-anomaly-alerts/internal/metrics"
)

var start = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

type staticFetcher struct {
	chart fetcher.MarketChart
	err   error
}

func (f *staticFetcher) FetchMarketChart(ctx context.Context) (fetcher.MarketChart, error) {
	return f.chart, f.err
}

type recordingNotifier struct {
	notes []alerting.Notification
	err   error
}

func (r *recordingNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	r.notes = append(r.notes, note)
	return r.err
}

func series(values ...float64) []anomaly.Observation {
	out := make([]anomaly.Observation, len(values))
	for i, v := range values {
		out[i] = anomaly.Observation{Timestamp: start.Add(time.Duration(i) * 5 * time.Minute), Value: decimal.NewFromFloat(v)}
	}
	return out
}

func spikyChart() fetcher.MarketChart {
	return fetcher.MarketChart{
		Asset:   "ethereum",
		Prices:  series(100, 100, 100, 100, 100, 103),
		Volumes: series(10, 10, 10, 10, 10, 30),
	}
}

func newEngine(t *testing.T) *anomaly.Engine {
	t.Helper()
	price, err := anomaly.NewPriceSpikeRule(anomaly.PriceSpikeParams{Lookback: 3, ThresholdPct: decimal.NewFromInt(2)})
	if err != nil {
		t.Fatal(err)
	}
	volume, err := anomaly.NewVolumeSpikeRule(anomaly.VolumeSpikeParams{Window: 5, Multiplier: decimal.RequireFromString("1.5")})
	if err != nil {
		t.Fatal(err)
	}
	eng, err := anomaly.NewEngine(zerolog.Nop(), price, volume)
	if err != nil {
		t.Fatal(err)
	}
	return eng
}

func TestDetectExportsAndNotifies(t *testing.T) {
	dir := t.TempDir()
	notifier := &recordingNotifier{}
	opts := Options{
		CSVPath:             filepath.Join(dir, "alerts.csv"),
		PNGPath:             filepath.Join(dir, "chart.png"),
		MaxAlertsPerMessage: 5,
	}
	svc := New(opts, nil, &staticFetcher{chart: spikyChart()}, newEngine(t), notifier, metrics.NewRecorder(), zerolog.Nop())

	report, err := svc.Detect(context.Background())
	if err != nil {
		t.Fatalf("检测不应报错: %v", err)
	}
	if len(report.Result.Alerts) != 2 {
		t.Fatalf("期望 2 条告警, 实际 %d", len(report.Result.Alerts))
	}
	if report.Notified != 2 || len(notifier.notes) != 1 {
		t.Fatalf("应发送一次包含 2 条告警的通知: notified=%d notes=%d", report.Notified, len(notifier.notes))
	}
	if notifier.notes[0].Asset != "ethereum" || notifier.notes[0].MaxListed != 5 {
		t.Fatalf("通知内容错误: %+v", notifier.notes[0])
	}

	for _, p := range []string{opts.CSVPath, opts.PNGPath} {
		if info, err := os.Stat(p); err != nil || info.Size() == 0 {
			t.Fatalf("%s 应已写出: %v", p, err)
		}
	}
}

func TestDetectDoesNotRenotify(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := New(Options{}, nil, &staticFetcher{chart: spikyChart()}, newEngine(t), notifier, nil, zerolog.Nop())

	if _, err := svc.Detect(context.Background()); err != nil {
		t.Fatal(err)
	}
	report, err := svc.Detect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Notified != 0 || len(notifier.notes) != 1 {
		t.Fatalf("相同告警不应重复发送: notified=%d notes=%d", report.Notified, len(notifier.notes))
	}
}

func TestDetectNotifyFailureRetriedNextRun(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("telegram down")}
	svc := New(Options{}, nil, &staticFetcher{chart: spikyChart()}, newEngine(t), notifier, nil, zerolog.Nop())

	report, err := svc.Detect(context.Background())
	if err != nil {
		t.Fatalf("通知失败不应中止检测: %v", err)
	}
	if report.Notified != 0 {
		t.Fatal("失败的通知不应计数")
	}

	notifier.err = nil
	report, err = svc.Detect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Notified != 2 {
		t.Fatalf("上次失败的告警应重新发送, 实际 %d", report.Notified)
	}
}

func TestDetectPerChannelDelivery(t *testing.T) {
	healthy := &recordingNotifier{}
	flaky := &recordingNotifier{err: errors.New("telegram down")}
	recorder := metrics.NewRecorder()
	svc := New(Options{}, nil, &staticFetcher{chart: spikyChart()}, newEngine(t), alerting.Fanout{healthy, flaky}, recorder, zerolog.Nop())

	report, err := svc.Detect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Notified != 2 || len(healthy.notes) != 1 || len(flaky.notes) != 1 {
		t.Fatalf("首轮: notified=%d healthy=%d flaky=%d", report.Notified, len(healthy.notes), len(flaky.notes))
	}

	flaky.err = nil
	report, err = svc.Detect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(healthy.notes) != 1 {
		t.Fatalf("已送达的通道不应重复发送, 实际 %d 次", len(healthy.notes))
	}
	if len(flaky.notes) != 2 || len(flaky.notes[1].Alerts) != 2 {
		t.Fatalf("失败的通道应在下一轮补发: %d", len(flaky.notes))
	}
	if report.Notified != 0 {
		t.Fatalf("补发不算新告警, 实际 %d", report.Notified)
	}
}

func TestDetectFetchError(t *testing.T) {
	boom := errors.New("boom")
	svc := New(Options{}, nil, &staticFetcher{err: boom}, newEngine(t), nil, metrics.NewRecorder(), zerolog.Nop())
	if _, err := svc.Detect(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("应返回抓取错误: %v", err)
	}
}

func TestDetectDataError(t *testing.T) {
	chart := spikyChart()
	chart.Volumes = nil
	svc := New(Options{}, nil, &staticFetcher{chart: chart}, newEngine(t), nil, nil, zerolog.Nop())

	_, err := svc.Detect(context.Background())
	if !anomaly.IsDataError(err) || !errors.Is(err, anomaly.ErrEmptySeries) {
		t.Fatalf("空成交量应返回 DataError: %v", err)
	}
}

func TestRunWithoutScheduler(t *testing.T) {
	svc := New(Options{}, nil, &staticFetcher{}, newEngine(t), nil, nil, zerolog.Nop())
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("未配置 scheduler 应报错")
	}
}
