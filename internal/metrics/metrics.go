package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"market-anomaly-alerts/internal/anomaly"
)

const namespace = "anomalywatch"

// Recorder exposes detection run metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	feedAlerts  *prometheus.GaugeVec
	notified    *prometheus.CounterVec
	skippedRows prometheus.Gauge
	samples     prometheus.Gauge
	duration    prometheus.Histogram
	lastSuccess prometheus.Gauge
}

// NewRecorder registers all collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Detection runs by outcome",
		}, []string{"status"}),
		feedAlerts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_alerts",
			Help:      "Alerts in the last detected feed by rule",
		}, []string{"rule"}),
		notified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notified_alerts_total",
			Help:      "New alerts delivered to at least one channel by rule",
		}, []string{"rule"}),
		skippedRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "skipped_rows",
			Help:      "Rows excluded from the last evaluation because of row-level data errors",
		}),
		samples: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "merged_samples",
			Help:      "Samples in the last merged series",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of detection runs",
			Buckets:   prometheus.DefBuckets,
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		}),
	}

	r.registry.MustRegister(r.runs, r.feedAlerts, r.notified, r.skippedRows, r.samples, r.duration, r.lastSuccess)
	return r
}

// ObserveRun records a completed run; res may be nil when err is set.
func (r *Recorder) ObserveRun(started time.Time, res *anomaly.Result, err error) {
	if r == nil {
		return
	}
	r.duration.Observe(time.Since(started).Seconds())

	if err != nil {
		status := "error"
		if anomaly.IsDataError(err) {
			status = "data_error"
		}
		r.runs.WithLabelValues(status).Inc()
		return
	}

	r.runs.WithLabelValues("success").Inc()
	r.lastSuccess.SetToCurrentTime()
	if res == nil {
		return
	}
	r.samples.Set(float64(len(res.Series)))
	r.skippedRows.Set(float64(len(res.Skipped)))
	counts := map[anomaly.Rule]int{anomaly.RulePriceSpike: 0, anomaly.RuleVolumeSpike: 0}
	for _, a := range res.Alerts {
		counts[a.Rule]++
	}
	for rule, n := range counts {
		r.feedAlerts.WithLabelValues(rule.String()).Set(float64(n))
	}
}

// ObserveNotified counts alerts delivered for the first time.
func (r *Recorder) ObserveNotified(alerts []anomaly.Alert) {
	if r == nil {
		return
	}
	for _, a := range alerts {
		r.notified.WithLabelValues(a.Rule.String()).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
