package alerting

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"market-anomaly-alerts/internal/anomaly"
)

// LogNotifier writes every alert as a structured log line.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier 构造日志告警器。
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

func (n *LogNotifier) Notify(ctx context.Context, note Notification) error {
	for _, a := range note.Alerts {
		n.logger.Warn().
			Str("asset", note.Asset).
			Str("rule", a.Rule.String()).
			Time("timestamp", a.Timestamp.UTC()).
			Str("price", a.Price.String()).
			Str("volume", a.Volume.String()).
			Msg("anomaly detected")
	}
	return nil
}

// Fanout delivers a notification to every wrapped notifier and joins failures.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type ledgerKey struct {
	ts   int64
	rule anomaly.Rule
}

// Ledger remembers which (timestamp, rule) alerts were already delivered so
// overlapping batches in the run loop are not re-sent.
type Ledger struct {
	sent map[ledgerKey]time.Time
}

// Fresh returns a copy of note holding only undelivered alerts.
func (l *Ledger) Fresh(note Notification) Notification {
	fresh := make([]anomaly.Alert, 0, len(note.Alerts))
	for _, a := range note.Alerts {
		if _, ok := l.sent[ledgerKey{ts: a.Timestamp.UnixNano(), rule: a.Rule}]; ok {
			continue
		}
		fresh = append(fresh, a)
	}
	note.Alerts = fresh
	return note
}

// Record marks the alerts of a delivered notification and forgets entries
// older than before, which can no longer show up in a batch.
func (l *Ledger) Record(note Notification, before time.Time) {
	if l.sent == nil {
		l.sent = make(map[ledgerKey]time.Time)
	}
	for _, a := range note.Alerts {
		l.sent[ledgerKey{ts: a.Timestamp.UnixNano(), rule: a.Rule}] = a.Timestamp
	}
	for key, ts := range l.sent {
		if ts.Before(before) {
			delete(l.sent, key)
		}
	}
}

// Delivered reports whether a was recorded.
func (l *Ledger) Delivered(a anomaly.Alert) bool {
	_, ok := l.sent[ledgerKey{ts: a.Timestamp.UnixNano(), rule: a.Rule}]
	return ok
}

// Len reports how many delivered alerts are remembered.
func (l *Ledger) Len() int { return len(l.sent) }

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = Fanout(nil)
)
