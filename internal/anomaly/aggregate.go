package anomaly

import "sort"

type alertKey struct {
	ts   int64
	rule Rule
}

// Aggregate merges flag sets into the alert feed. Sets must be passed in
// evaluator registration order; on equal timestamps that order is kept.
// Duplicate (timestamp, rule) pairs keep their first occurrence.
func Aggregate(flagSets ...[]Flag) []Alert {
	total := 0
	for _, set := range flagSets {
		total += len(set)
	}

	alerts := make([]Alert, 0, total)
	for _, set := range flagSets {
		for _, f := range set {
			alerts = append(alerts, Alert{
				Timestamp: f.Sample.Timestamp,
				Price:     f.Sample.Price,
				Volume:    f.Sample.Volume,
				Rule:      f.Rule,
			})
		}
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Timestamp.Before(alerts[j].Timestamp)
	})

	seen := make(map[alertKey]struct{}, len(alerts))
	deduped := alerts[:0]
	for _, a := range alerts {
		key := alertKey{ts: a.Timestamp.UnixNano(), rule: a.Rule}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, a)
	}
	return deduped
}
