package anomaly

import (
	"fmt"
	"sort"
)

// Merge inner-joins price and volume observations on timestamp and returns the
// samples in ascending time order.
func Merge(prices, volumes []Observation) ([]Sample, error) {
	if len(prices) == 0 {
		return nil, seriesError("merge prices", ErrEmptySeries)
	}
	if len(volumes) == 0 {
		return nil, seriesError("merge volumes", ErrEmptySeries)
	}

	volumeByTS, err := indexObservations("merge volumes", volumes)
	if err != nil {
		return nil, err
	}
	if _, err := indexObservations("merge prices", prices); err != nil {
		return nil, err
	}

	samples := make([]Sample, 0, len(prices))
	for _, p := range prices {
		v, ok := volumeByTS[p.Timestamp.UnixNano()]
		if !ok {
			continue
		}
		samples = append(samples, Sample{
			Timestamp: p.Timestamp,
			Price:     p.Value,
			Volume:    v.Value,
		})
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
	return samples, nil
}

func indexObservations(op string, obs []Observation) (map[int64]Observation, error) {
	index := make(map[int64]Observation, len(obs))
	for i, o := range obs {
		key := o.Timestamp.UnixNano()
		if _, dup := index[key]; dup {
			return nil, &DataError{
				Op:        op,
				Index:     i,
				Timestamp: o.Timestamp,
				Err:       fmt.Errorf("%w: %d ms", ErrDuplicateTimestamp, o.Timestamp.UnixMilli()),
			}
		}
		index[key] = o
	}
	return index, nil
}
