package anomaly

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Result is the outcome of one detection run.
type Result struct {
	Series  []EnrichedSample
	Alerts  []Alert
	Flags   map[Rule]int
	Skipped []error
}

// Engine runs the registered evaluators over a merged series.
type Engine struct {
	evaluators []Evaluator
	logger     zerolog.Logger
}

// NewEngine registers evaluators; their order decides tie-breaks in the feed.
func NewEngine(logger zerolog.Logger, evaluators ...Evaluator) (*Engine, error) {
	if len(evaluators) == 0 {
		return nil, errors.New("at least one rule must be enabled")
	}
	seen := make(map[Rule]struct{}, len(evaluators))
	for _, ev := range evaluators {
		if ev == nil {
			return nil, errors.New("nil evaluator")
		}
		if _, dup := seen[ev.Rule()]; dup {
			return nil, fmt.Errorf("rule %s registered twice", ev.Rule())
		}
		seen[ev.Rule()] = struct{}{}
	}
	return &Engine{
		evaluators: evaluators,
		logger:     logger.With().Str("component", "anomaly_engine").Logger(),
	}, nil
}

// Rules lists the registered rules in registration order.
func (e *Engine) Rules() []Rule {
	rules := make([]Rule, len(e.evaluators))
	for i, ev := range e.evaluators {
		rules[i] = ev.Rule()
	}
	return rules
}

// Run merges the observations and produces the alert feed. Series-level
// DataErrors abort the run; row-level ones are reported in Result.Skipped.
func (e *Engine) Run(prices, volumes []Observation) (*Result, error) {
	samples, err := Merge(prices, volumes)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		e.logger.Warn().Int("prices", len(prices)).Int("volumes", len(volumes)).Msg("price and volume series share no timestamp")
	}

	return e.Evaluate(samples), nil
}

// Evaluate runs every rule over already merged samples.
func (e *Engine) Evaluate(samples []Sample) *Result {
	series := NewSeries(samples)
	res := &Result{Series: series, Flags: make(map[Rule]int, len(e.evaluators))}

	flagSets := make([][]Flag, 0, len(e.evaluators))
	for _, ev := range e.evaluators {
		for _, rowErr := range ev.Enrich(series) {
			e.logger.Warn().Err(rowErr).Str("rule", ev.Rule().String()).Msg("row skipped")
			res.Skipped = append(res.Skipped, rowErr)
		}
		flags := ev.Evaluate(series)
		res.Flags[ev.Rule()] = len(flags)
		flagSets = append(flagSets, flags)
	}

	res.Alerts = Aggregate(flagSets...)
	e.logger.Debug().
		Int("samples", len(series)).
		Int("alerts", len(res.Alerts)).
		Int("skipped", len(res.Skipped)).
		Msg("evaluation complete")
	return res
}
