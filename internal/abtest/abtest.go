// Package abtest tracks subject-line experiments per (tier, step) and
// evaluates them with a fixed-threshold heuristic.
package abtest

import (
	"context"
	"errors"
	"math"

	"github.com/rotisserie/eris"

	"github.com/risksure/outreach-cli/internal/model"
	"github.com/risksure/outreach-cli/internal/store"
	"github.com/risksure/outreach-cli/internal/template"
)

// Evaluation thresholds. Both must hold before a winner is called: enough
// combined sends and an open-rate gap too wide for noise.
const (
	MinSampleSize    = 100
	MinRateGapPoints = 5.0
)

// Outcome is an evaluated experiment. Winner is empty until the result is
// significant.
type Outcome struct {
	model.ABTestResult

	TotalSent   int           `json:"total_sent"`
	OpenRateA   float64       `json:"open_rate_a"`
	OpenRateB   float64       `json:"open_rate_b"`
	Winner      model.Variant `json:"winner,omitempty"`
	Significant bool          `json:"significant"`
}

// Aggregator records experiment events and reads back evaluated results.
type Aggregator struct {
	store store.Store
}

func New(s store.Store) *Aggregator {
	return &Aggregator{store: s}
}

// Record counts one event against a variant's side of the (tier, step)
// experiment, creating the experiment on first touch.
func (a *Aggregator) Record(ctx context.Context, tier model.Tier, step int, variant model.Variant, event model.ABEventType) error {
	subjectA, subjectB, err := template.SubjectTemplates(step)
	if err != nil {
		return err
	}
	if err := a.store.RecordABEvent(ctx, tier, step, variant, event, subjectA, subjectB); err != nil {
		return eris.Wrap(err, "abtest: record event")
	}
	return nil
}

// Result evaluates a single experiment. Returns store.ErrNotFound when no
// events have been recorded for the combination yet.
func (a *Aggregator) Result(ctx context.Context, tier model.Tier, step int) (*Outcome, error) {
	result, err := a.store.GetABTest(ctx, model.ABTestName(tier, step))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, eris.Wrap(err, "abtest: get result")
	}
	outcome := Evaluate(*result)
	return &outcome, nil
}

// Results evaluates every experiment with recorded events.
func (a *Aggregator) Results(ctx context.Context) ([]Outcome, error) {
	results, err := a.store.ListABTests(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "abtest: list results")
	}
	outcomes := make([]Outcome, 0, len(results))
	for _, r := range results {
		outcomes = append(outcomes, Evaluate(r))
	}
	return outcomes, nil
}

// Evaluate applies the winner heuristic to raw counters. A lopsided rate on
// a tiny sample stays inconclusive until the send count clears the floor.
func Evaluate(r model.ABTestResult) Outcome {
	o := Outcome{
		ABTestResult: r,
		TotalSent:    r.VariantA.Sent + r.VariantB.Sent,
		OpenRateA:    r.VariantA.OpenRate(),
		OpenRateB:    r.VariantB.OpenRate(),
	}
	if o.TotalSent < MinSampleSize {
		return o
	}
	if math.Abs(o.OpenRateA-o.OpenRateB) <= MinRateGapPoints {
		return o
	}
	o.Significant = true
	if o.OpenRateA > o.OpenRateB {
		o.Winner = model.VariantA
	} else {
		o.Winner = model.VariantB
	}
	return o
}
