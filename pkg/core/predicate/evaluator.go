// Package predicate combines the two external eligibility gates, elapsed
// time and price ceiling, into a single executability decision.
package predicate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wattlink/wattlink/pkg/oracle"
	"github.com/wattlink/wattlink/pkg/util"
)

// Result is the outcome of one evaluation pass. Recomputed every pass, never
// persisted. Both sub-gates are exposed alongside the combined value for
// observability.
type Result struct {
	TimeMet    bool `json:"timeConditionMet"`
	PriceMet   bool `json:"priceConditionMet"`
	CanExecute bool `json:"canExecute"` // TimeMet AND PriceMet

	LastExecution int64 `json:"lastExecutionTime"` // Unix ms, 0 = never executed
	NextEligible  int64 `json:"nextExecutionTime"` // Unix ms, 0 when never executed
	MinIntervalMS int64 `json:"minIntervalMs"`

	Price      int64 `json:"currentPrice"` // 8-decimal fixed point
	ObservedAt int64 `json:"observedAt"`   // Unix ms
}

// Evaluator queries the oracle/time-lock provider and derives gate state.
// Read-only: it never mutates anything.
type Evaluator struct {
	Provider oracle.Provider
	Clock    util.Clock
	// Timeout bounds the whole evaluation; a slow provider resolves to
	// ErrUnavailable instead of hanging the resolver pass.
	Timeout time.Duration
}

func NewEvaluator(p oracle.Provider, clock util.Clock, timeout time.Duration) *Evaluator {
	return &Evaluator{Provider: p, Clock: clock, Timeout: timeout}
}

// Evaluate computes the current predicate state for a series.
//
// Time gate: eligible when now - lastExecution >= minimumInterval, or
// unconditionally when the series has never executed.
// Price gate: eligible when ceiling is zero (unset) or observed price <= ceiling.
//
// Any provider failure returns a wrapped oracle.ErrUnavailable; it must never
// be read as eligibility.
func (e *Evaluator) Evaluate(ctx context.Context, seriesID, ref string, ceiling int64) (Result, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	lastExec, err := e.Provider.LastExecutionTime(ctx, seriesID)
	if err != nil {
		return Result{}, fmt.Errorf("last execution time for %s: %w", seriesID, wrapUnavailable(err))
	}

	interval, err := e.Provider.MinimumInterval(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("minimum interval: %w", wrapUnavailable(err))
	}

	price, observedAt, err := e.Provider.CurrentPrice(ctx, ref)
	if err != nil {
		return Result{}, fmt.Errorf("current price for %s: %w", ref, wrapUnavailable(err))
	}

	now := e.Clock.Now().UnixMilli()

	res := Result{
		LastExecution: lastExec,
		MinIntervalMS: interval.Milliseconds(),
		Price:         price,
		ObservedAt:    observedAt,
	}
	if lastExec > 0 {
		res.NextEligible = lastExec + interval.Milliseconds()
	}

	res.TimeMet = lastExec == 0 || now-lastExec >= interval.Milliseconds()
	res.PriceMet = ceiling == 0 || price <= ceiling
	res.CanExecute = res.TimeMet && res.PriceMet

	return res, nil
}

// wrapUnavailable folds every provider failure, timeouts included, into the
// unavailable taxonomy so callers only ever check oracle.ErrUnavailable.
func wrapUnavailable(err error) error {
	if errors.Is(err, oracle.ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", oracle.ErrUnavailable, err)
}
