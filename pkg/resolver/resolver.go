// Package resolver runs the polling loop that settles eligible orders. Each
// pass sweeps every outstanding series, evaluates the gates for its ACTIVE
// member, and fills the ones whose predicates hold. Nothing fires between
// passes: eligibility reached mid-interval waits for the next tick.
package resolver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wattlink/wattlink/pkg/core/order"
	"github.com/wattlink/wattlink/pkg/core/predicate"
	"github.com/wattlink/wattlink/pkg/oracle"
	"github.com/wattlink/wattlink/pkg/report"
	"github.com/wattlink/wattlink/pkg/series"
	"github.com/wattlink/wattlink/pkg/util"
)

// Recorder is the write side of the time-lock: after a fill the resolver
// records the execution so the next time-gate evaluation sees it.
type Recorder interface {
	RecordExecution(seriesID string, ts int64)
}

// Resolver owns the poll loop. One pass at a time; series within a pass are
// evaluated concurrently but each fill resolves through the series manager's
// compare-and-set guard, so a duplicate pass or a racing cancel loses cleanly.
type Resolver struct {
	Series   *series.Manager
	Eval     *predicate.Evaluator
	Reporter *report.Reporter
	Recorder Recorder
	Clock    util.Clock
	Interval time.Duration

	log            *zap.SugaredLogger
	oracleFailures atomic.Uint64

	// Fills whose report failed, redelivered at the start of each pass. The
	// fill itself is durable; only the fan-out (credit, journal, snapshot)
	// is outstanding.
	retryMu sync.Mutex
	retries []report.Fill
}

func NewResolver(mgr *series.Manager, eval *predicate.Evaluator, rep *report.Reporter, rec Recorder, clock util.Clock, interval time.Duration, log *zap.SugaredLogger) *Resolver {
	return &Resolver{
		Series:   mgr,
		Eval:     eval,
		Reporter: rep,
		Recorder: rec,
		Clock:    clock,
		Interval: interval,
		log:      log,
	}
}

// Run polls until the context is cancelled.
func (r *Resolver) Run(ctx context.Context) {
	r.log.Infow("resolver_started", "interval", r.Interval)
	for {
		select {
		case <-ctx.Done():
			r.log.Infow("resolver_stopped")
			return
		case <-r.Clock.After(r.Interval):
			r.RunPass(ctx)
		}
	}
}

// RunPass sweeps every outstanding series once. Oracle unavailability skips
// the affected series without mutating anything; the next pass retries.
func (r *Resolver) RunPass(ctx context.Context) {
	r.redeliverFailedReports()

	ids, err := r.Series.Outstanding()
	if err != nil {
		r.log.Errorw("outstanding_scan_failed", "err", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(seriesID string) {
			defer wg.Done()
			r.resolveSeries(ctx, seriesID)
		}(id)
	}
	wg.Wait()
}

// OracleFailures returns the number of evaluations skipped because the
// provider was unreachable.
func (r *Resolver) OracleFailures() uint64 {
	return r.oracleFailures.Load()
}

func (r *Resolver) resolveSeries(ctx context.Context, seriesID string) {
	active, ok := r.Series.ActiveMember(seriesID)
	if !ok {
		return
	}

	s, err := r.Series.Series(seriesID)
	if err != nil {
		r.log.Errorw("series_lookup_failed", "series_id", seriesID, "err", err)
		return
	}

	res, err := r.Eval.Evaluate(ctx, seriesID, s.OracleRef, active.PriceCeiling)
	if err != nil {
		if errors.Is(err, oracle.ErrUnavailable) {
			r.oracleFailures.Add(1)
			r.log.Warnw("oracle_unavailable", "series_id", seriesID, "err", err)
			return
		}
		r.log.Errorw("evaluate_failed", "series_id", seriesID, "err", err)
		return
	}
	if !res.CanExecute {
		return
	}

	filled, err := r.Series.Fill(active.ID)
	if err != nil {
		if errors.Is(err, order.ErrIllegalTransition) {
			// Lost the race to a concurrent cancel or duplicate pass.
			r.log.Infow("fill_race_lost", "order_id", active.ID)
			return
		}
		r.log.Errorw("fill_failed", "order_id", active.ID, "err", err)
		return
	}

	r.Recorder.RecordExecution(seriesID, filled.ExecutedAt)

	fill := report.Fill{
		Order:    filled,
		Owner:    s.Owner,
		Price:    res.Price,
		FilledAt: filled.ExecutedAt,
	}
	if err := r.Reporter.Report(fill); err != nil && !errors.Is(err, order.ErrDuplicateReport) {
		r.log.Errorw("report_failed", "order_id", filled.ID, "err", err)
		r.queueRetry(fill)
	}
}

func (r *Resolver) queueRetry(fill report.Fill) {
	r.retryMu.Lock()
	r.retries = append(r.retries, fill)
	r.retryMu.Unlock()
}

// redeliverFailedReports replays queued fills through the reporter. Still
// failing fills go back on the queue for the pass after.
func (r *Resolver) redeliverFailedReports() {
	r.retryMu.Lock()
	pending := r.retries
	r.retries = nil
	r.retryMu.Unlock()

	for _, fill := range pending {
		if err := r.Reporter.Report(fill); err != nil && !errors.Is(err, order.ErrDuplicateReport) {
			r.log.Errorw("report_retry_failed", "order_id", fill.Order.ID, "err", err)
			r.queueRetry(fill)
		}
	}
}
