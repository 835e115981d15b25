// Package oracle defines the external predicate providers: a price feed and a
// per-series time lock. Both are read-only and may be temporarily unreachable.
package oracle

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks a provider that could not answer (unreachable, timed
// out, or stale). Callers treat it as "not eligible, retry later", never as
// eligible, and never as fatal.
var ErrUnavailable = errors.New("oracle unavailable")

// Provider is the read side of the external oracle/time-lock contracts.
type Provider interface {
	// CurrentPrice returns the latest observed price for the feed reference,
	// in 8-decimal fixed point (Chainlink convention), and when it was observed
	// (Unix milliseconds).
	CurrentPrice(ctx context.Context, ref string) (price int64, observedAt int64, err error)

	// LastExecutionTime returns the last execution instant recorded for a
	// series (Unix milliseconds), or 0 if the series has never executed.
	LastExecutionTime(ctx context.Context, seriesID string) (int64, error)

	// MinimumInterval returns the fixed minimum spacing between eligible
	// executions of one series.
	MinimumInterval(ctx context.Context) (time.Duration, error)
}
