package oracle

import (
	"context"
	"sync"
	"time"
)

// SimProvider is an in-memory provider for devnet and tests. Price and
// availability are settable; executions are recorded through RecordExecution,
// which stands in for the time-lock contract's write side (the real write
// happens on-chain, outside the Provider read surface).
type SimProvider struct {
	mu          sync.RWMutex
	price       int64
	observedAt  int64
	lastExec    map[string]int64
	interval    time.Duration
	unavailable bool
}

func NewSimProvider(price int64, interval time.Duration) *SimProvider {
	return &SimProvider{
		price:    price,
		lastExec: make(map[string]int64),
		interval: interval,
	}
}

// SetPrice updates the simulated feed answer.
func (s *SimProvider) SetPrice(price, observedAt int64) {
	s.mu.Lock()
	s.price = price
	s.observedAt = observedAt
	s.mu.Unlock()
}

// SetUnavailable toggles simulated outage: every call fails with ErrUnavailable.
func (s *SimProvider) SetUnavailable(down bool) {
	s.mu.Lock()
	s.unavailable = down
	s.mu.Unlock()
}

// RecordExecution records an execution instant for a series.
func (s *SimProvider) RecordExecution(seriesID string, ts int64) {
	s.mu.Lock()
	s.lastExec[seriesID] = ts
	s.mu.Unlock()
}

func (s *SimProvider) CurrentPrice(_ context.Context, _ string) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.unavailable {
		return 0, 0, ErrUnavailable
	}
	return s.price, s.observedAt, nil
}

func (s *SimProvider) LastExecutionTime(_ context.Context, seriesID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.unavailable {
		return 0, ErrUnavailable
	}
	return s.lastExec[seriesID], nil
}

func (s *SimProvider) MinimumInterval(_ context.Context) (time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.unavailable {
		return 0, ErrUnavailable
	}
	return s.interval, nil
}

var _ Provider = (*SimProvider)(nil)
