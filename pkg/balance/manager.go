package balance

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/wattlink/wattlink/pkg/util"
)

// meterStore is the persistence surface the manager writes through.
type meterStore interface {
	SaveMeter(m *Meter) error
	LoadMeter(addr common.Address) (*Meter, error)
	Close() error
}

// Manager manages meter balances in a thread-safe manner.
// In-memory cache + Pebble persistence, one meter per owner address.
type Manager struct {
	mu     sync.Mutex
	meters map[common.Address]*Meter
	store  meterStore
	clock  util.Clock
}

func NewManager(dbPath string, clock util.Clock) (*Manager, error) {
	store, err := NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	return &Manager{
		meters: make(map[common.Address]*Meter),
		store:  store,
		clock:  clock,
	}, nil
}

func (m *Manager) Close() error {
	return m.store.Close()
}

// GetBalance returns a copy of the owner's meter, creating a zero meter for
// unknown owners.
func (m *Manager) GetBalance(addr common.Address) (Meter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.meterLocked(addr)
	if err != nil {
		return Meter{}, err
	}
	return *mt, nil
}

// ApplyDelta adjusts the owner's balances and returns the updated meter.
// Callers guarantee at-most-once application per fill (the reporter's
// duplicate suppression); the manager itself applies whatever it is given.
func (m *Manager) ApplyDelta(addr common.Address, d Delta) (Meter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.meterLocked(addr)
	if err != nil {
		return Meter{}, err
	}

	// Apply to a copy and install only after the save lands, so a failed
	// write never leaves the cache ahead of disk.
	updated := *mt
	updated.BalanceUSD += d.USDCents
	updated.BalanceWatts += d.WattHours
	updated.UpdatedAt = m.clock.Now().UnixMilli()

	if err := m.store.SaveMeter(&updated); err != nil {
		return Meter{}, err
	}
	*mt = updated
	return updated, nil
}

// Deposit seeds an owner's meter with starting balances. Amounts must be
// non-negative and at least one must be positive.
func (m *Manager) Deposit(addr common.Address, usdCents, wattHours int64) (Meter, error) {
	if usdCents < 0 || wattHours < 0 || (usdCents == 0 && wattHours == 0) {
		return Meter{}, fmt.Errorf("invalid deposit: usd=%d watts=%d", usdCents, wattHours)
	}
	return m.ApplyDelta(addr, Delta{USDCents: usdCents, WattHours: wattHours})
}

// Count returns the number of known meters (loaded this process lifetime).
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.meters)
}

func (m *Manager) meterLocked(addr common.Address) (*Meter, error) {
	if mt, ok := m.meters[addr]; ok {
		return mt, nil
	}

	mt, err := m.store.LoadMeter(addr)
	if err != nil {
		return nil, err
	}
	if mt == nil {
		mt = NewMeter(addr)
	}
	m.meters[addr] = mt
	return mt, nil
}
