// Package series owns all series/order state. Every write goes through the
// Manager's mutex: creation commits atomically, and status transitions are
// compare-and-set guarded so concurrent resolver passes and user cancels can
// never double-fire or leave two members ACTIVE in one series.
package series

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/wattlink/wattlink/pkg/core/order"
	"github.com/wattlink/wattlink/pkg/storage"
	"github.com/wattlink/wattlink/pkg/util"
)

// Manager is a mutex-guarded in-memory cache over the Pebble store.
type Manager struct {
	mu     sync.Mutex
	store  *storage.Store
	clock  util.Clock
	series map[string]*order.Series
	orders map[string][]*order.Order // seriesID → members, ascending sequence
}

// NewManager opens the backing store at dbPath.
func NewManager(dbPath string, clock util.Clock) (*Manager, error) {
	store, err := storage.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	return &Manager{
		store:  store,
		clock:  clock,
		series: make(map[string]*order.Series),
		orders: make(map[string][]*order.Order),
	}, nil
}

// Close closes the underlying Pebble database.
func (m *Manager) Close() error {
	return m.store.Close()
}

// Create persists a planned series and all of its members in one atomic
// batch. Partial emission (series without members or the reverse) cannot
// happen: either everything commits or the request is rejected whole.
func (m *Manager) Create(s *order.Series, members []*order.Order) error {
	if len(members) == 0 {
		return fmt.Errorf("%w: series %s has no members", order.ErrInvalidScheduleLength, s.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.series[s.ID]; exists {
		return fmt.Errorf("series %s already exists", s.ID)
	}

	batch := m.store.NewBatch()
	defer batch.Close()

	if err := batch.SaveSeries(s); err != nil {
		return fmt.Errorf("failed to batch series: %w", err)
	}
	for _, o := range members {
		if err := batch.SaveOrder(o); err != nil {
			return fmt.Errorf("failed to batch order %s: %w", o.ID, err)
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("failed to commit series %s: %w", s.ID, err)
	}

	// Cache copies, not the caller's pointers: transitions mutate the cached
	// records and the caller may still be reading the slice it passed in.
	sorted := make([]*order.Order, len(members))
	for i, o := range members {
		c := *o
		sorted[i] = &c
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	cs := *s
	m.series[s.ID] = &cs
	m.orders[s.ID] = sorted
	return nil
}

// Series returns a copy of the series record.
func (m *Manager) Series(seriesID string) (order.Series, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.seriesLocked(seriesID)
	if err != nil {
		return order.Series{}, err
	}
	return *s, nil
}

// Orders returns copies of a series' members in ascending sequence order.
func (m *Manager) Orders(seriesID string) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, err := m.ordersLocked(seriesID)
	if err != nil {
		return nil, err
	}
	out := make([]order.Order, len(members))
	for i, o := range members {
		out[i] = *o
	}
	return out, nil
}

// Order returns a copy of one member by its order id.
func (m *Manager) Order(orderID string) (order.Order, error) {
	seriesID, seq, err := order.ParseOrderID(orderID)
	if err != nil {
		return order.Order{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	o, err := m.memberLocked(seriesID, seq)
	if err != nil {
		return order.Order{}, err
	}
	return *o, nil
}

// SeriesByOwner returns copies of every series created by an owner.
func (m *Manager) SeriesByOwner(addr common.Address) ([]order.Series, error) {
	ids, err := m.store.ListSeriesByOwner(addr)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]order.Series, 0, len(ids))
	for _, id := range ids {
		s, err := m.seriesLocked(id)
		if err != nil {
			continue // index entry without record, skip
		}
		out = append(out, *s)
	}
	return out, nil
}

// Outstanding returns the ids of every series with at least one non-terminal
// member, which is the resolver's work list.
func (m *Manager) Outstanding() ([]string, error) {
	ids, err := m.store.ListSeriesIDs()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for _, id := range ids {
		members, err := m.ordersLocked(id)
		if err != nil {
			continue
		}
		if order.ComputeStats(members).Outstanding() {
			out = append(out, id)
		}
	}
	return out, nil
}

// ActiveMember returns a copy of the series' single ACTIVE member. ok is
// false when no member is ACTIVE (series fully resolved, or next member not
// yet promoted because the prior one was cancelled without promotion).
func (m *Manager) ActiveMember(seriesID string) (order.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, err := m.ordersLocked(seriesID)
	if err != nil {
		return order.Order{}, false
	}
	for _, o := range members {
		if o.Status == order.StatusActive {
			return *o, true
		}
	}
	return order.Order{}, false
}

// Stats derives aggregate counts for a series by scanning current members.
func (m *Manager) Stats(seriesID string) (order.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, err := m.ordersLocked(seriesID)
	if err != nil {
		return order.Stats{}, err
	}
	return order.ComputeStats(members), nil
}

// Fill moves an ACTIVE member to FILLED under the compare-and-set guard:
// the member's current status is re-read under the lock and the transition
// aborts with ErrIllegalTransition when it is no longer ACTIVE (a concurrent
// cancel or a duplicate resolver pass won the race). On success the executed
// timestamp is set and the next PENDING member by ascending sequence, if
// any, is promoted to ACTIVE in the same atomic batch.
func (m *Manager) Fill(orderID string) (order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, err := m.transitionLocked(orderID, order.StatusFilled)
	if err != nil {
		return order.Order{}, err
	}
	return o, nil
}

// Cancel aborts a PENDING or ACTIVE member. Cancellation never promotes the
// next member: cancelling one slot does not advance or abort siblings.
func (m *Manager) Cancel(orderID string) (order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, err := m.transitionLocked(orderID, order.StatusCancelled)
	if err != nil {
		return order.Order{}, err
	}
	return o, nil
}

// CancelSeries cancels every non-terminal member of a series.
func (m *Manager) CancelSeries(seriesID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, err := m.ordersLocked(seriesID)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, o := range members {
		if o.Terminal() {
			continue
		}
		if _, err := m.transitionLocked(o.ID, order.StatusCancelled); err != nil {
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}

// ---- internal, lock held ----

func (m *Manager) transitionLocked(orderID string, to order.Status) (order.Order, error) {
	seriesID, seq, err := order.ParseOrderID(orderID)
	if err != nil {
		return order.Order{}, err
	}

	o, err := m.memberLocked(seriesID, seq)
	if err != nil {
		return order.Order{}, err
	}

	// Compare-and-set guard: verify against the table using the status read
	// under this lock, abort otherwise. Terminal states stay terminal.
	if !order.CanTransition(o.Status, to) {
		return order.Order{}, fmt.Errorf("%w: %s %s → %s",
			order.ErrIllegalTransition, orderID, o.Status, to)
	}

	batch := m.store.NewBatch()
	defer batch.Close()

	prev := *o
	o.Status = to
	if to == order.StatusFilled {
		o.ExecutedAt = m.clock.Now().UnixMilli()
	}
	if err := batch.SaveOrder(o); err != nil {
		*o = prev
		return order.Order{}, fmt.Errorf("failed to batch order %s: %w", orderID, err)
	}

	// Filling promotes exactly the next PENDING member by ascending sequence.
	// Cancellation does not promote.
	var promoted *order.Order
	var promotedPrev order.Order
	if to == order.StatusFilled {
		if next := m.nextPendingLocked(seriesID, seq); next != nil {
			promotedPrev = *next
			next.Status = order.StatusActive
			if err := batch.SaveOrder(next); err != nil {
				*o = prev
				*next = promotedPrev
				return order.Order{}, fmt.Errorf("failed to batch promotion %s: %w", next.ID, err)
			}
			promoted = next
		}
	}

	if err := batch.Commit(); err != nil {
		*o = prev
		if promoted != nil {
			*promoted = promotedPrev
		}
		return order.Order{}, fmt.Errorf("failed to commit transition %s: %w", orderID, err)
	}

	return *o, nil
}

// nextPendingLocked finds the first PENDING member after the given sequence.
func (m *Manager) nextPendingLocked(seriesID string, after int) *order.Order {
	members := m.orders[seriesID]
	for _, o := range members {
		if o.Sequence > after && o.Status == order.StatusPending {
			return o
		}
	}
	return nil
}

func (m *Manager) seriesLocked(seriesID string) (*order.Series, error) {
	if s, ok := m.series[seriesID]; ok {
		return s, nil
	}
	s, err := m.store.LoadSeries(seriesID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: series %s", order.ErrNotFound, seriesID)
	}
	m.series[seriesID] = s
	return s, nil
}

func (m *Manager) ordersLocked(seriesID string) ([]*order.Order, error) {
	if members, ok := m.orders[seriesID]; ok {
		return members, nil
	}
	if _, err := m.seriesLocked(seriesID); err != nil {
		return nil, err
	}
	members, err := m.store.LoadOrders(seriesID)
	if err != nil {
		return nil, err
	}
	m.orders[seriesID] = members
	return members, nil
}

func (m *Manager) memberLocked(seriesID string, sequence int) (*order.Order, error) {
	members, err := m.ordersLocked(seriesID)
	if err != nil {
		return nil, err
	}
	for _, o := range members {
		if o.Sequence == sequence {
			return o, nil
		}
	}
	return nil, fmt.Errorf("%w: order %s", order.ErrNotFound, order.OrderID(seriesID, sequence))
}
