// Package storage persists series and member orders in Pebble, plus an
// append-only fill journal. Values are JSON; keys use prefix schemas so
// members and owner indexes are range scans.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/wattlink/wattlink/pkg/core/order"
)

// Store provides Pebble-based persistence for series and orders.
// Thread-safety comes from the series manager's mutex, not from here.
type Store struct {
	db *pebble.DB
}

// NewStore opens a Pebble database at the given path.
func NewStore(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(64 << 20), // 64MB cache
		MemTableSize: 32 << 20,
		MaxOpenFiles: 1000,
		BytesPerSync: 512 << 10,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSeries persists a series record.
func (s *Store) SaveSeries(ser *order.Series) error {
	data, err := json.Marshal(ser)
	if err != nil {
		return fmt.Errorf("failed to marshal series: %w", err)
	}
	if err := s.db.Set(seriesKey(ser.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save series: %w", err)
	}
	return nil
}

// LoadSeries loads a series by id. Returns nil if it doesn't exist.
func (s *Store) LoadSeries(seriesID string) (*order.Series, error) {
	data, closer, err := s.db.Get(seriesKey(seriesID))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get series: %w", err)
	}
	defer closer.Close()

	var ser order.Series
	if err := json.Unmarshal(data, &ser); err != nil {
		return nil, fmt.Errorf("failed to unmarshal series: %w", err)
	}
	return &ser, nil
}

// SaveOrder persists a member order.
func (s *Store) SaveOrder(o *order.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	if err := s.db.Set(orderKey(o.SeriesID, o.Sequence), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// LoadOrders loads all members of a series in ascending sequence order.
func (s *Store) LoadOrders(seriesID string) ([]*order.Order, error) {
	prefix := orderPrefix(seriesID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan orders: %w", err)
	}
	defer iter.Close()

	var members []*order.Order
	for iter.First(); iter.Valid(); iter.Next() {
		var o order.Order
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			continue // Skip invalid entries
		}
		members = append(members, &o)
	}
	return members, nil
}

// ListSeriesIDs returns every stored series id.
func (s *Store) ListSeriesIDs() ([]string, error) {
	prefix := []byte(prefixSeries)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan series: %w", err)
	}
	defer iter.Close()

	var ids []string
	for iter.First(); iter.Valid(); iter.Next() {
		ids = append(ids, string(iter.Key()[len(prefixSeries):]))
	}
	return ids, nil
}

// ListSeriesByOwner returns the series ids recorded under the owner index.
func (s *Store) ListSeriesByOwner(addr common.Address) ([]string, error) {
	prefix := ownerPrefix(addr)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan owner index: %w", err)
	}
	defer iter.Close()

	var ids []string
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		ids = append(ids, string(key[len(prefix):]))
	}
	return ids, nil
}

// Batch accumulates writes committed atomically. A series and all of its
// members land together or not at all: a series without members (or the
// reverse) can never hit disk.
type Batch struct {
	batch *pebble.Batch
}

// NewBatch creates a new batch writer.
func (s *Store) NewBatch() *Batch {
	return &Batch{batch: s.db.NewBatch()}
}

// SaveSeries adds a series write (plus its owner index entry) to the batch.
func (b *Batch) SaveSeries(ser *order.Series) error {
	data, err := json.Marshal(ser)
	if err != nil {
		return err
	}
	if err := b.batch.Set(seriesKey(ser.ID), data, nil); err != nil {
		return err
	}
	return b.batch.Set(ownerKey(ser.Owner, ser.ID), nil, nil)
}

// SaveOrder adds a member order write to the batch.
func (b *Batch) SaveOrder(o *order.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return b.batch.Set(orderKey(o.SeriesID, o.Sequence), data, nil)
}

// Commit writes the batch to Pebble atomically.
func (b *Batch) Commit() error {
	return b.batch.Commit(pebble.Sync)
}

// Close closes the batch without committing.
func (b *Batch) Close() error {
	return b.batch.Close()
}
