package balance

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
)

// Store provides Pebble-based persistence for meters.
// Thread-safe via the Manager's mutex; never used directly.
type Store struct {
	db *pebble.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

var _ meterStore = (*Store)(nil)

// meterKey format: "mtr:{address}"
func meterKey(addr common.Address) []byte {
	return []byte("mtr:" + addr.Hex())
}

// SaveMeter persists a meter.
func (s *Store) SaveMeter(m *Meter) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal meter: %w", err)
	}
	if err := s.db.Set(meterKey(m.Owner), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save meter: %w", err)
	}
	return nil
}

// LoadMeter loads a meter. Returns nil if the owner has none yet.
func (s *Store) LoadMeter(addr common.Address) (*Meter, error) {
	data, closer, err := s.db.Get(meterKey(addr))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meter: %w", err)
	}
	defer closer.Close()

	var m Meter
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal meter: %w", err)
	}
	return &m, nil
}
