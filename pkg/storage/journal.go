package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FillRecord is one settled fill, journaled before collaborators are notified.
type FillRecord struct {
	OrderID    string `json:"orderId"`
	SeriesID   string `json:"seriesId"`
	Owner      string `json:"owner"`
	SellAmount int64  `json:"sellAmount"`
	BuyAmount  int64  `json:"buyAmount"`
	Price      int64  `json:"price"` // observed oracle price at fill time
	FilledAt   int64  `json:"filledAt"`
}

// Journal is an append-only fill log.
type Journal interface {
	Append(rec FillRecord) error
}

// NopJournal discards records (tests, journaling disabled).
type NopJournal struct{}

func (NopJournal) Append(FillRecord) error { return nil }

// FileJournal writes one JSON object per line to a file.
type FileJournal struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileJournal(path string) (*FileJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileJournal{f: f}, nil
}

func (j *FileJournal) Append(rec FillRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = fmt.Fprintln(j.f, string(data))
	return err
}

func (j *FileJournal) Close() error { return j.f.Close() }

var _ Journal = (*NopJournal)(nil)
var _ Journal = (*FileJournal)(nil)
