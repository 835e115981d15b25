package report

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/wattlink/wattlink/pkg/balance"
	"github.com/wattlink/wattlink/pkg/core/order"
	"github.com/wattlink/wattlink/pkg/storage"
	"github.com/wattlink/wattlink/pkg/util"
)

var testOwner = common.HexToAddress("0xAbCd000000000000000000000000000000001234")

type captureBroadcaster struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (c *captureBroadcaster) BroadcastSnapshot(snap Snapshot) {
	c.mu.Lock()
	c.snaps = append(c.snaps, snap)
	c.mu.Unlock()
}

func newTestReporter(t *testing.T) (*Reporter, *balance.Manager, *captureBroadcaster) {
	t.Helper()
	balances, err := balance.NewManager(t.TempDir()+"/balances.db", util.NewManualClock(time.UnixMilli(1700000000000)))
	if err != nil {
		t.Fatalf("balance manager: %v", err)
	}
	t.Cleanup(func() { balances.Close() })

	bc := &captureBroadcaster{}
	return NewReporter(balances, storage.NopJournal{}, bc, zap.NewNop().Sugar()), balances, bc
}

func makeFill(seq int) Fill {
	seriesID := "0xseries"
	return Fill{
		Order: order.Order{
			ID:                order.OrderID(seriesID, seq),
			SeriesID:          seriesID,
			Sequence:          seq,
			SellAmount:        10000,
			BuyAmountEstimate: 287, // USD cents credited
			BuyCurrency:       "USD",
			Status:            order.StatusFilled,
			ExecutedAt:        1700000000000,
		},
		Owner:    testOwner,
		Price:    348_514_000_000,
		FilledAt: 1700000000000,
	}
}

func TestReportCreditsBalance(t *testing.T) {
	r, balances, bc := newTestReporter(t)

	if err := r.Report(makeFill(1)); err != nil {
		t.Fatalf("Report: %v", err)
	}

	meter, err := balances.GetBalance(testOwner)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if meter.BalanceUSD != 287 {
		t.Errorf("BalanceUSD = %d, want 287", meter.BalanceUSD)
	}
	// 287 cents * 6.67 Wh/cent = 1914 Wh (integer math)
	if meter.BalanceWatts != 1914 {
		t.Errorf("BalanceWatts = %d, want 1914", meter.BalanceWatts)
	}

	if len(bc.snaps) != 1 {
		t.Fatalf("broadcasts = %d, want 1", len(bc.snaps))
	}
	snap := bc.snaps[0]
	if snap.OrderID != order.OrderID("0xseries", 1) || snap.Status != "FILLED" {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Owner != testOwner.Hex() {
		t.Errorf("snapshot owner = %s, want %s", snap.Owner, testOwner.Hex())
	}
}

// flakyApplier fails the first n deltas, then delegates.
type flakyApplier struct {
	inner *balance.Manager
	fail  int
}

func (f *flakyApplier) ApplyDelta(addr common.Address, d balance.Delta) (balance.Meter, error) {
	if f.fail > 0 {
		f.fail--
		return balance.Meter{}, errors.New("disk full")
	}
	return f.inner.ApplyDelta(addr, d)
}

func TestReportRetriesAfterDeltaFailure(t *testing.T) {
	balances, err := balance.NewManager(t.TempDir()+"/balances.db", util.NewManualClock(time.UnixMilli(1700000000000)))
	if err != nil {
		t.Fatalf("balance manager: %v", err)
	}
	t.Cleanup(func() { balances.Close() })

	flaky := &flakyApplier{inner: balances, fail: 1}
	r := NewReporter(flaky, storage.NopJournal{}, nil, zap.NewNop().Sugar())

	fill := makeFill(1)
	if err := r.Report(fill); err == nil {
		t.Fatal("first Report should surface the delta failure")
	}

	// The failed report is not a duplicate: redelivery applies the credit
	if err := r.Report(fill); err != nil {
		t.Fatalf("redelivered Report: %v", err)
	}
	meter, err := balances.GetBalance(testOwner)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if meter.BalanceUSD != 287 {
		t.Errorf("BalanceUSD = %d, want 287", meter.BalanceUSD)
	}
	if r.Duplicates() != 0 {
		t.Errorf("Duplicates = %d, want 0 (failed report never counted as delivered)", r.Duplicates())
	}

	// A third delivery is now the duplicate case
	if err := r.Report(fill); !errors.Is(err, order.ErrDuplicateReport) {
		t.Errorf("third Report err = %v, want ErrDuplicateReport", err)
	}
	meter, _ = balances.GetBalance(testOwner)
	if meter.BalanceUSD != 287 {
		t.Errorf("BalanceUSD = %d, want 287 (credited once)", meter.BalanceUSD)
	}
}

func TestReportExactlyOnce(t *testing.T) {
	r, balances, bc := newTestReporter(t)

	fill := makeFill(1)
	if err := r.Report(fill); err != nil {
		t.Fatalf("first Report: %v", err)
	}
	// Duplicate delivery is flagged with the sentinel and otherwise ignored
	if err := r.Report(fill); !errors.Is(err, order.ErrDuplicateReport) {
		t.Fatalf("duplicate Report err = %v, want ErrDuplicateReport", err)
	}
	if err := r.Report(fill); !errors.Is(err, order.ErrDuplicateReport) {
		t.Fatalf("duplicate Report err = %v, want ErrDuplicateReport", err)
	}

	meter, err := balances.GetBalance(testOwner)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if meter.BalanceUSD != 287 {
		t.Errorf("BalanceUSD = %d, want 287 (credited once)", meter.BalanceUSD)
	}
	if len(bc.snaps) != 1 {
		t.Errorf("broadcasts = %d, want 1", len(bc.snaps))
	}
	if r.Duplicates() != 2 {
		t.Errorf("Duplicates = %d, want 2", r.Duplicates())
	}

	// A different member of the same series still reports normally
	if err := r.Report(makeFill(2)); err != nil {
		t.Fatalf("Report member 2: %v", err)
	}
	meter, _ = balances.GetBalance(testOwner)
	if meter.BalanceUSD != 574 {
		t.Errorf("BalanceUSD = %d, want 574", meter.BalanceUSD)
	}
}
