// Package report converts resolver fills into externally consumable records:
// a balance delta for the balance collaborator, a journal line, and a status
// snapshot for the query layer. Delivery is exactly-once per order:
// duplicates are detected by order id and suppressed, not reprocessed.
package report

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/wattlink/wattlink/pkg/balance"
	"github.com/wattlink/wattlink/pkg/core/order"
	"github.com/wattlink/wattlink/pkg/storage"
)

// One credited USD cent buys roughly 6.67 watt-hours of grid energy.
const wattHoursPerCreditCent = 667 // scaled by 100

// Fill is a settled member order handed over by the resolver. Owner comes
// from the parent series record since members do not carry it.
type Fill struct {
	Order    order.Order
	Owner    common.Address
	Price    int64 // observed oracle price at fill time
	FilledAt int64 // Unix milliseconds
}

// Snapshot is the status record pushed to the query layer after a fill.
type Snapshot struct {
	Type       string `json:"type"` // "order"
	OrderID    string `json:"orderId"`
	SeriesID   string `json:"seriesId"`
	Owner      string `json:"owner"`
	Sequence   int    `json:"sequence"`
	Status     string `json:"status"`
	SellAmount int64  `json:"sellAmount"`
	ExecutedAt int64  `json:"executedAt"`
}

// Broadcaster pushes snapshots to query-layer consumers (the websocket hub).
type Broadcaster interface {
	BroadcastSnapshot(snap Snapshot)
}

// BalanceApplier credits meter balances. Satisfied by *balance.Manager.
type BalanceApplier interface {
	ApplyDelta(addr common.Address, d balance.Delta) (balance.Meter, error)
}

// Reporter fans a fill out to the balance store, the fill journal, and the
// broadcaster.
type Reporter struct {
	mu         sync.Mutex
	reported   map[string]bool
	duplicates uint64

	balances    BalanceApplier
	journal     storage.Journal
	broadcaster Broadcaster // optional
	log         *zap.SugaredLogger
}

func NewReporter(balances BalanceApplier, journal storage.Journal, b Broadcaster, log *zap.SugaredLogger) *Reporter {
	return &Reporter{
		reported:    make(map[string]bool),
		balances:    balances,
		journal:     journal,
		broadcaster: b,
		log:         log,
	}
}

// Report settles one fill. A repeat report for the same order id is
// suppressed and counted, returning ErrDuplicateReport; the balance delta is
// applied exactly once.
func (r *Reporter) Report(fill Fill) error {
	r.mu.Lock()
	if r.reported[fill.Order.ID] {
		r.duplicates++
		r.mu.Unlock()
		r.log.Infow("duplicate_fill_suppressed", "order_id", fill.Order.ID)
		return fmt.Errorf("%w: %s", order.ErrDuplicateReport, fill.Order.ID)
	}
	r.reported[fill.Order.ID] = true
	r.mu.Unlock()

	// Credit: the non-binding buy estimate is the settlement amount in USD
	// cents; watt-hours derive from the fixed grid conversion.
	credit := balance.Delta{
		USDCents:  fill.Order.BuyAmountEstimate,
		WattHours: fill.Order.BuyAmountEstimate * wattHoursPerCreditCent / 100,
	}

	if _, err := r.balances.ApplyDelta(fill.Owner, credit); err != nil {
		// Un-mark so the next resolver pass redelivers; the credit has not
		// been applied, so a retry cannot double-count.
		r.mu.Lock()
		delete(r.reported, fill.Order.ID)
		r.mu.Unlock()
		r.log.Errorw("balance_delta_failed", "order_id", fill.Order.ID, "err", err)
		return err
	}

	if err := r.journal.Append(storage.FillRecord{
		OrderID:    fill.Order.ID,
		SeriesID:   fill.Order.SeriesID,
		Owner:      fill.Owner.Hex(),
		SellAmount: fill.Order.SellAmount,
		BuyAmount:  fill.Order.BuyAmountEstimate,
		Price:      fill.Price,
		FilledAt:   fill.FilledAt,
	}); err != nil {
		r.log.Errorw("fill_journal_failed", "order_id", fill.Order.ID, "err", err)
	}

	if r.broadcaster != nil {
		r.broadcaster.BroadcastSnapshot(Snapshot{
			Type:       "order",
			OrderID:    fill.Order.ID,
			SeriesID:   fill.Order.SeriesID,
			Owner:      fill.Owner.Hex(),
			Sequence:   fill.Order.Sequence,
			Status:     fill.Order.Status.String(),
			SellAmount: fill.Order.SellAmount,
			ExecutedAt: fill.Order.ExecutedAt,
		})
	}

	r.log.Infow("fill_reported",
		"order_id", fill.Order.ID,
		"series_id", fill.Order.SeriesID,
		"sequence", fill.Order.Sequence,
		"sell_amount", fill.Order.SellAmount,
		"credit_usd_cents", credit.USDCents)
	return nil
}

// Duplicates returns how many repeat reports were suppressed.
func (r *Reporter) Duplicates() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.duplicates
}
