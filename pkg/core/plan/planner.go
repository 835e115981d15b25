// Package plan decomposes a single buy request into an order series:
// N dated sub-orders with exact amount splitting and initial statuses.
package plan

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/wattlink/wattlink/pkg/core/order"
	"github.com/wattlink/wattlink/pkg/util"
)

// DefaultTimeWeightedUnits is the schedule length used when a time-weighted
// request does not name one: 30 daily units.
const DefaultTimeWeightedUnits = 30

// rateMicro maps sell currency → buy units per sell base unit, scaled 1e6.
// Planning-time conversion only; estimates are informational, never binding.
var rateMicro = map[string]struct {
	buyCurrency string
	rate        int64
}{
	"ETH": {"USD", 3485140000}, // 3485.14 USD per ETH
	"USD": {"ETH", 287},        // ~0.000287 ETH per USD
}

// Request is a validated planning input.
type Request struct {
	Owner        common.Address
	SellCurrency string
	TotalAmount  int64 // base units, must be > 0
	UnitCount    int   // >= 1; must be 1 for non-decomposed strategies
	Strategy     order.Strategy
	PriceCeiling int64  // 0 = no ceiling
	OracleRef    string // price feed reference for ceiling checks
}

// Planner turns requests into series + member records. It performs no
// persistence; the series manager commits the emitted records atomically.
type Planner struct {
	Clock util.Clock
}

func NewPlanner(clock util.Clock) *Planner {
	return &Planner{Clock: clock}
}

// Plan validates the request and produces one series plus UnitCount member
// orders. Splitting: each member gets TotalAmount/UnitCount; the final member
// absorbs the division remainder so the member sum reproduces TotalAmount
// exactly. Member 1 starts ACTIVE, all later members PENDING.
func (p *Planner) Plan(req Request) (*order.Series, []*order.Order, error) {
	if req.TotalAmount <= 0 {
		return nil, nil, fmt.Errorf("%w: got %d", order.ErrInvalidAmount, req.TotalAmount)
	}
	if req.UnitCount < 1 {
		return nil, nil, fmt.Errorf("%w: unit count %d", order.ErrInvalidScheduleLength, req.UnitCount)
	}
	if !req.Strategy.Valid() {
		return nil, nil, fmt.Errorf("%w: %q", order.ErrUnsupportedStrategy, req.Strategy)
	}
	if !req.Strategy.TimeDecomposed() && req.UnitCount != 1 {
		return nil, nil, fmt.Errorf("%w: strategy %q requires exactly 1 unit, got %d",
			order.ErrInvalidScheduleLength, req.Strategy, req.UnitCount)
	}

	now := p.Clock.Now().UnixMilli()

	s := &order.Series{
		ID:              order.SeriesID(req.Owner, req.Strategy, now),
		Owner:           req.Owner,
		SellCurrency:    req.SellCurrency,
		TotalSellAmount: req.TotalAmount,
		Strategy:        req.Strategy,
		OracleRef:       req.OracleRef,
		CreatedAt:       now,
	}

	per := req.TotalAmount / int64(req.UnitCount)
	remainder := req.TotalAmount % int64(req.UnitCount)

	members := make([]*order.Order, 0, req.UnitCount)
	for seq := 1; seq <= req.UnitCount; seq++ {
		sell := per
		if seq == req.UnitCount {
			sell += remainder // last unit absorbs the rounding remainder
		}

		status := order.StatusPending
		if seq == 1 {
			status = order.StatusActive
		}

		members = append(members, &order.Order{
			ID:                order.OrderID(s.ID, seq),
			SeriesID:          s.ID,
			Sequence:          seq,
			SellAmount:        sell,
			BuyAmountEstimate: buyEstimate(req.SellCurrency, sell),
			BuyCurrency:       buyCurrency(req.SellCurrency),
			Status:            status,
			PriceCeiling:      req.PriceCeiling,
			CreatedAt:         now,
		})
	}

	return s, members, nil
}

func buyEstimate(sellCurrency string, sellAmount int64) int64 {
	r, ok := rateMicro[sellCurrency]
	if !ok {
		return 0
	}
	return sellAmount * r.rate / 1_000_000
}

func buyCurrency(sellCurrency string) string {
	if r, ok := rateMicro[sellCurrency]; ok {
		return r.buyCurrency
	}
	return ""
}
