package order

import (
	"github.com/ethereum/go-ethereum/common"
)

// Series is a user's decomposed multi-part order commitment.
// Immutable once created; its state accumulates through member orders only.
type Series struct {
	ID           string         `json:"id"`    // keccak(owner ‖ strategy ‖ createdAt), 0x-hex
	Owner        common.Address `json:"owner"` // EVM 20-byte address
	SellCurrency string         `json:"sellCurrency"`
	// TotalSellAmount is in the sell currency's base unit
	// (cents for USD, gwei for ETH). Sum of member sell amounts equals it exactly.
	TotalSellAmount int64    `json:"totalSellAmount"`
	Strategy        Strategy `json:"strategy"`
	OracleRef       string   `json:"oracleRef"` // price feed queried for ceiling checks
	CreatedAt       int64    `json:"createdAt"` // Unix milliseconds
}

// Order is one dated sub-order within a series. A series exclusively owns its
// members; sequence positions are 1..N, unique, never reused or reordered.
type Order struct {
	ID       string `json:"id"` // "<seriesID>-u<sequence>"
	SeriesID string `json:"seriesId"`
	Sequence int    `json:"sequence"` // 1..N, defines schedule order

	SellAmount int64 `json:"sellAmount"` // base units of the series sell currency
	// BuyAmountEstimate is informational only, derived from a conversion
	// rate at planning time. It is never binding on execution.
	BuyAmountEstimate int64  `json:"buyAmountEstimate"`
	BuyCurrency       string `json:"buyCurrency"`

	Status Status `json:"status"`

	// PriceCeiling gates execution: the price predicate passes only when the
	// observed oracle price is <= ceiling. Zero means no ceiling (always
	// passes). Set once at planning time, immutable after.
	PriceCeiling int64 `json:"priceCeiling"`

	CreatedAt  int64 `json:"createdAt"`  // Unix milliseconds
	ExecutedAt int64 `json:"executedAt"` // set on FILLED, zero otherwise
}

// Terminal reports whether the order can no longer transition.
func (o *Order) Terminal() bool {
	return o.Status.Terminal()
}

// Stats are per-series aggregates derived by scanning current member state.
// Never cached: compute on demand from the members you hold.
type Stats struct {
	Pending   int   `json:"pending"`
	Active    int   `json:"active"`
	Filled    int   `json:"filled"`
	Cancelled int   `json:"cancelled"`
	// FilledSellTotal is the sum of sell amounts of FILLED members.
	FilledSellTotal int64 `json:"filledSellTotal"`
}

// Outstanding reports whether any member is still non-terminal.
func (s Stats) Outstanding() bool {
	return s.Pending > 0 || s.Active > 0
}

// ComputeStats scans members and aggregates counts and the filled sell total.
func ComputeStats(members []*Order) Stats {
	var st Stats
	for _, m := range members {
		switch m.Status {
		case StatusPending:
			st.Pending++
		case StatusActive:
			st.Active++
		case StatusFilled:
			st.Filled++
			st.FilledSellTotal += m.SellAmount
		case StatusCancelled:
			st.Cancelled++
		}
	}
	return st
}
