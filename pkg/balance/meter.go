// Package balance is the balance-store collaborator: per-owner meter
// balances credited as series members fill.
package balance

import "github.com/ethereum/go-ethereum/common"

// Meter tracks one owner's energy-credit balances, mirroring the grid meter
// the owner is onboarded with.
type Meter struct {
	Owner common.Address `json:"owner"`
	// BalanceUSD is the credit balance in USD cents.
	BalanceUSD int64 `json:"balanceUsd"`
	// BalanceWatts is the usable energy balance in watt-hours.
	BalanceWatts int64 `json:"balanceWatts"`
	UpdatedAt    int64 `json:"updatedAt"` // Unix milliseconds
}

// Delta is a settlement adjustment applied to a meter.
type Delta struct {
	USDCents  int64 `json:"usdCents"`
	WattHours int64 `json:"wattHours"`
}

func NewMeter(owner common.Address) *Meter {
	return &Meter{Owner: owner}
}
