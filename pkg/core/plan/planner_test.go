package plan

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/wattlink/wattlink/pkg/core/order"
	"github.com/wattlink/wattlink/pkg/util"
)

var testOwner = common.HexToAddress("0xAbCd000000000000000000000000000000001234")

func newTestPlanner() *Planner {
	return NewPlanner(util.NewManualClock(time.UnixMilli(1700000000000)))
}

func TestPlanTimeWeighted(t *testing.T) {
	p := newTestPlanner()

	// $3000 budget (300000 cents) over the default 30 daily units
	s, members, err := p.Plan(Request{
		Owner:        testOwner,
		SellCurrency: "USD",
		TotalAmount:  300000,
		UnitCount:    DefaultTimeWeightedUnits,
		Strategy:     order.StrategyTimeWeighted,
		OracleRef:    "ETH-USD",
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if len(members) != 30 {
		t.Fatalf("members = %d, want 30", len(members))
	}
	if s.TotalSellAmount != 300000 {
		t.Errorf("TotalSellAmount = %d, want 300000", s.TotalSellAmount)
	}

	// First member starts ACTIVE, the rest PENDING
	if members[0].Status != order.StatusActive {
		t.Errorf("member 1 status = %s, want ACTIVE", members[0].Status)
	}
	for _, m := range members[1:] {
		if m.Status != order.StatusPending {
			t.Errorf("member %d status = %s, want PENDING", m.Sequence, m.Status)
		}
	}

	// Member amounts reproduce the total exactly
	var sum int64
	for i, m := range members {
		sum += m.SellAmount
		if m.Sequence != i+1 {
			t.Errorf("member %d sequence = %d", i, m.Sequence)
		}
		if m.SeriesID != s.ID {
			t.Errorf("member %d series = %s, want %s", m.Sequence, m.SeriesID, s.ID)
		}
	}
	if sum != 300000 {
		t.Errorf("member sum = %d, want 300000", sum)
	}
	if members[0].SellAmount != 10000 {
		t.Errorf("per-unit amount = %d, want 10000", members[0].SellAmount)
	}
}

func TestPlanRemainderAbsorbedByLastUnit(t *testing.T) {
	p := newTestPlanner()

	// 100 does not divide evenly by 7: 14*6 + 16 = 100
	_, members, err := p.Plan(Request{
		Owner:        testOwner,
		SellCurrency: "USD",
		TotalAmount:  100,
		UnitCount:    7,
		Strategy:     order.StrategyTimeWeighted,
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	var sum int64
	for _, m := range members {
		sum += m.SellAmount
	}
	if sum != 100 {
		t.Errorf("member sum = %d, want 100", sum)
	}
	for _, m := range members[:6] {
		if m.SellAmount != 14 {
			t.Errorf("member %d amount = %d, want 14", m.Sequence, m.SellAmount)
		}
	}
	if last := members[6].SellAmount; last != 16 {
		t.Errorf("last member amount = %d, want 16", last)
	}
}

func TestPlanSingleShot(t *testing.T) {
	p := newTestPlanner()

	_, members, err := p.Plan(Request{
		Owner:        testOwner,
		SellCurrency: "ETH",
		TotalAmount:  5000,
		UnitCount:    1,
		Strategy:     order.StrategySingleShot,
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("members = %d, want 1", len(members))
	}
	if members[0].Status != order.StatusActive {
		t.Errorf("single member status = %s, want ACTIVE", members[0].Status)
	}
	if members[0].SellAmount != 5000 {
		t.Errorf("single member amount = %d, want 5000", members[0].SellAmount)
	}
}

func TestPlanLimitCarriesCeiling(t *testing.T) {
	p := newTestPlanner()

	_, members, err := p.Plan(Request{
		Owner:        testOwner,
		SellCurrency: "USD",
		TotalAmount:  10000,
		UnitCount:    1,
		Strategy:     order.StrategyLimit,
		PriceCeiling: 340000000000,
		OracleRef:    "ETH-USD",
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if members[0].PriceCeiling != 340000000000 {
		t.Errorf("ceiling = %d, want 340000000000", members[0].PriceCeiling)
	}
}

func TestPlanValidation(t *testing.T) {
	p := newTestPlanner()

	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"zero amount", Request{Owner: testOwner, TotalAmount: 0, UnitCount: 1, Strategy: order.StrategySingleShot}, order.ErrInvalidAmount},
		{"negative amount", Request{Owner: testOwner, TotalAmount: -5, UnitCount: 1, Strategy: order.StrategySingleShot}, order.ErrInvalidAmount},
		{"zero units", Request{Owner: testOwner, TotalAmount: 100, UnitCount: 0, Strategy: order.StrategyTimeWeighted}, order.ErrInvalidScheduleLength},
		{"unknown strategy", Request{Owner: testOwner, TotalAmount: 100, UnitCount: 1, Strategy: "martingale"}, order.ErrUnsupportedStrategy},
		{"multi-unit single shot", Request{Owner: testOwner, TotalAmount: 100, UnitCount: 5, Strategy: order.StrategySingleShot}, order.ErrInvalidScheduleLength},
		{"multi-unit limit", Request{Owner: testOwner, TotalAmount: 100, UnitCount: 2, Strategy: order.StrategyLimit}, order.ErrInvalidScheduleLength},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, _, err := p.Plan(c.req)
			if !errors.Is(err, c.want) {
				t.Errorf("Plan err = %v, want %v", err, c.want)
			}
		})
	}
}
