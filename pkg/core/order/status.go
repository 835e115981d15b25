package order

// Status is the lifecycle state of a series member order.
//
// Legal transitions:
//
//	PENDING   → ACTIVE, CANCELLED
//	ACTIVE    → FILLED, CANCELLED
//	FILLED    → (terminal)
//	CANCELLED → (terminal)
//
// Any transition not in the table is rejected with ErrIllegalTransition.
type Status int8

const (
	StatusPending Status = iota
	StatusActive
	StatusFilled
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusActive:
		return "ACTIVE"
	case StatusFilled:
		return "FILLED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled
}

var legalTransitions = map[Status][]Status{
	StatusPending: {StatusActive, StatusCancelled},
	StatusActive:  {StatusFilled, StatusCancelled},
}

// CanTransition reports whether from → to is in the legal-transition table.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Strategy is the buying strategy tag attached to a series.
type Strategy string

const (
	// StrategyTimeWeighted spreads a total over a schedule of equal units (TWAP).
	StrategyTimeWeighted Strategy = "twap"
	// StrategySingleShot buys the whole amount in one unit.
	StrategySingleShot Strategy = "single"
	// StrategyLimit buys in one unit, gated by a price ceiling.
	StrategyLimit Strategy = "limit"
)

// Valid reports whether s is a recognized strategy kind.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyTimeWeighted, StrategySingleShot, StrategyLimit:
		return true
	}
	return false
}

// TimeDecomposed reports whether the strategy splits the total over a
// multi-unit schedule. Non-decomposed strategies require exactly one unit.
func (s Strategy) TimeDecomposed() bool {
	return s == StrategyTimeWeighted
}
