package api

// API request/response types for REST endpoints and WebSocket messages

// ==============================
// REST Request Types
// ==============================

// CreateOrderRequest is the payload for POST /api/v1/orders
type CreateOrderRequest struct {
	Address      string `json:"address"`      // Owner's Ethereum address
	SellCurrency string `json:"sellCurrency"` // e.g., "USD"
	TotalAmount  int64  `json:"totalAmount"`  // Total sell budget in base units
	UnitCount    int    `json:"unitCount"`    // Schedule length; 0 = strategy default
	Strategy     string `json:"strategy"`     // "twap", "single", "limit"
	PriceCeiling int64  `json:"priceCeiling"` // 8-decimal fixed point; 0 = none
	OracleRef    string `json:"oracleRef"`    // Price feed reference
}

// CancelOrderRequest is the payload for POST /api/v1/orders/cancel.
// Exactly one of OrderID or SeriesID must be set.
type CancelOrderRequest struct {
	Address  string `json:"address"`
	OrderID  string `json:"orderId,omitempty"`  // Cancel one member
	SeriesID string `json:"seriesId,omitempty"` // Cancel every open member
}

// DepositRequest is the payload for POST /api/v1/accounts/{address}/deposit
type DepositRequest struct {
	USDCents  int64 `json:"usdCents"`
	WattHours int64 `json:"wattHours"`
}

// ==============================
// REST Response Types
// ==============================

// CreateOrderResponse is returned from order submission
type CreateOrderResponse struct {
	Status   string      `json:"status"` // "created"
	SeriesID string      `json:"seriesId"`
	Orders   []OrderInfo `json:"orders"`
}

// CancelOrderResponse is returned from cancellation
type CancelOrderResponse struct {
	Status    string `json:"status"` // "cancelled"
	Cancelled int    `json:"cancelled"`
}

// SeriesInfo represents a series record plus derived aggregates
type SeriesInfo struct {
	SeriesID        string `json:"seriesId"`
	Owner           string `json:"owner"`
	SellCurrency    string `json:"sellCurrency"`
	TotalSellAmount int64  `json:"totalSellAmount"`
	Strategy        string `json:"strategy"`
	OracleRef       string `json:"oracleRef"`
	CreatedAt       int64  `json:"createdAt"` // Unix milliseconds

	Pending         int   `json:"pending"`
	Active          int   `json:"active"`
	Filled          int   `json:"filled"`
	Cancelled       int   `json:"cancelled"`
	FilledSellTotal int64 `json:"filledSellTotal"`
}

// OrderInfo represents one member order
type OrderInfo struct {
	ID                string `json:"id"`
	SeriesID          string `json:"seriesId"`
	Sequence          int    `json:"sequence"`
	SellAmount        int64  `json:"sellAmount"`
	BuyAmountEstimate int64  `json:"buyAmountEstimate"`
	BuyCurrency       string `json:"buyCurrency"`
	Status            string `json:"status"` // "PENDING", "ACTIVE", "FILLED", "CANCELLED"
	PriceCeiling      int64  `json:"priceCeiling"`
	CreatedAt         int64  `json:"createdAt"`
	ExecutedAt        int64  `json:"executedAt,omitempty"`
}

// BalanceInfo represents an owner's meter balances
type BalanceInfo struct {
	Address      string `json:"address"`
	BalanceUSD   int64  `json:"balanceUsd"`   // USD cents
	BalanceWatts int64  `json:"balanceWatts"` // Watt-hours
	UpdatedAt    int64  `json:"updatedAt"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["series:0x...", "account:0x..."]
}
