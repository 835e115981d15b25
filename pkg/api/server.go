package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/wattlink/wattlink/pkg/balance"
	"github.com/wattlink/wattlink/pkg/core/order"
	"github.com/wattlink/wattlink/pkg/core/plan"
	"github.com/wattlink/wattlink/pkg/core/predicate"
	"github.com/wattlink/wattlink/pkg/oracle"
	"github.com/wattlink/wattlink/pkg/report"
	"github.com/wattlink/wattlink/pkg/series"
)

// Server handles REST API and WebSocket connections
type Server struct {
	planner  *plan.Planner
	series   *series.Manager
	balances *balance.Manager
	eval     *predicate.Evaluator
	router   *mux.Router
	hub      *Hub // WebSocket hub

	allowedOrigins []string
}

// NewServer creates a new API server
func NewServer(planner *plan.Planner, mgr *series.Manager, balances *balance.Manager, eval *predicate.Evaluator, allowedOrigins []string) *Server {
	s := &Server{
		planner:        planner,
		series:         mgr,
		balances:       balances,
		eval:           eval,
		router:         mux.NewRouter(),
		hub:            NewHub(),
		allowedOrigins: allowedOrigins,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Series endpoints
	api.HandleFunc("/series/{id}", s.handleGetSeries).Methods("GET")
	api.HandleFunc("/series/{id}/orders", s.handleGetSeriesOrders).Methods("GET")
	api.HandleFunc("/series/{id}/status", s.handleGetSeriesStatus).Methods("GET")

	// Account endpoints
	api.HandleFunc("/accounts/{address}/series", s.handleGetAccountSeries).Methods("GET")
	api.HandleFunc("/accounts/{address}/balance", s.handleGetAccountBalance).Methods("GET")
	api.HandleFunc("/accounts/{address}/deposit", s.handleDeposit).Methods("POST")

	// Order submission
	api.HandleFunc("/orders", s.handleCreateOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start starts the API server
func (s *Server) Start(addr string) error {
	// Start WebSocket hub
	go s.hub.Run()

	// CORS configuration
	c := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	handler := c.Handler(s.router)

	log.Printf("[api] server starting on %s", addr)
	return http.ListenAndServe(addr, handler)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if !common.IsHexAddress(req.Address) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}

	strategy := order.Strategy(req.Strategy)
	if !strategy.Valid() {
		respondError(w, http.StatusBadRequest, "unsupported strategy", req.Strategy)
		return
	}

	unitCount := req.UnitCount
	if unitCount == 0 {
		if strategy.TimeDecomposed() {
			unitCount = plan.DefaultTimeWeightedUnits
		} else {
			unitCount = 1
		}
	}

	ser, members, err := s.planner.Plan(plan.Request{
		Owner:        common.HexToAddress(req.Address),
		SellCurrency: req.SellCurrency,
		TotalAmount:  req.TotalAmount,
		UnitCount:    unitCount,
		Strategy:     strategy,
		PriceCeiling: req.PriceCeiling,
		OracleRef:    req.OracleRef,
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}

	if err := s.series.Create(ser, members); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create series", err.Error())
		return
	}

	log.Printf("[api] series created: id=%s owner=%s units=%d total=%d",
		ser.ID, ser.Owner.Hex(), len(members), ser.TotalSellAmount)

	orders := make([]OrderInfo, len(members))
	for i, o := range members {
		orders[i] = toOrderInfo(*o)
	}

	respondJSON(w, CreateOrderResponse{
		Status:   "created",
		SeriesID: ser.ID,
		Orders:   orders,
	})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if req.OrderID == "" && req.SeriesID == "" {
		respondError(w, http.StatusBadRequest, "missing orderId or seriesId", "")
		return
	}

	if req.SeriesID != "" {
		n, err := s.series.CancelSeries(req.SeriesID)
		if err != nil {
			respondCancelError(w, err)
			return
		}
		log.Printf("[api] series cancelled: id=%s members=%d", req.SeriesID, n)
		respondJSON(w, CancelOrderResponse{Status: "cancelled", Cancelled: n})
		return
	}

	if _, err := s.series.Cancel(req.OrderID); err != nil {
		respondCancelError(w, err)
		return
	}

	log.Printf("[api] order cancelled: id=%s", req.OrderID)
	respondJSON(w, CancelOrderResponse{Status: "cancelled", Cancelled: 1})
}

func (s *Server) handleGetSeries(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	seriesID := vars["id"]

	ser, err := s.series.Series(seriesID)
	if err != nil {
		respondError(w, http.StatusNotFound, "series not found", err.Error())
		return
	}

	stats, err := s.series.Stats(seriesID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to compute stats", err.Error())
		return
	}

	respondJSON(w, toSeriesInfo(ser, stats))
}

func (s *Server) handleGetSeriesOrders(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	seriesID := vars["id"]

	members, err := s.series.Orders(seriesID)
	if err != nil {
		respondError(w, http.StatusNotFound, "series not found", err.Error())
		return
	}

	response := make([]OrderInfo, len(members))
	for i, o := range members {
		response[i] = toOrderInfo(o)
	}

	respondJSON(w, response)
}

// handleGetSeriesStatus evaluates the gates for the series' ACTIVE member and
// returns the raw predicate result. Read-only; never triggers a fill.
func (s *Server) handleGetSeriesStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	seriesID := vars["id"]

	ser, err := s.series.Series(seriesID)
	if err != nil {
		respondError(w, http.StatusNotFound, "series not found", err.Error())
		return
	}

	var ceiling int64
	if active, ok := s.series.ActiveMember(seriesID); ok {
		ceiling = active.PriceCeiling
	}

	res, err := s.eval.Evaluate(r.Context(), seriesID, ser.OracleRef, ceiling)
	if err != nil {
		if errors.Is(err, oracle.ErrUnavailable) {
			respondError(w, http.StatusServiceUnavailable, "oracle unavailable", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "evaluation failed", err.Error())
		return
	}

	respondJSON(w, res)
}

func (s *Server) handleGetAccountSeries(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	addressStr := vars["address"]

	if !common.IsHexAddress(addressStr) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}

	addr := common.HexToAddress(addressStr)
	list, err := s.series.SeriesByOwner(addr)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list series", err.Error())
		return
	}

	response := make([]SeriesInfo, 0, len(list))
	for _, ser := range list {
		stats, err := s.series.Stats(ser.ID)
		if err != nil {
			continue
		}
		response = append(response, toSeriesInfo(ser, stats))
	}

	respondJSON(w, response)
}

func (s *Server) handleGetAccountBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	addressStr := vars["address"]

	if !common.IsHexAddress(addressStr) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}

	addr := common.HexToAddress(addressStr)
	meter, err := s.balances.GetBalance(addr)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load balance", err.Error())
		return
	}

	respondJSON(w, BalanceInfo{
		Address:      addr.Hex(),
		BalanceUSD:   meter.BalanceUSD,
		BalanceWatts: meter.BalanceWatts,
		UpdatedAt:    meter.UpdatedAt,
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	addressStr := vars["address"]

	if !common.IsHexAddress(addressStr) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	addr := common.HexToAddress(addressStr)
	meter, err := s.balances.Deposit(addr, req.USDCents, req.WattHours)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid deposit", err.Error())
		return
	}

	log.Printf("[api] deposit: address=%s usd_cents=%d watt_hours=%d",
		addr.Hex(), req.USDCents, req.WattHours)

	respondJSON(w, BalanceInfo{
		Address:      addr.Hex(),
		BalanceUSD:   meter.BalanceUSD,
		BalanceWatts: meter.BalanceWatts,
		UpdatedAt:    meter.UpdatedAt,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods (called from resolver via reporter)
// ==============================

// BroadcastSnapshot pushes a fill snapshot to WebSocket clients subscribed to
// the series or account channel. Implements report.Broadcaster.
func (s *Server) BroadcastSnapshot(snap report.Snapshot) {
	s.hub.BroadcastToChannel("series:"+snap.SeriesID, snap)
	s.hub.BroadcastToChannel("account:"+snap.Owner, snap)
}

// ==============================
// Helper Functions
// ==============================

func toSeriesInfo(ser order.Series, stats order.Stats) SeriesInfo {
	return SeriesInfo{
		SeriesID:        ser.ID,
		Owner:           ser.Owner.Hex(),
		SellCurrency:    ser.SellCurrency,
		TotalSellAmount: ser.TotalSellAmount,
		Strategy:        string(ser.Strategy),
		OracleRef:       ser.OracleRef,
		CreatedAt:       ser.CreatedAt,
		Pending:         stats.Pending,
		Active:          stats.Active,
		Filled:          stats.Filled,
		Cancelled:       stats.Cancelled,
		FilledSellTotal: stats.FilledSellTotal,
	}
}

func toOrderInfo(o order.Order) OrderInfo {
	return OrderInfo{
		ID:                o.ID,
		SeriesID:          o.SeriesID,
		Sequence:          o.Sequence,
		SellAmount:        o.SellAmount,
		BuyAmountEstimate: o.BuyAmountEstimate,
		BuyCurrency:       o.BuyCurrency,
		Status:            o.Status.String(),
		PriceCeiling:      o.PriceCeiling,
		CreatedAt:         o.CreatedAt,
		ExecutedAt:        o.ExecutedAt,
	}
}

func respondCancelError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrNotFound):
		respondError(w, http.StatusNotFound, "order not found", err.Error())
	case errors.Is(err, order.ErrIllegalTransition):
		respondError(w, http.StatusConflict, "order already resolved", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "cancel failed", err.Error())
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
