package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wattlink/wattlink/pkg/balance"
	"github.com/wattlink/wattlink/pkg/core/plan"
	"github.com/wattlink/wattlink/pkg/core/predicate"
	"github.com/wattlink/wattlink/pkg/oracle"
	"github.com/wattlink/wattlink/pkg/series"
	"github.com/wattlink/wattlink/pkg/util"
)

const testAddress = "0xAbCd000000000000000000000000000000001234"

func newTestServer(t *testing.T) (*Server, *oracle.SimProvider) {
	t.Helper()
	sim := oracle.NewSimProvider(348_514_000_000, 24*time.Hour)
	sim.SetPrice(348_514_000_000, 1700000000000)
	return newTestServerWithProvider(t, sim), sim
}

func newTestServerWithProvider(t *testing.T, p oracle.Provider) *Server {
	t.Helper()
	dir := t.TempDir()
	clock := util.NewManualClock(time.UnixMilli(1700000000000))

	seriesMgr, err := series.NewManager(dir+"/series.db", clock)
	if err != nil {
		t.Fatalf("series manager: %v", err)
	}
	t.Cleanup(func() { seriesMgr.Close() })

	balanceMgr, err := balance.NewManager(dir+"/balances.db", clock)
	if err != nil {
		t.Fatalf("balance manager: %v", err)
	}
	t.Cleanup(func() { balanceMgr.Close() })

	eval := predicate.NewEvaluator(p, clock, time.Second)
	return NewServer(plan.NewPlanner(clock), seriesMgr, balanceMgr, eval, nil)
}

func doJSON(t *testing.T, s *Server, method, path string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
		}
	}
	return rec
}

func createTestSeries(t *testing.T, s *Server) CreateOrderResponse {
	t.Helper()
	var resp CreateOrderResponse
	rec := doJSON(t, s, "POST", "/api/v1/orders", CreateOrderRequest{
		Address:      testAddress,
		SellCurrency: "USD",
		TotalAmount:  300000,
		Strategy:     "twap",
		OracleRef:    "ETH-USD",
	}, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("create order: status %d: %s", rec.Code, rec.Body.String())
	}
	return resp
}

func TestCreateOrderDefaultsToThirtyUnits(t *testing.T) {
	s, _ := newTestServer(t)

	resp := createTestSeries(t, s)
	if resp.Status != "created" {
		t.Errorf("status = %s, want created", resp.Status)
	}
	if len(resp.Orders) != 30 {
		t.Fatalf("orders = %d, want 30 (twap default)", len(resp.Orders))
	}
	if resp.Orders[0].Status != "ACTIVE" {
		t.Errorf("member 1 status = %s, want ACTIVE", resp.Orders[0].Status)
	}
	if resp.Orders[29].Status != "PENDING" {
		t.Errorf("member 30 status = %s, want PENDING", resp.Orders[29].Status)
	}

	var sum int64
	for _, o := range resp.Orders {
		sum += o.SellAmount
	}
	if sum != 300000 {
		t.Errorf("member sum = %d, want 300000", sum)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []struct {
		name string
		req  CreateOrderRequest
	}{
		{"bad address", CreateOrderRequest{Address: "not-an-address", TotalAmount: 100, Strategy: "twap"}},
		{"bad strategy", CreateOrderRequest{Address: testAddress, TotalAmount: 100, Strategy: "martingale"}},
		{"zero amount", CreateOrderRequest{Address: testAddress, TotalAmount: 0, Strategy: "twap"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := doJSON(t, s, "POST", "/api/v1/orders", c.req, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestGetSeriesAndOrders(t *testing.T) {
	s, _ := newTestServer(t)
	created := createTestSeries(t, s)

	var info SeriesInfo
	rec := doJSON(t, s, "GET", "/api/v1/series/"+created.SeriesID, nil, &info)
	if rec.Code != http.StatusOK {
		t.Fatalf("get series: status %d", rec.Code)
	}
	if info.Active != 1 || info.Pending != 29 {
		t.Errorf("series info = %+v", info)
	}

	var orders []OrderInfo
	rec = doJSON(t, s, "GET", "/api/v1/series/"+created.SeriesID+"/orders", nil, &orders)
	if rec.Code != http.StatusOK || len(orders) != 30 {
		t.Errorf("get orders: status %d, len %d", rec.Code, len(orders))
	}

	rec = doJSON(t, s, "GET", "/api/v1/series/0xmissing", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing series status = %d, want 404", rec.Code)
	}
}

func TestGetSeriesStatus(t *testing.T) {
	s, sim := newTestServer(t)
	created := createTestSeries(t, s)

	var res predicate.Result
	rec := doJSON(t, s, "GET", "/api/v1/series/"+created.SeriesID+"/status", nil, &res)
	if rec.Code != http.StatusOK {
		t.Fatalf("status endpoint: %d: %s", rec.Code, rec.Body.String())
	}
	if !res.CanExecute {
		t.Errorf("fresh series with no ceiling should be executable, got %+v", res)
	}

	sim.SetUnavailable(true)
	rec = doJSON(t, s, "GET", "/api/v1/series/"+created.SeriesID+"/status", nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unavailable oracle status = %d, want 503", rec.Code)
	}
}

// ctxProvider surfaces request-context cancellation from the price call.
type ctxProvider struct {
	*oracle.SimProvider
}

func (p ctxProvider) CurrentPrice(ctx context.Context, ref string) (int64, int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	return p.SimProvider.CurrentPrice(ctx, ref)
}

func TestSeriesStatusHonorsRequestContext(t *testing.T) {
	sim := oracle.NewSimProvider(348_514_000_000, 24*time.Hour)
	sim.SetPrice(348_514_000_000, 1700000000000)
	s := newTestServerWithProvider(t, ctxProvider{sim})
	created := createTestSeries(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest("GET", "/api/v1/series/"+created.SeriesID+"/status", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	// The abandoned request reaches the provider as a cancelled context and
	// resolves to oracle-unavailable
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("cancelled request status = %d, want 503", rec.Code)
	}
}

func TestCancelEndpoints(t *testing.T) {
	s, _ := newTestServer(t)
	created := createTestSeries(t, s)

	// Cancel one member
	var single CancelOrderResponse
	rec := doJSON(t, s, "POST", "/api/v1/orders/cancel", CancelOrderRequest{
		Address: testAddress,
		OrderID: created.Orders[4].ID,
	}, &single)
	if rec.Code != http.StatusOK || single.Cancelled != 1 {
		t.Errorf("cancel member: status %d, resp %+v", rec.Code, single)
	}

	// Cancelling it again conflicts
	rec = doJSON(t, s, "POST", "/api/v1/orders/cancel", CancelOrderRequest{
		Address: testAddress,
		OrderID: created.Orders[4].ID,
	}, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("double cancel status = %d, want 409", rec.Code)
	}

	// Cancel the rest of the series
	var rest CancelOrderResponse
	rec = doJSON(t, s, "POST", "/api/v1/orders/cancel", CancelOrderRequest{
		Address:  testAddress,
		SeriesID: created.SeriesID,
	}, &rest)
	if rec.Code != http.StatusOK || rest.Cancelled != 29 {
		t.Errorf("cancel series: status %d, resp %+v", rec.Code, rest)
	}

	// Neither id given
	rec = doJSON(t, s, "POST", "/api/v1/orders/cancel", CancelOrderRequest{Address: testAddress}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty cancel status = %d, want 400", rec.Code)
	}
}

func TestGetAccountBalance(t *testing.T) {
	s, _ := newTestServer(t)

	var info BalanceInfo
	rec := doJSON(t, s, "GET", "/api/v1/accounts/"+testAddress+"/balance", nil, &info)
	if rec.Code != http.StatusOK {
		t.Fatalf("balance: status %d", rec.Code)
	}
	if info.BalanceUSD != 0 || info.BalanceWatts != 0 {
		t.Errorf("fresh balance = %+v, want zeros", info)
	}

	rec = doJSON(t, s, "GET", "/api/v1/accounts/nope/balance", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad address status = %d, want 400", rec.Code)
	}
}

func TestDepositEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	var info BalanceInfo
	rec := doJSON(t, s, "POST", "/api/v1/accounts/"+testAddress+"/deposit",
		DepositRequest{USDCents: 5000, WattHours: 33350}, &info)
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit: status %d: %s", rec.Code, rec.Body.String())
	}
	if info.BalanceUSD != 5000 || info.BalanceWatts != 33350 {
		t.Errorf("balance after deposit = %+v", info)
	}

	rec = doJSON(t, s, "POST", "/api/v1/accounts/"+testAddress+"/deposit",
		DepositRequest{}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty deposit status = %d, want 400", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, "GET", "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}
