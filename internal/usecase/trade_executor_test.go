package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"SigFlow/internal/domain/models"
	domrepo "SigFlow/internal/domain/repository"
	"SigFlow/internal/repository"

	"github.com/shopspring/decimal"
)

// stubBroker fills every order unless configured to error or panic. A
// non-zero fillPrice simulates slippage against the requested price.
type stubBroker struct {
	name      string
	err       error
	panics    bool
	fillPrice decimal.Decimal
}

func (b *stubBroker) Name() string { return b.name }

func (b *stubBroker) PlaceOrder(_ context.Context, req *models.OrderRequest) (*models.OrderResponse, error) {
	if b.panics {
		panic("adapter bug")
	}
	if b.err != nil {
		return nil, b.err
	}
	price := req.Price
	if !b.fillPrice.IsZero() {
		price = b.fillPrice
	}
	return &models.OrderResponse{
		Broker:      b.name,
		OrderID:     "order-" + b.name,
		Status:      models.FillStatusFilled,
		FilledQty:   req.Quantity,
		FilledPrice: price,
	}, nil
}

func (b *stubBroker) GetOrderStatus(context.Context, string) (*models.OrderResponse, error) {
	return nil, errors.New("not implemented")
}

func (b *stubBroker) CancelOrder(context.Context, string) (bool, error) { return false, nil }

func (b *stubBroker) GetPositions(context.Context) ([]models.Position, error) { return nil, nil }

func (b *stubBroker) GetAccountInfo(context.Context) (*models.AccountInfo, error) { return nil, nil }

func newTestExecutor(t *testing.T, store *repository.MemoryStore, brokers ...domrepo.BrokerAdapter) (*TradeExecutor, *fakeEvents, *recorderMetrics) {
	t.Helper()
	m := newRecorderMetrics()
	events := &fakeEvents{}
	return NewTradeExecutor(brokers, store, events, m, newTestLogger(t)), events, m
}

func tradeSignal() *models.Signal {
	return &models.Signal{
		ID:             "sig-1",
		Ticker:         "AAPL",
		Action:         "buy",
		InstrumentType: models.InstrumentStock,
		EntryPrice:     100,
		PositionSize:   1000,
	}
}

func tradeDecision() *models.Decision {
	return &models.Decision{
		ID:       "dec-1",
		SignalID: "sig-1",
		Decision: models.DecisionTrade,
	}
}

func TestExecutePartialBrokerFailure(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	exec, events, _ := newTestExecutor(t, store,
		&stubBroker{name: "alpha"},
		&stubBroker{name: "beta", fillPrice: decimal.NewFromInt(105)},
		&stubBroker{name: "gamma", err: errors.New("connection refused")},
	)

	result, err := exec.Execute(ctx, tradeSignal(), tradeDecision())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(result.Results) != 3 {
		t.Fatalf("expected 3 broker outcomes, got %d", len(result.Results))
	}
	if result.SuccessfulBrokers() != 2 {
		t.Fatalf("expected 2 fills, got %d", result.SuccessfulBrokers())
	}

	rows, err := store.ListTradesBySignal(ctx, "sig-1")
	if err != nil {
		t.Fatalf("list trades: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected one row per broker, got %d", len(rows))
	}
	byBroker := map[string]*models.TradeRecord{}
	for _, r := range rows {
		byBroker[r.Broker] = r
		if r.ID != result.TradeID+"-"+r.Broker {
			t.Fatalf("row id %s does not follow tradeID-broker", r.ID)
		}
		if r.Quantity != 10 {
			t.Fatalf("row %s quantity %d != requested 10", r.Broker, r.Quantity)
		}
		if !r.Price.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("row %s price %s != requested 100", r.Broker, r.Price)
		}
	}
	if !byBroker["beta"].FilledPrice.Equal(decimal.NewFromInt(105)) {
		t.Fatalf("beta fill price not kept, got %s", byBroker["beta"].FilledPrice)
	}
	if byBroker["alpha"].Status != models.TradeStatusOpen || byBroker["beta"].Status != models.TradeStatusOpen {
		t.Fatal("filled brokers should produce OPEN rows")
	}
	if byBroker["gamma"].Status != models.TradeStatusCancelled {
		t.Fatalf("failed broker should produce CANCELLED row, got %s", byBroker["gamma"].Status)
	}
	if byBroker["gamma"].Error == "" {
		t.Fatal("failed broker row should carry the error")
	}

	events.mu.Lock()
	published := len(events.trades)
	events.mu.Unlock()
	if published != 1 {
		t.Fatalf("expected one trade event, got %d", published)
	}
}

func TestExecuteIsolatesBrokerPanic(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	exec, _, _ := newTestExecutor(t, store,
		&stubBroker{name: "alpha"},
		&stubBroker{name: "beta", panics: true},
	)

	result, err := exec.Execute(ctx, tradeSignal(), tradeDecision())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	resp := result.Results["beta"]
	if resp.Status != models.FillStatusRejected {
		t.Fatalf("expected rejected response from panicking broker, got %s", resp.Status)
	}
	if !strings.Contains(resp.Error, "broker panic") {
		t.Fatalf("expected panic captured in error, got %q", resp.Error)
	}
	if result.Results["alpha"].Status != models.FillStatusFilled {
		t.Fatal("healthy broker should still fill")
	}
}

func TestExecuteRejectsNonTradeDecision(t *testing.T) {
	exec, _, _ := newTestExecutor(t, repository.NewMemoryStore(), &stubBroker{name: "alpha"})
	d := tradeDecision()
	d.Decision = models.DecisionReject
	_, err := exec.Execute(context.Background(), tradeSignal(), d)
	assertAppError(t, err, http.StatusBadRequest, "ERR_BAD_REQUEST")
}

func TestExecuteRequiresBrokers(t *testing.T) {
	exec, _, _ := newTestExecutor(t, repository.NewMemoryStore())
	_, err := exec.Execute(context.Background(), tradeSignal(), tradeDecision())
	assertAppError(t, err, http.StatusInternalServerError, "ERR_INTERNAL")
}

func TestBuildOrderRequestSizesFromNotional(t *testing.T) {
	exec, _, _ := newTestExecutor(t, repository.NewMemoryStore())
	s := tradeSignal()
	s.Action = "sell"
	s.EntryPrice = 250
	s.PositionSize = 1000

	req, err := exec.buildOrderRequest(s, tradeDecision())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if req.Quantity != 4 {
		t.Fatalf("expected floor(1000/250)=4, got %d", req.Quantity)
	}
	if req.Side != models.OrderSideSell {
		t.Fatalf("expected sell side, got %s", req.Side)
	}
	if !req.Price.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("expected price 250, got %s", req.Price)
	}
	if req.Option != nil {
		t.Fatal("stock order should carry no option leg")
	}
}

func TestBuildOrderRequestPrefersDecisionQuantity(t *testing.T) {
	exec, _, _ := newTestExecutor(t, repository.NewMemoryStore())
	d := tradeDecision()
	d.Quantity = 7

	req, err := exec.buildOrderRequest(tradeSignal(), d)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if req.Quantity != 7 {
		t.Fatalf("expected decision quantity 7, got %d", req.Quantity)
	}
}

func TestBuildOrderRequestZeroQuantityFails(t *testing.T) {
	exec, _, _ := newTestExecutor(t, repository.NewMemoryStore())
	s := tradeSignal()
	s.EntryPrice = 100
	s.PositionSize = 50

	_, err := exec.buildOrderRequest(s, tradeDecision())
	assertAppError(t, err, http.StatusBadRequest, "ERR_BAD_REQUEST")
}

func TestBuildOrderRequestOptionDefaults(t *testing.T) {
	exec, _, _ := newTestExecutor(t, repository.NewMemoryStore())
	s := tradeSignal()
	s.InstrumentType = models.InstrumentCall

	req, err := exec.buildOrderRequest(s, tradeDecision())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if req.Option == nil {
		t.Fatal("expected option leg for call instrument")
	}
	if req.Option.Type != models.InstrumentCall {
		t.Fatalf("expected call leg, got %s", req.Option.Type)
	}
	if req.Option.Strike != s.EntryPrice {
		t.Fatalf("expected strike defaulted to entry price, got %v", req.Option.Strike)
	}
	if req.Option.Expiration.Weekday() != time.Friday {
		t.Fatalf("expected Friday expiration, got %s", req.Option.Expiration.Weekday())
	}
	if req.Option.Expiration.Hour() != 16 {
		t.Fatalf("expected 16:00 expiration, got %d", req.Option.Expiration.Hour())
	}
	if !req.Option.Expiration.After(time.Now()) {
		t.Fatal("expiration must be in the future")
	}
}

func TestNextFriday(t *testing.T) {
	wed := time.Date(2026, time.August, 26, 9, 30, 0, 0, time.UTC)
	got := nextFriday(wed)
	want := time.Date(2026, time.August, 28, 16, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("from Wednesday: expected %v, got %v", want, got)
	}

	fri := time.Date(2026, time.August, 28, 10, 0, 0, 0, time.UTC)
	got = nextFriday(fri)
	want = time.Date(2026, time.September, 4, 16, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("from Friday: expected roll to %v, got %v", want, got)
	}
}
