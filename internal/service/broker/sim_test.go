package broker

import (
	"context"
	"testing"

	"SigFlow/internal/domain/models"

	"github.com/shopspring/decimal"
)

func TestSimBrokerFillsImmediately(t *testing.T) {
	ctx := context.Background()
	b := NewSimBroker("paper", 1000)

	resp, err := b.PlaceOrder(ctx, &models.OrderRequest{
		TradeID:  "t-1",
		Ticker:   "AAPL",
		Side:     models.OrderSideBuy,
		Quantity: 10,
		Price:    decimal.NewFromInt(50),
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if resp.Status != models.FillStatusFilled || !resp.Simulated {
		t.Fatalf("expected simulated fill, got %+v", resp)
	}
	if resp.FilledQty != 10 || !resp.FilledPrice.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("unexpected fill %+v", resp)
	}

	acct, err := b.GetAccountInfo(ctx)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if !acct.Cash.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected cash 500 after buy, got %s", acct.Cash)
	}
	if !acct.Paper {
		t.Fatal("sim account must report paper")
	}

	positions, err := b.GetPositions(ctx)
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if len(positions) != 1 || positions[0].Quantity != 10 {
		t.Fatalf("expected one position of 10, got %+v", positions)
	}
}

func TestSimBrokerSellFlattensPosition(t *testing.T) {
	ctx := context.Background()
	b := NewSimBroker("paper", 1000)

	buy := &models.OrderRequest{Ticker: "AAPL", Side: models.OrderSideBuy, Quantity: 10, Price: decimal.NewFromInt(50)}
	if _, err := b.PlaceOrder(ctx, buy); err != nil {
		t.Fatalf("buy: %v", err)
	}
	sell := &models.OrderRequest{Ticker: "AAPL", Side: models.OrderSideSell, Quantity: 10, Price: decimal.NewFromInt(50)}
	if _, err := b.PlaceOrder(ctx, sell); err != nil {
		t.Fatalf("sell: %v", err)
	}

	positions, err := b.GetPositions(ctx)
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if len(positions) != 0 {
		t.Fatalf("expected flat book, got %+v", positions)
	}
	acct, _ := b.GetAccountInfo(ctx)
	if !acct.Cash.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected cash restored to 1000, got %s", acct.Cash)
	}
}

func TestSimBrokerOrderLookupAndCancel(t *testing.T) {
	ctx := context.Background()
	b := NewSimBroker("paper", 1000)

	resp, err := b.PlaceOrder(ctx, &models.OrderRequest{Ticker: "AAPL", Side: models.OrderSideBuy, Quantity: 1, Price: decimal.NewFromInt(10)})
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	got, err := b.GetOrderStatus(ctx, resp.OrderID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got.Status != models.FillStatusFilled {
		t.Fatalf("expected filled, got %s", got.Status)
	}

	cancelled, err := b.CancelOrder(ctx, resp.OrderID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled {
		t.Fatal("immediate fills can never be cancelled")
	}
	if _, err := b.CancelOrder(ctx, "missing"); err == nil {
		t.Fatal("expected error for unknown order")
	}
}

func TestSimBrokerRejectsInvalidOrder(t *testing.T) {
	b := NewSimBroker("paper", 1000)
	if _, err := b.PlaceOrder(context.Background(), &models.OrderRequest{Ticker: "AAPL", Quantity: 0}); err == nil {
		t.Fatal("expected error for zero quantity")
	}
}
