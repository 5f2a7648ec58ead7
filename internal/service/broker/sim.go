package broker

import (
	"context"
	"fmt"
	"sync"

	"SigFlow/internal/domain/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SimBroker is an in-process paper broker. Every order fills immediately at
// the requested price. It backs local runs and acts as the paper fallback for
// HTTP brokers.
type SimBroker struct {
	name string
	cash decimal.Decimal

	mu        sync.Mutex
	orders    map[string]*models.OrderResponse
	positions map[string]*models.Position
}

// NewSimBroker creates a paper broker with the given starting cash.
func NewSimBroker(name string, cash float64) *SimBroker {
	if name == "" {
		name = "sim"
	}
	return &SimBroker{
		name:      name,
		cash:      decimal.NewFromFloat(cash),
		orders:    make(map[string]*models.OrderResponse),
		positions: make(map[string]*models.Position),
	}
}

func (s *SimBroker) Name() string { return s.name }

// PlaceOrder fills the order at the requested price.
func (s *SimBroker) PlaceOrder(_ context.Context, req *models.OrderRequest) (*models.OrderResponse, error) {
	if req == nil || req.Quantity <= 0 {
		return nil, fmt.Errorf("sim broker: invalid order")
	}

	resp := &models.OrderResponse{
		Broker:      s.name,
		OrderID:     uuid.NewString(),
		Status:      models.FillStatusFilled,
		FilledQty:   req.Quantity,
		FilledPrice: req.Price,
		Simulated:   true,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[resp.OrderID] = resp

	qty := req.Quantity
	if req.Side == models.OrderSideSell {
		qty = -qty
	}
	pos, ok := s.positions[req.Ticker]
	if !ok {
		pos = &models.Position{Broker: s.name, Ticker: req.Ticker, AvgPrice: req.Price}
		s.positions[req.Ticker] = pos
	}
	pos.Quantity += qty
	if pos.Quantity == 0 {
		delete(s.positions, req.Ticker)
	}

	notional := req.Price.Mul(decimal.NewFromInt(req.Quantity))
	if req.Side == models.OrderSideBuy {
		s.cash = s.cash.Sub(notional)
	} else {
		s.cash = s.cash.Add(notional)
	}
	return resp, nil
}

func (s *SimBroker) GetOrderStatus(_ context.Context, orderID string) (*models.OrderResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("sim broker: order %s not found", orderID)
	}
	out := *resp
	return &out, nil
}

// CancelOrder always reports false: fills are immediate, nothing is pending.
func (s *SimBroker) CancelOrder(_ context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[orderID]; !ok {
		return false, fmt.Errorf("sim broker: order %s not found", orderID)
	}
	return false, nil
}

func (s *SimBroker) GetPositions(_ context.Context) ([]models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p)
	}
	return out, nil
}

func (s *SimBroker) GetAccountInfo(_ context.Context) (*models.AccountInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &models.AccountInfo{
		Broker:      s.name,
		Cash:        s.cash,
		BuyingPower: s.cash,
		Paper:       true,
	}, nil
}
