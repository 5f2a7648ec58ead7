package usecase

import (
	"context"
	"fmt"
	"time"

	"SigFlow/internal/domain/models"
	domrepo "SigFlow/internal/domain/repository"
	xhttp "SigFlow/pkg/http"
	applogger "SigFlow/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// TradeExecutor submits one order per configured broker and persists one
// trade row per broker outcome. Broker failures are isolated: a panic or
// error from one adapter becomes a rejected response, never a lost result.
type TradeExecutor struct {
	brokers []domrepo.BrokerAdapter
	trades  domrepo.TradeStore
	events  domrepo.EventPublisher
	metrics domrepo.Metrics
	l       *applogger.Logger
}

// NewTradeExecutor creates the executor over the configured broker set.
func NewTradeExecutor(
	brokers []domrepo.BrokerAdapter,
	trades domrepo.TradeStore,
	events domrepo.EventPublisher,
	metrics domrepo.Metrics,
	l *applogger.Logger,
) *TradeExecutor {
	return &TradeExecutor{
		brokers: brokers,
		trades:  trades,
		events:  events,
		metrics: metrics,
		l:       l,
	}
}

// Execute builds the order from the signal and its decision, fans it out to
// every broker concurrently, records one trade row per broker, and publishes
// the execution event. It returns the per-broker outcome map.
func (t *TradeExecutor) Execute(ctx context.Context, signal *models.Signal, decision *models.Decision) (*models.ExecutionResult, error) {
	if signal == nil || decision == nil {
		return nil, xhttp.BadRequestError("signal and decision are required")
	}
	if decision.Decision != models.DecisionTrade {
		return nil, xhttp.BadRequestErrorf("decision for signal %s is %s, not %s", signal.ID, decision.Decision, models.DecisionTrade)
	}
	if len(t.brokers) == 0 {
		return nil, xhttp.InternalError("no brokers configured")
	}

	req, err := t.buildOrderRequest(signal, decision)
	if err != nil {
		return nil, err
	}

	result := &models.ExecutionResult{
		TradeID: req.TradeID,
		Results: make(map[string]models.OrderResponse, len(t.brokers)),
	}

	responses := make([]models.OrderResponse, len(t.brokers))
	g, gctx := errgroup.WithContext(ctx)
	for i, broker := range t.brokers {
		i, broker := i, broker
		g.Go(func() error {
			responses[i] = t.placeOne(gctx, broker, req)
			return nil
		})
	}
	_ = g.Wait()

	for _, resp := range responses {
		result.Results[resp.Broker] = resp
		t.metrics.RecordBrokerOrder(resp.Broker, resp.Status)
		if err := t.recordTrade(ctx, req, resp); err != nil {
			t.metrics.RecordError("trade_store")
			if t.l != nil {
				t.l.Warn("trade row persist failed",
					applogger.String("trade", req.TradeID),
					applogger.String("broker", resp.Broker),
					applogger.Error(err),
				)
			}
		}
	}

	if err := t.events.PublishTradeExecuted(ctx, result, signal.ID); err != nil {
		t.metrics.RecordError("event_publish")
		if t.l != nil {
			t.l.Warn("trade event publish failed", applogger.String("trade", req.TradeID), applogger.Error(err))
		}
	}

	if t.l != nil {
		t.l.Info("trade executed",
			applogger.String("trade", req.TradeID),
			applogger.String("signal", signal.ID),
			applogger.String("ticker", req.Ticker),
			applogger.Int("fills", result.SuccessfulBrokers()),
			applogger.Int("brokers", len(t.brokers)),
		)
	}
	return result, nil
}

// placeOne submits to a single broker, converting panics and errors into a
// synthetic rejected response so every broker always has an outcome.
func (t *TradeExecutor) placeOne(ctx context.Context, broker domrepo.BrokerAdapter, req *models.OrderRequest) (resp models.OrderResponse) {
	defer func() {
		if r := recover(); r != nil {
			resp = models.OrderResponse{
				Broker: broker.Name(),
				Status: models.FillStatusRejected,
				Error:  fmt.Sprintf("broker panic: %v", r),
			}
		}
	}()

	out, err := broker.PlaceOrder(ctx, req)
	if err != nil {
		return models.OrderResponse{
			Broker: broker.Name(),
			Status: models.FillStatusRejected,
			Error:  err.Error(),
		}
	}
	if out == nil {
		return models.OrderResponse{
			Broker: broker.Name(),
			Status: models.FillStatusRejected,
			Error:  "broker returned no response",
		}
	}
	if out.Broker == "" {
		out.Broker = broker.Name()
	}
	return *out
}

// buildOrderRequest derives the order from the signal and decision. Quantity
// comes from the decision when set, otherwise floor(positionSize/entryPrice).
func (t *TradeExecutor) buildOrderRequest(signal *models.Signal, decision *models.Decision) (*models.OrderRequest, error) {
	qty := decision.Quantity
	if qty <= 0 {
		if signal.EntryPrice <= 0 {
			return nil, xhttp.BadRequestErrorf("signal %s has no entry price to size against", signal.ID)
		}
		qty = decimal.NewFromFloat(signal.PositionSize).
			Div(decimal.NewFromFloat(signal.EntryPrice)).
			Floor().
			IntPart()
	}
	if qty <= 0 {
		return nil, xhttp.BadRequestErrorf("signal %s sizes to zero quantity", signal.ID)
	}

	side := models.OrderSideBuy
	if signal.Action == "sell" {
		side = models.OrderSideSell
	}

	req := &models.OrderRequest{
		TradeID:  uuid.NewString(),
		SignalID: signal.ID,
		Ticker:   signal.Ticker,
		Side:     side,
		Quantity: qty,
		Price:    decimal.NewFromFloat(signal.EntryPrice),
	}

	if signal.InstrumentType == models.InstrumentCall || signal.InstrumentType == models.InstrumentPut {
		exp := decision.Expiration
		if exp.IsZero() {
			exp = nextFriday(time.Now())
		}
		strike := decision.Strike
		if strike <= 0 {
			strike = signal.EntryPrice
		}
		req.Option = &models.OptionLeg{
			Type:       signal.InstrumentType,
			Strike:     strike,
			Expiration: exp,
		}
	}
	return req, nil
}

// recordTrade persists one trade row for a broker outcome. The row is OPEN
// only on a fill. Quantity and price always come from the request so the
// rows of one trade stay identical; the broker's own fill price is kept
// separately.
func (t *TradeExecutor) recordTrade(ctx context.Context, req *models.OrderRequest, resp models.OrderResponse) error {
	status := models.TradeStatusCancelled
	if resp.Status == models.FillStatusFilled {
		status = models.TradeStatusOpen
	}

	return t.trades.CreateTrade(ctx, &models.TradeRecord{
		ID:          fmt.Sprintf("%s-%s", req.TradeID, resp.Broker),
		TradeID:     req.TradeID,
		SignalID:    req.SignalID,
		Broker:      resp.Broker,
		Ticker:      req.Ticker,
		Side:        req.Side,
		Quantity:    req.Quantity,
		Price:       req.Price,
		FilledPrice: resp.FilledPrice,
		Status:      status,
		OrderID:     resp.OrderID,
		Error:       resp.Error,
		CreatedAt:   time.Now(),
	})
}

// TradesBySignal lists the persisted trade rows for one signal.
func (t *TradeExecutor) TradesBySignal(ctx context.Context, signalID string) ([]*models.TradeRecord, error) {
	rows, err := t.trades.ListTradesBySignal(ctx, signalID)
	if err != nil {
		return nil, xhttp.DatabaseError(err)
	}
	return rows, nil
}

// nextFriday returns the upcoming Friday at market close (16:00 local). A
// Friday input rolls to the following week.
func nextFriday(from time.Time) time.Time {
	days := (int(time.Friday) - int(from.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	d := from.AddDate(0, 0, days)
	return time.Date(d.Year(), d.Month(), d.Day(), 16, 0, 0, 0, d.Location())
}
