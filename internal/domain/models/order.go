package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order sides and fill statuses reported by broker adapters.
const (
	OrderSideBuy  = "buy"
	OrderSideSell = "sell"

	FillStatusFilled   = "filled"
	FillStatusPending  = "pending"
	FillStatusRejected = "rejected"
)

// Trade row statuses. A trade row is OPEN only when its broker reported a
// fill; everything else lands as CANCELLED.
const (
	TradeStatusOpen      = "OPEN"
	TradeStatusCancelled = "CANCELLED"
	TradeStatusClosed    = "CLOSED"
)

// OptionLeg describes the option contract attached to non-stock orders.
type OptionLeg struct {
	Type       string    `json:"type"` // call | put
	Strike     float64   `json:"strike"`
	Expiration time.Time `json:"expiration"`
}

// OrderRequest is one order built from a signal and its decision, submitted
// identically to every configured broker adapter.
type OrderRequest struct {
	TradeID  string          `json:"trade_id"`
	SignalID string          `json:"signal_id"`
	Ticker   string          `json:"ticker"`
	Side     string          `json:"side"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Option   *OptionLeg      `json:"option,omitempty"`
}

// OrderResponse is one broker adapter's outcome for an order request.
type OrderResponse struct {
	Broker      string          `json:"broker"`
	OrderID     string          `json:"order_id,omitempty"`
	Status      string          `json:"status"` // filled | pending | rejected
	FilledQty   int64           `json:"filled_qty"`
	FilledPrice decimal.Decimal `json:"filled_price"`
	Error       string          `json:"error,omitempty"`
	Simulated   bool            `json:"simulated,omitempty"`
}

// TradeRecord is one persisted trade row per broker outcome. Rows are
// independent facts; one broker's failure does not roll back others.
// Price is the requested order price, identical across the rows of one
// trade; FilledPrice carries the broker's actual fill when it differs.
type TradeRecord struct {
	ID          string          `json:"id"` // "{tradeID}-{broker}"
	TradeID     string          `json:"trade_id"`
	SignalID    string          `json:"signal_id"`
	Broker      string          `json:"broker"`
	Ticker      string          `json:"ticker"`
	Side        string          `json:"side"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	FilledPrice decimal.Decimal `json:"filled_price,omitempty"`
	Status      string          `json:"status"`
	OrderID     string          `json:"order_id,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ExecutionResult is the multi-broker outcome for one logical trade.
type ExecutionResult struct {
	TradeID string                   `json:"trade_id"`
	Results map[string]OrderResponse `json:"results"` // keyed by broker name
}

// SuccessfulBrokers counts fills across the result set.
func (r *ExecutionResult) SuccessfulBrokers() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == FillStatusFilled {
			n++
		}
	}
	return n
}

// Position is an open position reported by a broker adapter.
type Position struct {
	Broker   string          `json:"broker"`
	Ticker   string          `json:"ticker"`
	Quantity int64           `json:"quantity"`
	AvgPrice decimal.Decimal `json:"avg_price"`
}

// AccountInfo is the account summary reported by a broker adapter.
type AccountInfo struct {
	Broker      string          `json:"broker"`
	Cash        decimal.Decimal `json:"cash"`
	BuyingPower decimal.Decimal `json:"buying_power"`
	Paper       bool            `json:"paper"`
}
