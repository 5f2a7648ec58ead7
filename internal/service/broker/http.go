package broker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"SigFlow/internal/domain/models"
	xhttp "SigFlow/pkg/http"
	applogger "SigFlow/pkg/logger"
)

// HTTPBroker talks to an external broker gateway over its JSON API. When the
// gateway is unreachable and paper fallback is enabled, orders fill through
// an embedded SimBroker instead of failing the whole execution.
type HTTPBroker struct {
	name    string
	baseURL string
	apiKey  string
	client  *xhttp.Client
	paper   *SimBroker
	l       *applogger.Logger
}

// HTTPBrokerOption configures the adapter.
type HTTPBrokerOption func(*HTTPBroker)

// WithAPIKey sets the gateway auth token.
func WithAPIKey(key string) HTTPBrokerOption {
	return func(b *HTTPBroker) { b.apiKey = key }
}

// WithPaperFallback enables simulated fills when the gateway is down.
func WithPaperFallback(cash float64) HTTPBrokerOption {
	return func(b *HTTPBroker) { b.paper = NewSimBroker(b.name+"-paper", cash) }
}

// WithRequestTimeout sets the per-request timeout.
func WithRequestTimeout(d time.Duration) HTTPBrokerOption {
	return func(b *HTTPBroker) {
		if d > 0 {
			b.client = xhttp.NewClient(xhttp.WithTimeout(d))
		}
	}
}

// NewHTTPBroker creates an adapter for one broker gateway.
func NewHTTPBroker(name, baseURL string, l *applogger.Logger, opts ...HTTPBrokerOption) *HTTPBroker {
	b := &HTTPBroker{
		name:    name,
		baseURL: baseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(10 * time.Second)),
		l:       l,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *HTTPBroker) Name() string { return b.name }

func (b *HTTPBroker) headers() map[string]string {
	h := map[string]string{"Content-Type": "application/json"}
	if b.apiKey != "" {
		h["Authorization"] = "Bearer " + b.apiKey
	}
	return h
}

// PlaceOrder submits the order to the gateway, falling back to a paper fill
// when configured and the gateway cannot be reached.
func (b *HTTPBroker) PlaceOrder(ctx context.Context, req *models.OrderRequest) (*models.OrderResponse, error) {
	var resp models.OrderResponse
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     b.baseURL + "/orders",
		Headers: b.headers(),
		Body:    req,
	}, &resp)
	if err == nil {
		if resp.Broker == "" {
			resp.Broker = b.name
		}
		return &resp, nil
	}

	if b.paper != nil {
		if b.l != nil {
			b.l.Warn("broker gateway unreachable, paper fill",
				applogger.String("broker", b.name),
				applogger.Error(err),
			)
		}
		out, pErr := b.paper.PlaceOrder(ctx, req)
		if pErr != nil {
			return nil, pErr
		}
		out.Broker = b.name
		return out, nil
	}
	return nil, fmt.Errorf("broker %s: %w", b.name, err)
}

func (b *HTTPBroker) GetOrderStatus(ctx context.Context, orderID string) (*models.OrderResponse, error) {
	var resp models.OrderResponse
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     b.baseURL + "/orders/" + orderID,
		Headers: b.headers(),
	}, &resp)
	if err != nil {
		if b.paper != nil {
			return b.paper.GetOrderStatus(ctx, orderID)
		}
		return nil, fmt.Errorf("broker %s: %w", b.name, err)
	}
	if resp.Broker == "" {
		resp.Broker = b.name
	}
	return &resp, nil
}

func (b *HTTPBroker) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	var out struct {
		Cancelled bool `json:"cancelled"`
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodDelete,
		URL:     b.baseURL + "/orders/" + orderID,
		Headers: b.headers(),
	}, &out)
	if err != nil {
		return false, fmt.Errorf("broker %s: %w", b.name, err)
	}
	return out.Cancelled, nil
}

func (b *HTTPBroker) GetPositions(ctx context.Context) ([]models.Position, error) {
	var out []models.Position
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     b.baseURL + "/positions",
		Headers: b.headers(),
		QueryParams: map[string][]string{
			"limit": {strconv.Itoa(500)},
		},
	}, &out)
	if err != nil {
		if b.paper != nil {
			return b.paper.GetPositions(ctx)
		}
		return nil, fmt.Errorf("broker %s: %w", b.name, err)
	}
	return out, nil
}

func (b *HTTPBroker) GetAccountInfo(ctx context.Context) (*models.AccountInfo, error) {
	var out models.AccountInfo
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     b.baseURL + "/account",
		Headers: b.headers(),
	}, &out)
	if err != nil {
		if b.paper != nil {
			return b.paper.GetAccountInfo(ctx)
		}
		return nil, fmt.Errorf("broker %s: %w", b.name, err)
	}
	if out.Broker == "" {
		out.Broker = b.name
	}
	return &out, nil
}
