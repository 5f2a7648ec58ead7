package analytics

import (
	"context"
	"time"

	"SigFlow/internal/domain/models"

	"github.com/google/uuid"
)

// HTTPDecisionEngine calls the external decision service with the signal, its
// enrichment, and the active rule set.
type HTTPDecisionEngine struct {
	base *HTTPServiceBase
}

// NewHTTPDecisionEngine creates the decision client.
func NewHTTPDecisionEngine(baseURL string, timeout time.Duration) *HTTPDecisionEngine {
	return &HTTPDecisionEngine{base: NewHTTPServiceBase(baseURL, timeout)}
}

type decideRequest struct {
	Signal     *models.Signal           `json:"signal"`
	Enrichment *models.EnrichmentResult `json:"enrichment,omitempty"`
	Rules      *models.RuleSet          `json:"rules,omitempty"`
}

// Decide asks the decision service for a verdict on one signal.
func (e *HTTPDecisionEngine) Decide(ctx context.Context, signal *models.Signal, enriched *models.EnrichmentResult, rules *models.RuleSet) (*models.Decision, error) {
	var out models.Decision
	req := &decideRequest{Signal: signal, Enrichment: enriched, Rules: rules}
	if err := e.base.PostJSONWithRetry(ctx, "/decide", req, &out, 2); err != nil {
		return nil, err
	}
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.SignalID == "" {
		out.SignalID = signal.ID
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now()
	}
	return &out, nil
}

// RuleDecisionEngine is the in-process fallback engine used when no decision
// service is configured: trade anything with usable enrichment data, reject
// the rest.
type RuleDecisionEngine struct {
	MinQuality float64
}

func (e *RuleDecisionEngine) Decide(_ context.Context, signal *models.Signal, enriched *models.EnrichmentResult, _ *models.RuleSet) (*models.Decision, error) {
	minQ := e.MinQuality
	if minQ <= 0 {
		minQ = 0.5
	}

	d := &models.Decision{
		ID:        uuid.NewString(),
		SignalID:  signal.ID,
		CreatedAt: time.Now(),
	}
	if enriched == nil || enriched.DataQuality < minQ {
		d.Decision = models.DecisionReject
		d.Confidence = 0
		d.Reasoning = "insufficient enrichment quality"
		return d, nil
	}
	d.Decision = models.DecisionTrade
	d.Confidence = enriched.DataQuality
	d.Reasoning = "enrichment quality above threshold"
	return d, nil
}
