package analytics

import (
	"context"
	"time"

	"SigFlow/internal/domain/models"
)

// HTTPEnricher calls the external enrichment service for market context on a
// signal. It retries transient failures before giving up; the pipeline's own
// retry policy handles the rest.
type HTTPEnricher struct {
	base *HTTPServiceBase
}

// NewHTTPEnricher creates the enrichment client.
func NewHTTPEnricher(baseURL string, timeout time.Duration) *HTTPEnricher {
	return &HTTPEnricher{base: NewHTTPServiceBase(baseURL, timeout)}
}

// Enrich fetches enrichment data for one signal.
func (e *HTTPEnricher) Enrich(ctx context.Context, signalID string) (*models.EnrichmentResult, error) {
	payload := map[string]string{"signal_id": signalID}
	var out models.EnrichmentResult
	if err := e.base.PostJSONWithRetry(ctx, "/enrich", payload, &out, 2); err != nil {
		return nil, err
	}
	if out.SignalID == "" {
		out.SignalID = signalID
	}
	if out.EnrichedAt.IsZero() {
		out.EnrichedAt = time.Now()
	}
	return &out, nil
}

// StaticEnricher returns a fixed-quality enrichment without external calls.
// Used when no enrichment service is configured.
type StaticEnricher struct {
	Quality float64
}

func (e *StaticEnricher) Enrich(_ context.Context, signalID string) (*models.EnrichmentResult, error) {
	q := e.Quality
	if q <= 0 {
		q = 1.0
	}
	return &models.EnrichmentResult{
		SignalID:    signalID,
		DataQuality: q,
		EnrichedAt:  time.Now(),
	}, nil
}
