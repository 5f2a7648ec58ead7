package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"SigFlow/internal/domain/models"
)

func TestStaticEnricherDefaultsQuality(t *testing.T) {
	e := &StaticEnricher{}
	res, err := e.Enrich(context.Background(), "sig-1")
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if res.SignalID != "sig-1" || res.DataQuality != 1.0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.EnrichedAt.IsZero() {
		t.Fatal("expected enrichment timestamp")
	}
}

func TestRuleDecisionEngine(t *testing.T) {
	e := &RuleDecisionEngine{MinQuality: 0.5}
	signal := &models.Signal{ID: "sig-1"}

	d, err := e.Decide(context.Background(), signal, &models.EnrichmentResult{SignalID: "sig-1", DataQuality: 0.8}, nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Decision != models.DecisionTrade || d.Confidence != 0.8 {
		t.Fatalf("expected trade at quality 0.8, got %+v", d)
	}

	d, err = e.Decide(context.Background(), signal, &models.EnrichmentResult{SignalID: "sig-1", DataQuality: 0.3}, nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Decision != models.DecisionReject {
		t.Fatalf("expected reject at quality 0.3, got %s", d.Decision)
	}

	d, err = e.Decide(context.Background(), signal, nil, nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Decision != models.DecisionReject {
		t.Fatalf("expected reject without enrichment, got %s", d.Decision)
	}
}

func TestHTTPEnricherRetriesTransientFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		var in map[string]string
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(&models.EnrichmentResult{
			SignalID:    in["signal_id"],
			DataQuality: 0.75,
		})
	}))
	defer srv.Close()

	e := NewHTTPEnricher(srv.URL, time.Second)
	res, err := e.Enrich(context.Background(), "sig-1")
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if res.SignalID != "sig-1" || res.DataQuality != 0.75 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.EnrichedAt.IsZero() {
		t.Fatal("expected backfilled enrichment timestamp")
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected retry after 503, got %d calls", calls)
	}
}

func TestHTTPEnricherGivesUpAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewHTTPEnricher(srv.URL, time.Second)
	if _, err := e.Enrich(context.Background(), "sig-1"); err == nil {
		t.Fatal("expected error when the service stays down")
	}
}

func TestHTTPDecisionEngineBackfillsIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in decideRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if in.Signal == nil || in.Signal.ID != "sig-1" {
			t.Errorf("signal not forwarded: %+v", in.Signal)
		}
		if in.Rules == nil || in.Rules.Name != "default" {
			t.Errorf("rules not forwarded: %+v", in.Rules)
		}
		json.NewEncoder(w).Encode(&models.Decision{Decision: models.DecisionTrade, Confidence: 0.9})
	}))
	defer srv.Close()

	e := NewHTTPDecisionEngine(srv.URL, time.Second)
	d, err := e.Decide(context.Background(),
		&models.Signal{ID: "sig-1", Ticker: "AAPL"},
		&models.EnrichmentResult{SignalID: "sig-1", DataQuality: 0.8},
		&models.RuleSet{Name: "default"},
	)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Decision != models.DecisionTrade {
		t.Fatalf("expected trade, got %s", d.Decision)
	}
	if d.ID == "" || d.SignalID != "sig-1" || d.CreatedAt.IsZero() {
		t.Fatalf("identity not backfilled: %+v", d)
	}
}
