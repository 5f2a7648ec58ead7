package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"SigFlow/internal/domain/models"
	"SigFlow/internal/domain/repository"
)

// MemoryStore is the canonical in-process store. It backs every store
// contract the pipeline consumes and doubles as the test store. All state is
// lost on restart; the queue's ephemerality makes the same trade-off.
type MemoryStore struct {
	mu          sync.RWMutex
	signals     map[string]*models.Signal
	webhooks    map[string]*models.WebhookRequest
	stages      map[string]*models.ProcessingStage
	stagesByKey map[string]string // "{signalID}/{stage}" -> stage row id
	stageOrder  map[string][]string
	snapshots   []*models.SystemMetrics
	alerts      map[string]*models.SystemAlert
	alertOrder  []string
	decisions   map[string]*models.Decision // keyed by signal id
	trades      map[string]*models.TradeRecord
	tradeOrder  []string
	enrichments map[string]*models.EnrichmentResult
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		signals:     make(map[string]*models.Signal),
		webhooks:    make(map[string]*models.WebhookRequest),
		stages:      make(map[string]*models.ProcessingStage),
		stagesByKey: make(map[string]string),
		stageOrder:  make(map[string][]string),
		alerts:      make(map[string]*models.SystemAlert),
		decisions:   make(map[string]*models.Decision),
		trades:      make(map[string]*models.TradeRecord),
		enrichments: make(map[string]*models.EnrichmentResult),
	}
}

func stageKey(signalID, stage string) string { return signalID + "/" + stage }

// --- SignalStore ---

func (m *MemoryStore) CreateSignal(_ context.Context, s *models.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.signals[s.ID]; ok {
		return repository.ErrConflict
	}
	cp := *s
	m.signals[s.ID] = &cp
	return nil
}

func (m *MemoryStore) GetSignal(_ context.Context, id string) (*models.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.signals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) UpdateSignalStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.signals[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) CountSignalsSince(_ context.Context, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.signals {
		if !s.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// --- WebhookStore ---

func (m *MemoryStore) CreateWebhook(_ context.Context, w *models.WebhookRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.webhooks[w.ID]; ok {
		return repository.ErrConflict
	}
	cp := *w
	m.webhooks[w.ID] = &cp
	return nil
}

func (m *MemoryStore) GetWebhook(_ context.Context, id string) (*models.WebhookRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.webhooks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *MemoryStore) UpdateWebhook(_ context.Context, id string, upd *models.WebhookUpdate) (*models.WebhookRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.webhooks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if upd.SignalID != nil {
		w.SignalID = *upd.SignalID
	}
	if upd.Status != nil {
		w.Status = *upd.Status
	}
	if upd.ProcessingMS != nil {
		w.ProcessingMS = *upd.ProcessingMS
	}
	if upd.ErrorMessage != nil {
		w.ErrorMessage = *upd.ErrorMessage
	}
	if upd.ErrorStack != nil {
		w.ErrorStack = *upd.ErrorStack
	}
	cp := *w
	return &cp, nil
}

func (m *MemoryStore) QueryWebhooks(_ context.Context, f *models.WebhookFilter) ([]*models.WebhookRequest, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*models.WebhookRequest, 0, len(m.webhooks))
	for _, w := range m.webhooks {
		if !matchWebhook(w, f) {
			continue
		}
		cp := *w
		matched = append(matched, &cp)
	}
	// Newest first, stable tiebreak on ID for deterministic pagination.
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := f.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if f.Limit > 0 && start+f.Limit < end {
		end = start + f.Limit
	}
	return matched[start:end], total, nil
}

func matchWebhook(w *models.WebhookRequest, f *models.WebhookFilter) bool {
	if f == nil {
		return true
	}
	if !f.From.IsZero() && w.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && w.CreatedAt.After(f.To) {
		return false
	}
	if f.Status != "" && w.Status != f.Status {
		return false
	}
	if f.SourceIP != "" && !strings.HasPrefix(w.SourceIP, f.SourceIP) {
		return false
	}
	if f.SignalID != "" && w.SignalID != f.SignalID {
		return false
	}
	if f.MinPayloadSize > 0 && w.PayloadSize < f.MinPayloadSize {
		return false
	}
	if f.MinDurationMS > 0 && w.ProcessingMS < f.MinDurationMS {
		return false
	}
	return true
}

func (m *MemoryStore) CountWebhooksSince(_ context.Context, since time.Time, status string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, w := range m.webhooks {
		if w.CreatedAt.Before(since) {
			continue
		}
		if status != "" && w.Status != status {
			continue
		}
		n++
	}
	return n, nil
}

func (m *MemoryStore) AvgProcessingSince(_ context.Context, since time.Time) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum, n int64
	for _, w := range m.webhooks {
		if w.CreatedAt.Before(since) {
			continue
		}
		sum += w.ProcessingMS
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return float64(sum) / float64(n), nil
}

// --- StageStore ---

func (m *MemoryStore) CreateStage(_ context.Context, s *models.ProcessingStage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := stageKey(s.SignalID, s.Stage)
	if _, ok := m.stagesByKey[key]; ok {
		return repository.ErrConflict
	}
	cp := *s
	m.stages[s.ID] = &cp
	m.stagesByKey[key] = s.ID
	m.stageOrder[s.SignalID] = append(m.stageOrder[s.SignalID], s.ID)
	return nil
}

func (m *MemoryStore) GetStage(_ context.Context, id string) (*models.ProcessingStage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) GetStageBySignal(_ context.Context, signalID, stage string) (*models.ProcessingStage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.stagesByKey[stageKey(signalID, stage)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m.stages[id]
	return &cp, nil
}

func (m *MemoryStore) UpdateStage(_ context.Context, s *models.ProcessingStage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stages[s.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *s
	m.stages[s.ID] = &cp
	return nil
}

func (m *MemoryStore) ListStagesBySignal(_ context.Context, signalID string) ([]*models.ProcessingStage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.stageOrder[signalID]
	out := make([]*models.ProcessingStage, 0, len(ids))
	for _, id := range ids {
		cp := *m.stages[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) CountStagesByStatus(_ context.Context, status string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.stages {
		if s.Status == status {
			n++
		}
	}
	return n, nil
}

// --- MetricsStore ---

func (m *MemoryStore) AppendSnapshot(_ context.Context, snap *models.SystemMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *snap
	m.snapshots = append(m.snapshots, &cp)
	return nil
}

func (m *MemoryStore) LatestSnapshot(_ context.Context) (*models.SystemMetrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.snapshots) == 0 {
		return nil, repository.ErrNotFound
	}
	cp := *m.snapshots[len(m.snapshots)-1]
	return &cp, nil
}

func (m *MemoryStore) SnapshotsSince(_ context.Context, since time.Time) ([]*models.SystemMetrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.SystemMetrics, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		if s.Timestamp.Before(since) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

// --- AlertStore ---

func (m *MemoryStore) CreateAlert(_ context.Context, a *models.SystemAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alerts[a.ID]; ok {
		return repository.ErrConflict
	}
	cp := *a
	m.alerts[a.ID] = &cp
	m.alertOrder = append(m.alertOrder, a.ID)
	return nil
}

func (m *MemoryStore) GetAlert(_ context.Context, id string) (*models.SystemAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) UpdateAlert(_ context.Context, a *models.SystemAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alerts[a.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *a
	m.alerts[a.ID] = &cp
	return nil
}

func (m *MemoryStore) QueryAlerts(_ context.Context, f *models.AlertFilter) ([]*models.SystemAlert, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*models.SystemAlert, 0, len(m.alertOrder))
	// alertOrder is append-order; walk backwards for newest-first.
	for i := len(m.alertOrder) - 1; i >= 0; i-- {
		a := m.alerts[m.alertOrder[i]]
		if f != nil {
			if f.Severity != "" && a.Severity != f.Severity {
				continue
			}
			if f.Category != "" && a.Category != f.Category {
				continue
			}
			if f.Unresolved && a.Resolved {
				continue
			}
			if !f.CreatedAfter.IsZero() && a.CreatedAt.Before(f.CreatedAfter) {
				continue
			}
		}
		cp := *a
		matched = append(matched, &cp)
	}

	total := int64(len(matched))
	start, end := 0, len(matched)
	if f != nil {
		start = f.Offset
		if start > len(matched) {
			start = len(matched)
		}
		if f.Limit > 0 && start+f.Limit < end {
			end = start + f.Limit
		}
	}
	return matched[start:end], total, nil
}

func (m *MemoryStore) LatestAlertByCategory(_ context.Context, category string) (*models.SystemAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.alertOrder) - 1; i >= 0; i-- {
		a := m.alerts[m.alertOrder[i]]
		if a.Category == category {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

// --- DecisionStore ---

func (m *MemoryStore) CreateDecision(_ context.Context, d *models.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.decisions[d.SignalID] = &cp
	return nil
}

func (m *MemoryStore) GetDecisionBySignal(_ context.Context, signalID string) (*models.Decision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.decisions[signalID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) CountDecisionsSince(_ context.Context, since time.Time, outcome string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, d := range m.decisions {
		if d.CreatedAt.Before(since) {
			continue
		}
		if outcome != "" && d.Decision != outcome {
			continue
		}
		n++
	}
	return n, nil
}

// --- TradeStore ---

func (m *MemoryStore) CreateTrade(_ context.Context, t *models.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trades[t.ID]; ok {
		return repository.ErrConflict
	}
	cp := *t
	m.trades[t.ID] = &cp
	m.tradeOrder = append(m.tradeOrder, t.ID)
	return nil
}

func (m *MemoryStore) ListTradesBySignal(_ context.Context, signalID string) ([]*models.TradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.TradeRecord, 0, 4)
	for _, id := range m.tradeOrder {
		t := m.trades[id]
		if t.SignalID != signalID {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) CountTradesSince(_ context.Context, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, t := range m.trades {
		if !t.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// --- EnrichmentStore ---

func (m *MemoryStore) SaveEnrichment(_ context.Context, e *models.EnrichmentResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.enrichments[e.SignalID] = &cp
	return nil
}

func (m *MemoryStore) GetEnrichment(_ context.Context, signalID string) (*models.EnrichmentResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.enrichments[signalID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}
