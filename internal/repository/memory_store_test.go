package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"SigFlow/internal/domain/models"
	"SigFlow/internal/domain/repository"
)

func TestStageUniquenessPerSignal(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := &models.ProcessingStage{ID: "st-1", SignalID: "sig-1", Stage: models.StageEnriching, Status: models.StageInProgress, StartedAt: time.Now()}
	if err := store.CreateStage(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := &models.ProcessingStage{ID: "st-2", SignalID: "sig-1", Stage: models.StageEnriching, Status: models.StageInProgress, StartedAt: time.Now()}
	if err := store.CreateStage(ctx, dup); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate (signal, stage), got %v", err)
	}

	// Same stage for a different signal is fine.
	other := &models.ProcessingStage{ID: "st-3", SignalID: "sig-2", Stage: models.StageEnriching, Status: models.StageInProgress, StartedAt: time.Now()}
	if err := store.CreateStage(ctx, other); err != nil {
		t.Fatalf("create for other signal: %v", err)
	}
}

func TestListStagesPreservesArrivalOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i, stage := range []string{models.StageReceived, models.StageEnriching, models.StageDeciding} {
		row := &models.ProcessingStage{ID: fmt.Sprintf("st-%d", i), SignalID: "sig-1", Stage: stage, Status: models.StageStatusDone, StartedAt: time.Now()}
		if err := store.CreateStage(ctx, row); err != nil {
			t.Fatalf("create %s: %v", stage, err)
		}
	}

	rows, err := store.ListStagesBySignal(ctx, "sig-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Stage != models.StageReceived || rows[2].Stage != models.StageDeciding {
		t.Fatalf("arrival order not preserved: %v %v %v", rows[0].Stage, rows[1].Stage, rows[2].Stage)
	}
}

func TestQueryWebhooksFilterAndPagination(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		status := models.WebhookStatusSuccess
		if i%2 == 1 {
			status = models.WebhookStatusFailed
		}
		w := &models.WebhookRequest{
			ID:          fmt.Sprintf("wh-%d", i),
			SourceIP:    "10.0.0.1",
			Status:      status,
			PayloadSize: 100 * (i + 1),
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.CreateWebhook(ctx, w); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	rows, total, err := store.QueryWebhooks(ctx, &models.WebhookFilter{Status: models.WebhookStatusFailed})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 2 || len(rows) != 2 {
		t.Fatalf("expected 2 failed rows, got %d/%d", len(rows), total)
	}

	// Newest first across pages.
	rows, total, err = store.QueryWebhooks(ctx, &models.WebhookFilter{Limit: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 5 || len(rows) != 2 {
		t.Fatalf("expected page of 2 from 5, got %d/%d", len(rows), total)
	}
	if rows[0].ID != "wh-4" || rows[1].ID != "wh-3" {
		t.Fatalf("unexpected page order %s, %s", rows[0].ID, rows[1].ID)
	}

	rows, _, err = store.QueryWebhooks(ctx, &models.WebhookFilter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "wh-0" {
		t.Fatalf("unexpected last page %+v", rows)
	}

	rows, _, err = store.QueryWebhooks(ctx, &models.WebhookFilter{MinPayloadSize: 400})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows at min payload 400, got %d", len(rows))
	}
}

func TestUpdateWebhookPartial(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	w := &models.WebhookRequest{ID: "wh-1", SourceIP: "10.0.0.1", Status: models.WebhookStatusSuccess, CreatedAt: time.Now()}
	if err := store.CreateWebhook(ctx, w); err != nil {
		t.Fatalf("create: %v", err)
	}

	signalID := "sig-1"
	processing := int64(125)
	got, err := store.UpdateWebhook(ctx, "wh-1", &models.WebhookUpdate{SignalID: &signalID, ProcessingMS: &processing})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.SignalID != "sig-1" || got.ProcessingMS != 125 {
		t.Fatalf("update not applied: %+v", got)
	}
	if got.Status != models.WebhookStatusSuccess {
		t.Fatalf("untouched field mutated: %s", got.Status)
	}

	if _, err := store.UpdateWebhook(ctx, "missing", &models.WebhookUpdate{}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSnapshotsSinceFiltersByTime(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	now := time.Now()
	for i := 0; i < 4; i++ {
		snap := &models.SystemMetrics{ID: fmt.Sprintf("snap-%d", i), Timestamp: now.Add(-time.Duration(i) * time.Hour)}
		if err := store.AppendSnapshot(ctx, snap); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	rows, err := store.SnapshotsSince(ctx, now.Add(-90*time.Minute))
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 recent snapshots, got %d", len(rows))
	}

	latest, err := store.LatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != "snap-3" {
		t.Fatalf("expected last appended snapshot, got %s", latest.ID)
	}
}
