package usecase

import (
	"context"
	"net/http"
	"testing"
	"time"

	"SigFlow/internal/domain/models"
	"SigFlow/internal/repository"
)

func newTestMonitor(t *testing.T, store *repository.MemoryStore) (*Monitor, *recorderMetrics) {
	t.Helper()
	m := newRecorderMetrics()
	return NewMonitor(store, store, store, m, newTestEmitter(m), newTestLogger(t)), m
}

func TestStartProcessingStageDuplicateIsConflict(t *testing.T) {
	ctx := context.Background()
	mon, _ := newTestMonitor(t, repository.NewMemoryStore())

	in := &StartStageInput{SignalID: "sig-1", Stage: models.StageEnriching}
	row, err := mon.StartProcessingStage(ctx, in)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	if row.Status != models.StageInProgress {
		t.Fatalf("expected %s, got %s", models.StageInProgress, row.Status)
	}

	_, err = mon.StartProcessingStage(ctx, in)
	assertAppError(t, err, http.StatusConflict, "ERR_CONFLICT")
}

func TestStartProcessingStageRejectsUnknownStage(t *testing.T) {
	mon, _ := newTestMonitor(t, repository.NewMemoryStore())
	_, err := mon.StartProcessingStage(context.Background(), &StartStageInput{SignalID: "sig-1", Stage: "shipping"})
	assertAppError(t, err, http.StatusBadRequest, "ERR_BAD_REQUEST")
}

func TestCompleteProcessingStage(t *testing.T) {
	ctx := context.Background()
	mon, _ := newTestMonitor(t, repository.NewMemoryStore())

	row, err := mon.StartProcessingStage(ctx, &StartStageInput{
		SignalID: "sig-1",
		Stage:    models.StageDeciding,
		Metadata: map[string]interface{}{"engine": "rules"},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	done, err := mon.CompleteProcessingStage(ctx, row.ID, models.StageStatusDone, map[string]interface{}{"confidence": 0.9}, "")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != models.StageStatusDone {
		t.Fatalf("expected %s, got %s", models.StageStatusDone, done.Status)
	}
	if done.CompletedAt == nil || done.DurationMS == nil {
		t.Fatalf("expected completion timestamp and duration, got %+v", done)
	}
	if *done.DurationMS < 0 {
		t.Fatalf("negative duration %d", *done.DurationMS)
	}
	if done.Metadata["engine"] != "rules" || done.Metadata["confidence"] != 0.9 {
		t.Fatalf("metadata not merged: %v", done.Metadata)
	}
}

func TestCompleteProcessingStageTwiceIsInvalidState(t *testing.T) {
	ctx := context.Background()
	mon, _ := newTestMonitor(t, repository.NewMemoryStore())

	row, err := mon.StartProcessingStage(ctx, &StartStageInput{SignalID: "sig-1", Stage: models.StageReceived})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := mon.CompleteProcessingStage(ctx, row.ID, models.StageStatusDone, nil, ""); err != nil {
		t.Fatalf("first complete: %v", err)
	}

	_, err = mon.CompleteProcessingStage(ctx, row.ID, models.StageStatusFail, nil, "boom")
	assertAppError(t, err, http.StatusUnprocessableEntity, "ERR_INVALID_STATE")
}

func TestCompleteProcessingStageNotFound(t *testing.T) {
	mon, _ := newTestMonitor(t, repository.NewMemoryStore())
	_, err := mon.CompleteProcessingStage(context.Background(), "missing", models.StageStatusDone, nil, "")
	assertAppError(t, err, http.StatusNotFound, "ERR_NOT_FOUND")
}

func TestPipelineStatusFailedStageWins(t *testing.T) {
	ctx := context.Background()
	mon, _ := newTestMonitor(t, repository.NewMemoryStore())

	first, _ := mon.StartProcessingStage(ctx, &StartStageInput{SignalID: "sig-1", Stage: models.StageReceived})
	if _, err := mon.CompleteProcessingStage(ctx, first.ID, models.StageStatusDone, nil, ""); err != nil {
		t.Fatalf("complete received: %v", err)
	}
	second, _ := mon.StartProcessingStage(ctx, &StartStageInput{SignalID: "sig-1", Stage: models.StageEnriching})
	if _, err := mon.CompleteProcessingStage(ctx, second.ID, models.StageStatusFail, nil, "upstream timeout"); err != nil {
		t.Fatalf("fail enriching: %v", err)
	}
	if _, err := mon.StartProcessingStage(ctx, &StartStageInput{SignalID: "sig-1", Stage: models.StageDeciding}); err != nil {
		t.Fatalf("start deciding: %v", err)
	}

	ps, err := mon.GetPipelineStatus(ctx, "sig-1")
	if err != nil {
		t.Fatalf("pipeline status: %v", err)
	}
	if ps.Status != models.StageStatusFail {
		t.Fatalf("expected failed, got %s", ps.Status)
	}
	if ps.CurrentStage != models.StageEnriching {
		t.Fatalf("expected current stage enriching, got %s", ps.CurrentStage)
	}
	if ps.ErrorMessage != "upstream timeout" {
		t.Fatalf("expected error message propagated, got %q", ps.ErrorMessage)
	}
	if len(ps.Stages) != 3 {
		t.Fatalf("expected 3 stages, got %d", len(ps.Stages))
	}
}

func TestPipelineStatusInProgressEstimate(t *testing.T) {
	ctx := context.Background()
	mon, _ := newTestMonitor(t, repository.NewMemoryStore())

	if _, err := mon.StartProcessingStage(ctx, &StartStageInput{SignalID: "sig-1", Stage: models.StageReceived}); err != nil {
		t.Fatalf("start: %v", err)
	}

	before := time.Now()
	ps, err := mon.GetPipelineStatus(ctx, "sig-1")
	if err != nil {
		t.Fatalf("pipeline status: %v", err)
	}
	if ps.Status != models.StageInProgress {
		t.Fatalf("expected in_progress, got %s", ps.Status)
	}
	if ps.EstimatedCompletion == nil {
		t.Fatal("expected an estimated completion time")
	}

	// No completed stages yet: 5 remaining stages at the 5000ms default.
	want := before.Add(25 * time.Second)
	diff := ps.EstimatedCompletion.Sub(want)
	if diff < -2*time.Second || diff > 2*time.Second {
		t.Fatalf("estimate %v too far from %v", ps.EstimatedCompletion, want)
	}
}

func TestPipelineStatusCompleted(t *testing.T) {
	ctx := context.Background()
	mon, _ := newTestMonitor(t, repository.NewMemoryStore())

	for _, stage := range []string{models.StageReceived, models.StageEnriching} {
		row, err := mon.StartProcessingStage(ctx, &StartStageInput{SignalID: "sig-1", Stage: stage})
		if err != nil {
			t.Fatalf("start %s: %v", stage, err)
		}
		if _, err := mon.CompleteProcessingStage(ctx, row.ID, models.StageStatusDone, nil, ""); err != nil {
			t.Fatalf("complete %s: %v", stage, err)
		}
	}

	ps, err := mon.GetPipelineStatus(ctx, "sig-1")
	if err != nil {
		t.Fatalf("pipeline status: %v", err)
	}
	if ps.Status != models.StageStatusDone {
		t.Fatalf("expected completed, got %s", ps.Status)
	}
	if ps.CurrentStage != models.StageEnriching {
		t.Fatalf("expected enriching, got %s", ps.CurrentStage)
	}
	if ps.EstimatedCompletion != nil {
		t.Fatal("completed pipeline should not carry an estimate")
	}
}

func TestPipelineStatusUnknownSignal(t *testing.T) {
	mon, _ := newTestMonitor(t, repository.NewMemoryStore())
	_, err := mon.GetPipelineStatus(context.Background(), "missing")
	assertAppError(t, err, http.StatusNotFound, "ERR_NOT_FOUND")
}

func TestRecordWebhookDefaults(t *testing.T) {
	ctx := context.Background()
	mon, _ := newTestMonitor(t, repository.NewMemoryStore())

	w, err := mon.RecordWebhook(ctx, &models.WebhookRequest{SourceIP: "10.0.0.1", PayloadSize: 42})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if w.ID == "" {
		t.Fatal("expected generated id")
	}
	if w.Status != models.WebhookStatusSuccess {
		t.Fatalf("expected default status success, got %s", w.Status)
	}

	got, err := mon.GetWebhook(ctx, w.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SourceIP != "10.0.0.1" {
		t.Fatalf("unexpected source ip %s", got.SourceIP)
	}
}

func TestHealthDegradesOnErrorRate(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	mon, _ := newTestMonitor(t, store)

	for i := 0; i < 3; i++ {
		status := models.WebhookStatusFailed
		if i == 0 {
			status = models.WebhookStatusSuccess
		}
		if _, err := mon.RecordWebhook(ctx, &models.WebhookRequest{SourceIP: "10.0.0.1", Status: status}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	h, err := mon.Health(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if h.Status != "degraded" {
		t.Fatalf("expected degraded at 2/3 failures, got %s", h.Status)
	}
	if h.Webhooks5m != 3 {
		t.Fatalf("expected 3 recent webhooks, got %d", h.Webhooks5m)
	}
}
