package services

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"github.com/Zoot009/indexer-v2-backend/internal/domain"
)

func seedProjectCounters(t *testing.T, db *gorm.DB, id string, total, processed, errored int, status string) {
	t.Helper()
	p := domain.Project{
		ID: id, Name: "proj", TotalURLs: total,
		ProcessedCount: processed, ErrorCount: errored,
		Status: status,
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatal(err)
	}
}

func TestCompletion_NotYetSettled(t *testing.T) {
	db := newServiceDB(t)
	seedProjectCounters(t, db, "p1", 5, 3, 1, domain.ProjectStatusProcessing)
	svc := &CompletionService{DB: db}

	if err := svc.OnJobSettled(context.Background(), "p1"); err != nil {
		t.Fatalf("OnJobSettled: %v", err)
	}
	p := loadProject(t, db, "p1")
	if p.Status != domain.ProjectStatusProcessing {
		t.Fatalf("status = %q, want PROCESSING", p.Status)
	}
}

func TestCompletion_AllSettledCompletes(t *testing.T) {
	db := newServiceDB(t)
	seedProjectCounters(t, db, "p1", 4, 3, 1, domain.ProjectStatusProcessing)
	svc := &CompletionService{DB: db}

	if err := svc.OnJobSettled(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}
	p := loadProject(t, db, "p1")
	if p.Status != domain.ProjectStatusCompleted || p.CompletedAt == nil {
		t.Fatalf("project = %+v", p)
	}
}

func TestCompletion_AllErrorsFails(t *testing.T) {
	db := newServiceDB(t)
	seedProjectCounters(t, db, "p1", 3, 0, 3, domain.ProjectStatusProcessing)
	svc := &CompletionService{DB: db}

	if err := svc.OnJobSettled(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}
	p := loadProject(t, db, "p1")
	if p.Status != domain.ProjectStatusFailed {
		t.Fatalf("status = %q, want FAILED", p.Status)
	}
}

func TestCompletion_IdempotentAndGuarded(t *testing.T) {
	db := newServiceDB(t)
	seedProjectCounters(t, db, "p1", 2, 2, 0, domain.ProjectStatusProcessing)
	svc := &CompletionService{DB: db}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := svc.OnJobSettled(ctx, "p1"); err != nil {
			t.Fatalf("OnJobSettled #%d: %v", i, err)
		}
	}
	p := loadProject(t, db, "p1")
	if p.Status != domain.ProjectStatusCompleted {
		t.Fatalf("status = %q, want COMPLETED", p.Status)
	}
	first := p.CompletedAt

	if err := svc.OnJobSettled(ctx, "p1"); err != nil {
		t.Fatal(err)
	}
	p = loadProject(t, db, "p1")
	if p.CompletedAt == nil || !p.CompletedAt.Equal(*first) {
		t.Fatalf("completed_at changed on repeat: %v vs %v", p.CompletedAt, first)
	}
}

func TestCompletion_ZeroTotalAndMissingProject(t *testing.T) {
	db := newServiceDB(t)
	seedProjectCounters(t, db, "empty", 0, 0, 0, domain.ProjectStatusProcessing)
	svc := &CompletionService{DB: db}

	ctx := context.Background()
	if err := svc.OnJobSettled(ctx, "empty"); err != nil {
		t.Fatal(err)
	}
	if p := loadProject(t, db, "empty"); p.Status != domain.ProjectStatusProcessing {
		t.Fatalf("zero-URL project must never flip, got %q", p.Status)
	}

	// A vanished project is silently ignored.
	if err := svc.OnJobSettled(ctx, "ghost"); err != nil {
		t.Fatalf("missing project: %v", err)
	}
}
