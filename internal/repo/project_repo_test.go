package repo

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/Zoot009/indexer-v2-backend/internal/domain"
)

func seedProject(t *testing.T, db *gorm.DB, id string, total int, status string) {
	t.Helper()
	p := domain.Project{ID: id, Name: "proj " + id, TotalURLs: total, Status: status}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("seed project %s: %v", id, err)
	}
}

func TestIncrementProjectCounters(t *testing.T) {
	db := newRepoDB(t)
	seedProject(t, db, "p1", 10, domain.ProjectStatusProcessing)

	ctx := context.Background()
	err := IncrementProjectCounters(ctx, db, "p1", ProjectDelta{Processed: 1, Indexed: 1, CreditsUsed: 10})
	if err != nil {
		t.Fatalf("IncrementProjectCounters: %v", err)
	}
	err = IncrementProjectCounters(ctx, db, "p1", ProjectDelta{Processed: 1, Errors: 1})
	if err != nil {
		t.Fatalf("IncrementProjectCounters: %v", err)
	}

	p, err := GetProject(ctx, db, "p1")
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if p.ProcessedCount != 2 || p.IndexedCount != 1 || p.ErrorCount != 1 || p.CreditsUsed != 10 {
		t.Fatalf("counters = %+v", p)
	}
	if p.NotIndexedCount != 0 {
		t.Fatalf("not_indexed_count = %d, want 0", p.NotIndexedCount)
	}
}

func TestIncrementProjectCounters_MissingProject(t *testing.T) {
	db := newRepoDB(t)
	err := IncrementProjectCounters(context.Background(), db, "ghost", ProjectDelta{Processed: 1})
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("err = %v, want ErrRecordNotFound", err)
	}
	// An all-zero delta touches nothing and cannot fail.
	if err := IncrementProjectCounters(context.Background(), db, "ghost", ProjectDelta{}); err != nil {
		t.Fatalf("zero delta: %v", err)
	}
}

func TestStartProject(t *testing.T) {
	db := newRepoDB(t)
	seedProject(t, db, "pending", 1, domain.ProjectStatusPending)
	seedProject(t, db, "running", 1, domain.ProjectStatusProcessing)
	seedProject(t, db, "done", 1, domain.ProjectStatusCompleted)

	ctx := context.Background()
	for _, id := range []string{"pending", "running"} {
		started, err := StartProject(ctx, db, id)
		if err != nil {
			t.Fatalf("StartProject(%s): %v", id, err)
		}
		if !started {
			t.Fatalf("StartProject(%s) = false, want true", id)
		}
	}
	started, err := StartProject(ctx, db, "done")
	if err != nil {
		t.Fatalf("StartProject(done): %v", err)
	}
	if started {
		t.Fatal("terminal project must not restart")
	}
}

func TestCompleteProject_FlipsOnce(t *testing.T) {
	db := newRepoDB(t)
	seedProject(t, db, "p1", 3, domain.ProjectStatusProcessing)

	ctx := context.Background()
	flipped, err := CompleteProject(ctx, db, "p1", domain.ProjectStatusCompleted)
	if err != nil {
		t.Fatalf("CompleteProject: %v", err)
	}
	if !flipped {
		t.Fatal("first flip should report true")
	}

	// The guard rejects a second transition, even to another terminal state.
	flipped, err = CompleteProject(ctx, db, "p1", domain.ProjectStatusFailed)
	if err != nil {
		t.Fatalf("CompleteProject (second): %v", err)
	}
	if flipped {
		t.Fatal("second flip must be a no-op")
	}

	p, err := GetProject(ctx, db, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != domain.ProjectStatusCompleted {
		t.Fatalf("status = %q, want COMPLETED", p.Status)
	}
	if p.CompletedAt == nil {
		t.Fatal("completed_at not stamped")
	}
}

func TestListProjectTotals(t *testing.T) {
	db := newRepoDB(t)
	seedProject(t, db, "a", 5, domain.ProjectStatusProcessing)
	seedProject(t, db, "b", 5, domain.ProjectStatusProcessing)
	ctx := context.Background()
	if err := IncrementProjectCounters(ctx, db, "a", ProjectDelta{Processed: 2, Indexed: 2}); err != nil {
		t.Fatal(err)
	}
	if err := IncrementProjectCounters(ctx, db, "b", ProjectDelta{Processed: 1, Errors: 1}); err != nil {
		t.Fatal(err)
	}

	totals, err := ListProjectTotals(ctx, db)
	if err != nil {
		t.Fatalf("ListProjectTotals: %v", err)
	}
	if len(totals) != 2 {
		t.Fatalf("len = %d, want 2", len(totals))
	}
	byID := map[string]ProjectTotals{}
	for _, tt := range totals {
		byID[tt.ID] = tt
	}
	if byID["a"].IndexedCount != 2 || byID["b"].ErrorCount != 1 {
		t.Fatalf("totals = %+v", byID)
	}
}
