package repo

import (
	"context"
	"testing"

	"github.com/Zoot009/indexer-v2-backend/internal/domain"
)

func TestEnsureProjectDomain_CreatesOnce(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	pd, err := EnsureProjectDomain(ctx, db, "p1", "d1")
	if err != nil {
		t.Fatalf("EnsureProjectDomain: %v", err)
	}
	if pd.ID != "p1_d1" || pd.TotalURLsChecked != 0 || pd.Stopped() {
		t.Fatalf("fresh aggregate: %+v", pd)
	}

	again, err := EnsureProjectDomain(ctx, db, "p1", "d1")
	if err != nil {
		t.Fatalf("EnsureProjectDomain (second): %v", err)
	}
	if again.ID != pd.ID {
		t.Fatalf("second call returned a different row: %q vs %q", again.ID, pd.ID)
	}

	var count int64
	if err := db.Model(&domain.ProjectDomain{}).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("rows = %d, want 1", count)
	}
}

func TestEnsureProjectDomain_ScopedPerProject(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	if _, err := EnsureProjectDomain(ctx, db, "p1", "d1"); err != nil {
		t.Fatal(err)
	}
	if _, err := EnsureProjectDomain(ctx, db, "p2", "d1"); err != nil {
		t.Fatal(err)
	}

	// Blacklisting the pair in p1 must not leak into p2.
	if err := BlacklistProjectDomain(ctx, db, "p1", "d1"); err != nil {
		t.Fatal(err)
	}
	other, err := GetProjectDomain(ctx, db, "p2", "d1")
	if err != nil {
		t.Fatal(err)
	}
	if other.Stopped() {
		t.Fatalf("p2 aggregate affected by p1 blacklist: %+v", other)
	}
}

func TestIncrementProjectDomainCounters_PostIncrementRead(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	if _, err := EnsureProjectDomain(ctx, db, "p1", "d1"); err != nil {
		t.Fatal(err)
	}

	pd, err := IncrementProjectDomainCounters(ctx, db, "p1", "d1", true)
	if err != nil {
		t.Fatalf("IncrementProjectDomainCounters: %v", err)
	}
	if pd.TotalURLsChecked != 1 || pd.IndexedURLsCount != 1 || pd.NotIndexedCount != 0 {
		t.Fatalf("after indexed: %+v", pd)
	}

	pd, err = IncrementProjectDomainCounters(ctx, db, "p1", "d1", false)
	if err != nil {
		t.Fatal(err)
	}
	if pd.TotalURLsChecked != 2 || pd.IndexedURLsCount != 1 || pd.NotIndexedCount != 1 {
		t.Fatalf("after not indexed: %+v", pd)
	}
}

func TestIncrementProjectDomainCounters_MissingPair(t *testing.T) {
	db := newRepoDB(t)
	if _, err := IncrementProjectDomainCounters(context.Background(), db, "p1", "ghost", true); err == nil {
		t.Fatal("expected error for unseen pair")
	}
}

func TestWhitelistAndBlacklistFlags(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	if _, err := EnsureProjectDomain(ctx, db, "p1", "d1"); err != nil {
		t.Fatal(err)
	}

	if err := WhitelistProjectDomain(ctx, db, "p1", "d1"); err != nil {
		t.Fatalf("WhitelistProjectDomain: %v", err)
	}
	pd, err := GetProjectDomain(ctx, db, "p1", "d1")
	if err != nil {
		t.Fatal(err)
	}
	if !pd.IsWhitelisted || !pd.Stopped() {
		t.Fatalf("after whitelist: %+v", pd)
	}
	if pd.BlacklistedAt != nil {
		t.Fatal("whitelist must not stamp blacklisted_at")
	}

	if err := BlacklistProjectDomain(ctx, db, "p1", "d1"); err != nil {
		t.Fatalf("BlacklistProjectDomain: %v", err)
	}
	pd, err = GetProjectDomain(ctx, db, "p1", "d1")
	if err != nil {
		t.Fatal(err)
	}
	if !pd.IsBlacklisted || pd.BlacklistedAt == nil {
		t.Fatalf("after blacklist: %+v", pd)
	}
}
