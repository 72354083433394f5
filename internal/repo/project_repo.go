// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Project
// model: point reads, atomic counter increments, and the conditional
// terminal-status transition used by the completion detector.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Zoot009/indexer-v2-backend/internal/domain"
)

// ProjectDelta describes the counter increments applied to a project when a
// job settles. Zero-valued fields are skipped so the generated UPDATE touches
// only the counters that changed.
type ProjectDelta struct {
	Processed   int
	Indexed     int
	NotIndexed  int
	Errors      int
	CreditsUsed int
}

// GetProject fetches a project by ID. Returns ErrNotFound if missing.
func GetProject(ctx context.Context, db *gorm.DB, id string) (*domain.Project, error) {
	var p domain.Project
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// IncrementProjectCounters applies the delta to a project's counters as a
// single UPDATE with SQL-side arithmetic, so concurrent jobs touching the
// same project never lose increments. Returns ErrNotFound when the project
// does not exist.
func IncrementProjectCounters(ctx context.Context, db *gorm.DB, id string, d ProjectDelta) error {
	updates := map[string]any{}
	if d.Processed != 0 {
		updates["processed_count"] = gorm.Expr("processed_count + ?", d.Processed)
	}
	if d.Indexed != 0 {
		updates["indexed_count"] = gorm.Expr("indexed_count + ?", d.Indexed)
	}
	if d.NotIndexed != 0 {
		updates["not_indexed_count"] = gorm.Expr("not_indexed_count + ?", d.NotIndexed)
	}
	if d.Errors != 0 {
		updates["error_count"] = gorm.Expr("error_count + ?", d.Errors)
	}
	if d.CreditsUsed != 0 {
		updates["credits_used"] = gorm.Expr("credits_used + ?", d.CreditsUsed)
	}
	if len(updates) == 0 {
		return nil
	}

	res := db.WithContext(ctx).
		Model(&domain.Project{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// StartProject moves a project into PROCESSING unless it already reached a
// terminal status. Re-enqueueing a running project is a no-op; re-enqueueing
// a completed one returns false so the caller can reject the request.
func StartProject(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Project{}).
		Where("id = ? AND status IN ?", id, []string{
			domain.ProjectStatusPending,
			domain.ProjectStatusProcessing,
		}).
		Update("status", domain.ProjectStatusProcessing)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CompleteProject flips a project from PROCESSING to the given terminal
// status and stamps CompletedAt. The transition is guarded on the current
// status, so only one caller ever observes true: redundant completion checks
// become harmless no-ops.
func CompleteProject(ctx context.Context, db *gorm.DB, id, terminal string) (bool, error) {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Project{}).
		Where("id = ? AND status = ?", id, domain.ProjectStatusProcessing).
		Updates(map[string]any{
			"status":       terminal,
			"completed_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ProjectTotals is the per-project counter snapshot consumed by the stats
// aggregator's rebuild-on-start pass.
type ProjectTotals struct {
	ID              string
	ProcessedCount  int
	IndexedCount    int
	NotIndexedCount int
	ErrorCount      int
}

// ListProjectTotals scans the counters of every project. The result feeds the
// in-memory stats cache; the store rows remain the source of truth.
func ListProjectTotals(ctx context.Context, db *gorm.DB) ([]ProjectTotals, error) {
	var out []ProjectTotals
	err := db.WithContext(ctx).
		Model(&domain.Project{}).
		Select("id", "processed_count", "indexed_count", "not_indexed_count", "error_count").
		Scan(&out).Error
	return out, err
}
