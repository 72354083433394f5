// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for URLRecord.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// The claim protocol lives here: ClaimURL performs the single conditional
// update (PENDING → PROCESSING) that guarantees at most one worker proceeds
// per URL. Zero rows affected means another worker (or a prior run) already
// claimed or finished the URL.
//
// Error semantics:
//   - When a URL is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Zoot009/indexer-v2-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ClaimURL attempts the PENDING → PROCESSING compare-and-swap for the given
// URL. It reports true when this caller won the claim. A false result with a
// nil error means the URL was already claimed or finished; callers must treat
// that as a successful no-op, not an error.
func ClaimURL(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.URLRecord{}).
		Where("id = ? AND status = ?", id, domain.URLStatusPending).
		Update("status", domain.URLStatusProcessing)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetURL fetches a URL by ID together with its optional Domain relation.
// Returns ErrNotFound if the record does not exist.
func GetURL(ctx context.Context, db *gorm.DB, id string) (*domain.URLRecord, error) {
	var u domain.URLRecord
	err := db.WithContext(ctx).
		Preload("Domain").
		Where("id = ?", id).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// MarkURLFailed terminally fails a URL with the given reason and stamps
// CheckedAt. Used for pre-check failures (missing domain, insufficient
// credits) and for the top-level force-fail path; it does not touch the
// check counter.
func MarkURLFailed(ctx context.Context, db *gorm.DB, id, reason string) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).
		Model(&domain.URLRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.URLStatusFailed,
			"error_message": reason,
			"checked_at":    now,
		}).Error
}

// FailURLChecked terminally fails a URL after an external check returned an
// ERROR outcome. The check was attempted, so CheckCount is incremented.
// Intended to run inside the processor's commit transaction.
func FailURLChecked(ctx context.Context, db *gorm.DB, id, reason string) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).
		Model(&domain.URLRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.URLStatusFailed,
			"error_message": reason,
			"checked_at":    now,
			"check_count":   gorm.Expr("check_count + 1"),
		}).Error
}

// CompleteURLChecked completes a URL with the outcome of an external check,
// incrementing CheckCount. Intended to run inside the processor's commit
// transaction.
func CompleteURLChecked(ctx context.Context, db *gorm.DB, id string, indexed bool) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).
		Model(&domain.URLRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      domain.URLStatusCompleted,
			"is_indexed":  indexed,
			"checked_at":  now,
			"check_count": gorm.Expr("check_count + 1"),
		}).Error
}

// CompleteURLStopped completes a URL through the domain-stopped fast path:
// no external check was made, so CheckCount is untouched and the reason is
// recorded as DOMAIN_STOPPED. Whitelisted domains settle as indexed,
// blacklisted ones as not indexed.
func CompleteURLStopped(ctx context.Context, db *gorm.DB, id string, indexed bool) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).
		Model(&domain.URLRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.URLStatusCompleted,
			"is_indexed":    indexed,
			"error_message": domain.ErrDomainStopped,
			"checked_at":    now,
		}).Error
}

// ListPendingURLIDs returns the IDs of all PENDING URLs in a project, oldest
// first. Used by the enqueue endpoint to (re)publish jobs; redelivery of an
// already-claimed URL is absorbed by the claim CAS.
func ListPendingURLIDs(ctx context.Context, db *gorm.DB, projectID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.URLRecord{}).
		Where("project_id = ? AND status = ?", projectID, domain.URLStatusPending).
		Order("created_at asc").
		Pluck("id", &ids).Error
	return ids, err
}
