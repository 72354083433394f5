// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ProjectDomain aggregate: the lazily created per-project domain counters and
// the one-way whitelist/blacklist flags evaluated by the rule engine.
package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Zoot009/indexer-v2-backend/internal/domain"
)

// GetProjectDomain fetches the aggregate for a project/domain pair.
// Returns ErrNotFound when the pair has never been seen.
func GetProjectDomain(ctx context.Context, db *gorm.DB, projectID, domainID string) (*domain.ProjectDomain, error) {
	var pd domain.ProjectDomain
	err := db.WithContext(ctx).
		Where("project_id = ? AND domain_id = ?", projectID, domainID).
		First(&pd).Error
	if err != nil {
		return nil, err
	}
	return &pd, nil
}

// EnsureProjectDomain returns the aggregate for the pair, creating a zeroed
// row on first sight. A concurrent insert losing the unique-index race is
// resolved by re-fetching, so callers always get the surviving row.
func EnsureProjectDomain(ctx context.Context, db *gorm.DB, projectID, domainID string) (*domain.ProjectDomain, error) {
	pd, err := GetProjectDomain(ctx, db, projectID, domainID)
	if err == nil {
		return pd, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := &domain.ProjectDomain{
		ID:        fmt.Sprintf("%s_%s", projectID, domainID),
		ProjectID: projectID,
		DomainID:  domainID,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(fresh).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
			return GetProjectDomain(ctx, db, projectID, domainID)
		}
		return nil, err
	}
	return fresh, nil
}

// IncrementProjectDomainCounters bumps TotalURLsChecked and the counter
// matching the outcome with SQL-side arithmetic, then re-reads the row so the
// caller evaluates stop rules against post-increment values.
func IncrementProjectDomainCounters(ctx context.Context, db *gorm.DB, projectID, domainID string, indexed bool) (*domain.ProjectDomain, error) {
	updates := map[string]any{
		"total_urls_checked": gorm.Expr("total_urls_checked + 1"),
	}
	if indexed {
		updates["indexed_urls_count"] = gorm.Expr("indexed_urls_count + 1")
	} else {
		updates["not_indexed_count"] = gorm.Expr("not_indexed_count + 1")
	}

	res := db.WithContext(ctx).
		Model(&domain.ProjectDomain{}).
		Where("project_id = ? AND domain_id = ?", projectID, domainID).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return GetProjectDomain(ctx, db, projectID, domainID)
}

// WhitelistProjectDomain sets the terminal whitelist flag. Setting an
// already-true flag is harmless.
func WhitelistProjectDomain(ctx context.Context, db *gorm.DB, projectID, domainID string) error {
	return db.WithContext(ctx).
		Model(&domain.ProjectDomain{}).
		Where("project_id = ? AND domain_id = ?", projectID, domainID).
		Update("is_whitelisted", true).Error
}

// BlacklistProjectDomain sets the terminal blacklist flag with a timestamp.
func BlacklistProjectDomain(ctx context.Context, db *gorm.DB, projectID, domainID string) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).
		Model(&domain.ProjectDomain{}).
		Where("project_id = ? AND domain_id = ?", projectID, domainID).
		Updates(map[string]any{
			"is_blacklisted": true,
			"blacklisted_at": now,
		}).Error
}

// isUniqueViolation detects unique-constraint violations across drivers that
// may not map to gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	// SQLite typically: "UNIQUE constraint failed"
	// Postgres typically: "duplicate key value violates unique constraint"
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
