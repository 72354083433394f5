// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the read path for the process-wide
// stop-rule configuration.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/Zoot009/indexer-v2-backend/internal/domain"
)

// GetRuleConfig returns the stop-rule configuration row. It is re-read on
// every job so threshold changes apply without a restart. Returns ErrNotFound
// when no configuration has been seeded; the rule engine treats that the same
// as rules being disabled.
func GetRuleConfig(ctx context.Context, db *gorm.DB) (*domain.RuleConfig, error) {
	var cfg domain.RuleConfig
	if err := db.WithContext(ctx).First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}
