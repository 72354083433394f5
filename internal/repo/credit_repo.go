// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the global
// credit ledger and its append-only audit log.
//
// The debit is deliberately a single guarded UPDATE rather than a
// read-then-write: the availability pre-check and the increment execute as
// one atomic statement, so concurrent jobs cannot spend past
// total_credits - reserved_credits no matter how they interleave.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Zoot009/indexer-v2-backend/internal/domain"
)

// GetCreditLedger returns the single global ledger row.
// Returns ErrNotFound when the ledger has not been seeded.
func GetCreditLedger(ctx context.Context, db *gorm.DB) (*domain.CreditLedger, error) {
	var l domain.CreditLedger
	if err := db.WithContext(ctx).First(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

// DebitCredits atomically adds amount to used_credits, guarded on the
// post-debit balance staying within total_credits - reserved_credits.
// It reports false (with no ledger change) when the guard rejects the debit,
// i.e. the available balance is smaller than amount.
func DebitCredits(ctx context.Context, db *gorm.DB, amount int) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.CreditLedger{}).
		Where("used_credits + ? <= total_credits - reserved_credits", amount).
		Update("used_credits", gorm.Expr("used_credits + ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AppendCreditLog writes one audit entry. Called in the same transaction as
// the debit it records so the trail never diverges from the balance.
func AppendCreditLog(ctx context.Context, db *gorm.DB, amount int, operation string, balanceAfter int, description, projectID string) error {
	entry := &domain.CreditLogEntry{
		ID:           uuid.NewString(),
		Amount:       amount,
		Operation:    operation,
		BalanceAfter: balanceAfter,
		Description:  description,
		ProjectID:    projectID,
		CreatedAt:    time.Now().UTC(),
	}
	return db.WithContext(ctx).Create(entry).Error
}
