// Package services – CreditService
//
// This file implements the credit ledger operations. Every external indexing
// check costs CreditsPerCheck from a single global balance shared across all
// projects. The debit and its audit entry commit in one transaction, and the
// balance update is a guarded single-statement increment, so concurrent jobs
// cannot spend past totalCredits - reservedCredits.
package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Zoot009/indexer-v2-backend/internal/domain"
	"github.com/Zoot009/indexer-v2-backend/internal/repo"
)

// defaultCreditsPerCheck applies when no ledger row has been seeded yet.
const defaultCreditsPerCheck = 10

// creditLogDescription is the fixed description on consumption entries.
const creditLogDescription = "URL index check"

// CreditService implements atomic debits against the global credit ledger
// with an append-only audit trail.
type CreditService struct {
	// DB is the database handle; each debit opens its own transaction.
	DB *gorm.DB
}

// CreditsPerCheck returns the configured cost of one external check, falling
// back to a default when the ledger has not been seeded.
func (s *CreditService) CreditsPerCheck(ctx context.Context) (int, error) {
	ledger, err := repo.GetCreditLedger(ctx, s.DB)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return defaultCreditsPerCheck, nil
		}
		return 0, err
	}
	return ledger.CreditsPerCheck, nil
}

// Debit withdraws amount from the global ledger on behalf of projectID.
//
// Semantics:
//   - Fails with ErrLedgerNotFound when no ledger row exists.
//   - Fails with ErrInsufficientCredits (wrapping the available/required
//     figures into the message) when the guarded update rejects the debit;
//     the ledger is unchanged.
//   - On success, increments usedCredits and appends one CONSUMPTION audit
//     entry, atomically.
func (s *CreditService) Debit(ctx context.Context, projectID string, amount int) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repo.DebitCredits(ctx, tx, amount)
		if err != nil {
			return err
		}
		if !ok {
			// Distinguish "no ledger" from "not enough credits" and report
			// the balance the caller was denied against.
			ledger, lerr := repo.GetCreditLedger(ctx, tx)
			if lerr != nil {
				if errors.Is(lerr, gorm.ErrRecordNotFound) {
					return ErrLedgerNotFound
				}
				return lerr
			}
			return fmt.Errorf("%w: %d available, %d required", ErrInsufficientCredits, ledger.Available(), amount)
		}

		// Post-debit balance for the audit entry.
		ledger, err := repo.GetCreditLedger(ctx, tx)
		if err != nil {
			return err
		}
		return repo.AppendCreditLog(ctx, tx, amount, domain.CreditOpConsumption,
			ledger.TotalCredits-ledger.UsedCredits, creditLogDescription, projectID)
	})
}
