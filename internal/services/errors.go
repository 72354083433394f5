// Package services implements the business logic of the job pipeline: the
// job processor, the domain stop-rule engine, the credit ledger, and the
// completion detector. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
package services

import "errors"

var (
	// ErrInsufficientCredits is returned by the credit service when the
	// available balance cannot cover a debit. The ledger is left unchanged.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrLedgerNotFound is returned when no credit ledger row has been
	// seeded. Debits cannot proceed without one.
	ErrLedgerNotFound = errors.New("credit ledger not found")

	// ErrMissingDomain is recorded on URLs that have no domain assignment;
	// such URLs cannot be checked and fail terminally.
	ErrMissingDomain = errors.New("missing domain assignment")
)
