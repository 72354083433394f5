// Package services – DomainRuleService
//
// This file implements the domain stop-rule state machine. After every
// settled external check the engine bumps the per-project domain counters
// and evaluates two one-way transitions against the post-increment values:
// whitelist when enough URLs of the domain are indexed, blacklist when the
// domain has been checked often enough without a single hit. Once either
// flag is set, further URLs of that domain take the processor's fast path
// and skip the external check entirely.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/Zoot009/indexer-v2-backend/internal/repo"
)

// DomainRuleService evaluates stop rules for a project/domain pair. Apply is
// only ever invoked inside the job processor's commit transaction, so the
// counter increment and any flag transition land atomically with the URL and
// project updates they accompany.
type DomainRuleService struct{}

// Apply records one settled check for the pair and evaluates the stop rules.
//
// Order is significant and must not be re-derived: the whitelist threshold
// is evaluated first, the blacklist second, both against post-increment
// counters. Blacklisting additionally requires zero indexed hits, which
// makes the two transitions mutually exclusive by construction.
//
// The pair's aggregate is created lazily with zeroed counters. When the rule
// configuration is absent or disabled, the call is a no-op.
func (s *DomainRuleService) Apply(ctx context.Context, tx *gorm.DB, domainID string, indexed bool, projectID string) error {
	if _, err := repo.EnsureProjectDomain(ctx, tx, projectID, domainID); err != nil {
		return err
	}

	cfg, err := repo.GetRuleConfig(ctx, tx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if !cfg.Enabled {
		return nil
	}

	pd, err := repo.IncrementProjectDomainCounters(ctx, tx, projectID, domainID, indexed)
	if err != nil {
		return err
	}

	if cfg.ApplyWhitelistRule && pd.IndexedURLsCount >= cfg.IndexedStopThreshold {
		if err := repo.WhitelistProjectDomain(ctx, tx, projectID, domainID); err != nil {
			return err
		}
		log.Info().
			Str("project_id", projectID).
			Str("domain_id", domainID).
			Int("indexed_urls", pd.IndexedURLsCount).
			Msg("domain whitelisted")
	}

	if cfg.ApplyBlacklistRule && pd.TotalURLsChecked >= cfg.MaxChecks && pd.IndexedURLsCount == 0 {
		if err := repo.BlacklistProjectDomain(ctx, tx, projectID, domainID); err != nil {
			return err
		}
		log.Info().
			Str("project_id", projectID).
			Str("domain_id", domainID).
			Int("total_checked", pd.TotalURLsChecked).
			Msg("domain blacklisted")
	}

	return nil
}
