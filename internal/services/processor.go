// Package services – JobProcessor
//
// This file implements the heart of the pipeline: the lifecycle of a single
// URL job. The protocol, in order: claim the URL via compare-and-swap, load
// it with its domain, take the fast path when the domain is already stopped,
// debit credits, run the external check, and commit the multi-entity result
// atomically. The processor never reports failure to the queue; every
// outcome — including unexpected ones — terminates with a recorded state on
// the URL, so redelivery is always a safe no-op.
package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/Zoot009/indexer-v2-backend/internal/check"
	"github.com/Zoot009/indexer-v2-backend/internal/domain"
	"github.com/Zoot009/indexer-v2-backend/internal/events"
	"github.com/Zoot009/indexer-v2-backend/internal/repo"
	"github.com/Zoot009/indexer-v2-backend/internal/stats"
)

// JobProcessor orchestrates one job per invocation. All collaborators are
// injected; the processor owns no state of its own and is safe for
// concurrent use by the worker pool.
type JobProcessor struct {
	DB         *gorm.DB
	Checker    check.Checker
	Credits    *CreditService
	Rules      *DomainRuleService
	Completion *CompletionService
	Stats      *stats.Aggregator
	Bus        events.Bus
	Log        zerolog.Logger
}

// ProcessJob handles one URL to completion or explicit recorded failure.
// It never returns an error and never panics through to the caller: the
// queue's own retry machinery is deliberately bypassed.
func (p *JobProcessor) ProcessJob(ctx context.Context, urlID string) {
	start := time.Now()
	lg := p.Log.With().Str("url_id", urlID).Logger()

	defer func() {
		if rec := recover(); rec != nil {
			lg.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("job panicked")
			jobsProcessed.WithLabelValues(outcomeFatal).Inc()
			p.forceFail(ctx, lg, urlID, fmt.Sprintf("panic: %v", rec))
		}
		jobDuration.Observe(time.Since(start).Seconds())
	}()

	if err := p.run(ctx, lg, urlID); err != nil {
		// Unexpected failure mid-flow: best-effort terminal record so the
		// URL never stays stuck in PROCESSING.
		lg.Error().Err(err).Msg("job failed unexpectedly")
		jobsProcessed.WithLabelValues(outcomeFatal).Inc()
		p.forceFail(ctx, lg, urlID, err.Error())
	}
}

// run executes the claim-to-commit protocol. It returns an error only for
// unexpected infrastructure failures; every expected outcome is recorded and
// reported as nil.
func (p *JobProcessor) run(ctx context.Context, lg zerolog.Logger, urlID string) error {
	// 1) Claim. Losing the CAS means another worker or a prior run already
	// handled this URL: a silent, successful no-op.
	claimed, err := repo.ClaimURL(ctx, p.DB, urlID)
	if err != nil {
		return fmt.Errorf("claim url: %w", err)
	}
	if !claimed {
		lg.Debug().Msg("url already claimed or finished, skipping")
		jobsProcessed.WithLabelValues(outcomeSkipped).Inc()
		return nil
	}

	// 2) Load the URL with its domain.
	u, err := repo.GetURL(ctx, p.DB, urlID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Row vanished between claim and load (deleted out of band).
			// Nothing to record against; the job is done.
			lg.Warn().Msg("url disappeared after claim, skipping")
			jobsProcessed.WithLabelValues(outcomeSkipped).Inc()
			return nil
		}
		return fmt.Errorf("load url: %w", err)
	}
	lg = lg.With().Str("project_id", u.ProjectID).Logger()

	if u.DomainID == nil {
		lg.Warn().Str("url", u.URL).Msg("url has no domain assignment")
		err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := repo.MarkURLFailed(ctx, tx, urlID, ErrMissingDomain.Error()); err != nil {
				return err
			}
			return repo.IncrementProjectCounters(ctx, tx, u.ProjectID, repo.ProjectDelta{Errors: 1})
		})
		if err != nil {
			return fmt.Errorf("record missing domain: %w", err)
		}
		jobsProcessed.WithLabelValues(outcomeMissingDomain).Inc()
		p.settle(ctx, lg, u.ProjectID)
		return nil
	}

	// 3) Domain-stopped fast path: no external check, no credit spend.
	pd, err := repo.GetProjectDomain(ctx, p.DB, u.ProjectID, *u.DomainID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("load project domain: %w", err)
	}
	if pd != nil && pd.Stopped() {
		indexed := !pd.IsBlacklisted // whitelisted domains settle as indexed
		lg.Info().
			Bool("whitelisted", pd.IsWhitelisted).
			Bool("blacklisted", pd.IsBlacklisted).
			Msg("domain stopped, taking fast path")

		err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := repo.CompleteURLStopped(ctx, tx, urlID, indexed); err != nil {
				return err
			}
			delta := repo.ProjectDelta{Processed: 1}
			if indexed {
				delta.Indexed = 1
			} else {
				delta.NotIndexed = 1
			}
			return repo.IncrementProjectCounters(ctx, tx, u.ProjectID, delta)
		})
		if err != nil {
			return fmt.Errorf("commit fast path: %w", err)
		}
		jobsProcessed.WithLabelValues(outcomeDomainStopped).Inc()
		p.settle(ctx, lg, u.ProjectID)
		return nil
	}

	// 4) Debit credits before the costly external call.
	cost, err := p.Credits.CreditsPerCheck(ctx)
	if err != nil {
		return fmt.Errorf("load credit cost: %w", err)
	}
	if err := p.Credits.Debit(ctx, u.ProjectID, cost); err != nil {
		if errors.Is(err, ErrInsufficientCredits) || errors.Is(err, ErrLedgerNotFound) {
			lg.Warn().Err(err).Msg("credit debit rejected")
			// Only the URL's own status changes; no counters, no check.
			if err := repo.MarkURLFailed(ctx, p.DB, urlID, err.Error()); err != nil {
				return fmt.Errorf("record credit failure: %w", err)
			}
			jobsProcessed.WithLabelValues(outcomeInsufficientCredits).Inc()
			p.settle(ctx, lg, u.ProjectID)
			return nil
		}
		return fmt.Errorf("debit credits: %w", err)
	}
	creditsSpent.Add(float64(cost))

	// 5) External check, outside any transaction.
	checkStart := time.Now()
	result := p.Checker.Check(ctx, u.URL)
	lg.Debug().
		Str("status", string(result.Status)).
		Dur("check_duration", time.Since(checkStart)).
		Msg("external check finished")

	// 6) Commit.
	if result.Status == check.StatusError {
		reason := result.ErrorMessage
		if reason == "" {
			reason = "index check failed"
		}
		err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := repo.FailURLChecked(ctx, tx, urlID, reason); err != nil {
				return err
			}
			return repo.IncrementProjectCounters(ctx, tx, u.ProjectID, repo.ProjectDelta{
				Processed:   1,
				Errors:      1,
				CreditsUsed: cost,
			})
		})
		if err != nil {
			return fmt.Errorf("commit check error: %w", err)
		}
		jobsProcessed.WithLabelValues(outcomeCheckError).Inc()
		p.notify(ctx, lg, u.ProjectID, urlID, stats.OutcomeError, false, domain.URLStatusFailed)
		p.settle(ctx, lg, u.ProjectID)
		return nil
	}

	indexed := result.Status == check.StatusIndexed
	err = p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CompleteURLChecked(ctx, tx, urlID, indexed); err != nil {
			return err
		}
		delta := repo.ProjectDelta{Processed: 1, CreditsUsed: cost}
		if indexed {
			delta.Indexed = 1
		} else {
			delta.NotIndexed = 1
		}
		if err := repo.IncrementProjectCounters(ctx, tx, u.ProjectID, delta); err != nil {
			return err
		}
		return p.Rules.Apply(ctx, tx, *u.DomainID, indexed, u.ProjectID)
	})
	if err != nil {
		return fmt.Errorf("commit check result: %w", err)
	}

	outcome := stats.OutcomeNotIndexed
	label := outcomeNotIndexed
	if indexed {
		outcome = stats.OutcomeIndexed
		label = outcomeIndexed
	}
	jobsProcessed.WithLabelValues(label).Inc()
	p.notify(ctx, lg, u.ProjectID, urlID, outcome, indexed, domain.URLStatusCompleted)
	p.settle(ctx, lg, u.ProjectID)

	lg.Info().Bool("indexed", indexed).Msg("job completed")
	return nil
}

// notify records the outcome in the stats cache (which fans deltas out on
// the bus) and publishes the per-URL settlement event. Both are best-effort
// side effects after the commit.
func (p *JobProcessor) notify(ctx context.Context, lg zerolog.Logger, projectID, urlID string, outcome stats.Outcome, indexed bool, status string) {
	if p.Stats != nil {
		p.Stats.RecordOutcome(ctx, projectID, outcome)
	}
	if p.Bus != nil {
		err := p.Bus.PublishURLProcessed(ctx, events.URLProcessed{
			URLID:     urlID,
			ProjectID: projectID,
			IsIndexed: indexed,
			Status:    status,
			Timestamp: time.Now().UnixMilli(),
		})
		if err != nil {
			lg.Warn().Err(err).Msg("publish url processed failed")
		}
	}
}

// settle runs the completion detector against post-commit counters.
func (p *JobProcessor) settle(ctx context.Context, lg zerolog.Logger, projectID string) {
	if p.Completion == nil {
		return
	}
	if err := p.Completion.OnJobSettled(ctx, projectID); err != nil {
		lg.Warn().Err(err).Msg("completion check failed")
	}
}

// forceFail is the last-resort terminal record. If even this write fails the
// error is logged and swallowed; the URL stays PROCESSING until an external
// reconciliation sweep picks it up.
func (p *JobProcessor) forceFail(ctx context.Context, lg zerolog.Logger, urlID, reason string) {
	if err := repo.MarkURLFailed(ctx, p.DB, urlID, reason); err != nil {
		lg.Warn().Err(err).Msg("failed to force-fail url")
	}
}
