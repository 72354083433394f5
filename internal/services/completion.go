// Package services – CompletionService
//
// This file implements the completion detector: after every settled job it
// re-reads the owning project's post-commit counters and, once every URL has
// settled, flips the project to its terminal status exactly once. The check
// is advisory and eventually consistent; it deliberately runs outside the
// commit transaction and is safe to repeat.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/Zoot009/indexer-v2-backend/internal/domain"
	"github.com/Zoot009/indexer-v2-backend/internal/repo"
)

// CompletionService observes per-project progress and performs the terminal
// status transition.
type CompletionService struct {
	// DB is the database handle used for the post-commit read and the
	// guarded status flip.
	DB *gorm.DB
}

// OnJobSettled checks whether projectID has fully settled and, if so, flips
// its status: FAILED when every single URL errored, COMPLETED otherwise.
//
// The transition is a conditional update guarded on the status still being
// PROCESSING, so concurrent or repeated invocations are no-ops after the
// first winner. A vanished project is ignored.
func (s *CompletionService) OnJobSettled(ctx context.Context, projectID string) error {
	p, err := repo.GetProject(ctx, s.DB, projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	if p.Status != domain.ProjectStatusProcessing {
		return nil
	}
	if p.TotalURLs == 0 || p.ProcessedCount+p.ErrorCount < p.TotalURLs {
		return nil
	}

	terminal := domain.ProjectStatusCompleted
	if p.ErrorCount == p.TotalURLs {
		terminal = domain.ProjectStatusFailed
	}

	flipped, err := repo.CompleteProject(ctx, s.DB, projectID, terminal)
	if err != nil {
		return err
	}
	if flipped {
		log.Info().
			Str("project_id", projectID).
			Str("status", terminal).
			Int("total_urls", p.TotalURLs).
			Int("error_count", p.ErrorCount).
			Msg("project completed")
	}
	return nil
}
