// Package stats maintains the in-memory running-totals cache and republishes
// deltas to the event bus. The cache is a derived, lossy view: it is rebuilt
// from the store's per-project counters at process start, updated on every
// settled job, and never written back. The store remains ground truth.
package stats

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/Zoot009/indexer-v2-backend/internal/events"
	"github.com/Zoot009/indexer-v2-backend/internal/repo"
)

// Totals is one scope's running counters.
type Totals struct {
	TotalProcessed  int `json:"totalProcessed"`
	IndexedCount    int `json:"indexedCount"`
	NotIndexedCount int `json:"notIndexedCount"`
	ErrorCount      int `json:"errorCount"`
}

// Outcome classifies a settled job for stats purposes.
type Outcome string

// Settlement outcomes.
const (
	OutcomeIndexed    Outcome = "indexed"
	OutcomeNotIndexed Outcome = "notIndexed"
	OutcomeError      Outcome = "error"
)

// Aggregator keeps global and per-project totals and fans every increment
// out on the bus as two messages: one scoped to the project, one global.
// All methods are safe for concurrent use.
type Aggregator struct {
	mu       sync.Mutex
	global   Totals
	projects map[string]Totals
	bus      events.Bus
}

// NewAggregator returns an empty aggregator publishing on bus.
// A nil bus disables fan-out; the cache still works.
func NewAggregator(bus events.Bus) *Aggregator {
	return &Aggregator{
		projects: make(map[string]Totals),
		bus:      bus,
	}
}

// Rebuild replaces the cache with the sum of per-project counters currently
// in the store. Called once at process start; the cache is lost on restart
// by design.
func (a *Aggregator) Rebuild(ctx context.Context, db *gorm.DB) error {
	totals, err := repo.ListProjectTotals(ctx, db)
	if err != nil {
		return err
	}

	projects := make(map[string]Totals, len(totals))
	var global Totals
	for _, t := range totals {
		pt := Totals{
			TotalProcessed:  t.ProcessedCount,
			IndexedCount:    t.IndexedCount,
			NotIndexedCount: t.NotIndexedCount,
			ErrorCount:      t.ErrorCount,
		}
		projects[t.ID] = pt
		global.TotalProcessed += pt.TotalProcessed
		global.IndexedCount += pt.IndexedCount
		global.NotIndexedCount += pt.NotIndexedCount
		global.ErrorCount += pt.ErrorCount
	}

	a.mu.Lock()
	a.projects = projects
	a.global = global
	a.mu.Unlock()

	log.Info().
		Int("projects", len(projects)).
		Int("total_processed", global.TotalProcessed).
		Msg("stats cache rebuilt")
	return nil
}

// RecordOutcome increments the project's and the global counters, then
// broadcasts both updated scopes. Publish failures are logged, never
// propagated: the cache is already consistent and the store committed first.
func (a *Aggregator) RecordOutcome(ctx context.Context, projectID string, outcome Outcome) {
	a.mu.Lock()
	pt := a.projects[projectID]
	bump(&pt, outcome)
	a.projects[projectID] = pt
	bump(&a.global, outcome)
	global := a.global
	a.mu.Unlock()

	if a.bus == nil {
		return
	}
	now := time.Now().UnixMilli()
	if err := a.bus.PublishStats(ctx, events.StatsUpdate{
		ProjectID:       projectID,
		TotalProcessed:  pt.TotalProcessed,
		IndexedCount:    pt.IndexedCount,
		NotIndexedCount: pt.NotIndexedCount,
		ErrorCount:      pt.ErrorCount,
		Timestamp:       now,
	}); err != nil {
		log.Warn().Err(err).Str("project_id", projectID).Msg("publish project stats failed")
	}
	if err := a.bus.PublishStats(ctx, events.StatsUpdate{
		TotalProcessed:  global.TotalProcessed,
		IndexedCount:    global.IndexedCount,
		NotIndexedCount: global.NotIndexedCount,
		ErrorCount:      global.ErrorCount,
		Timestamp:       now,
	}); err != nil {
		log.Warn().Err(err).Msg("publish global stats failed")
	}
}

// ApplyUpdate overwrites one scope's totals with the counters carried by a
// bus update. Updates carry absolute values, not deltas, so replaying them
// is idempotent and out-of-order delivery at worst shows a stale snapshot
// until the next update lands.
func (a *Aggregator) ApplyUpdate(u events.StatsUpdate) {
	t := Totals{
		TotalProcessed:  u.TotalProcessed,
		IndexedCount:    u.IndexedCount,
		NotIndexedCount: u.NotIndexedCount,
		ErrorCount:      u.ErrorCount,
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if u.ProjectID == "" {
		a.global = t
		return
	}
	a.projects[u.ProjectID] = t
}

// Snapshot returns a copy of the current totals for projectID, or the global
// totals when projectID is empty. Unknown projects yield zeroed totals.
func (a *Aggregator) Snapshot(projectID string) Totals {
	a.mu.Lock()
	defer a.mu.Unlock()
	if projectID == "" {
		return a.global
	}
	return a.projects[projectID]
}

func bump(t *Totals, outcome Outcome) {
	t.TotalProcessed++
	switch outcome {
	case OutcomeIndexed:
		t.IndexedCount++
	case OutcomeNotIndexed:
		t.NotIndexedCount++
	case OutcomeError:
		t.ErrorCount++
	}
}
