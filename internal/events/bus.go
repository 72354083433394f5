// Package events defines the publish/subscribe channel used to fan out job
// outcomes and stats deltas to subscribers (the SSE stream, other worker
// processes). Two implementations exist: an in-process bus for
// single-process deployments and tests, and a Redis pub/sub bus for
// multi-process fan-out.
//
// Delivery is best-effort with no replay: a subscriber that falls behind or
// disconnects simply misses events and must re-fetch a snapshot.
package events

import "context"

// Pub/sub channel names, shared with the Redis implementation.
const (
	ChannelStatsUpdate  = "stats:update"
	ChannelURLProcessed = "url:processed"
)

// StatsUpdate carries running totals for one scope. A message with an empty
// ProjectID is a global update; otherwise it is scoped to that project.
type StatsUpdate struct {
	ProjectID       string `json:"projectId,omitempty"`
	TotalProcessed  int    `json:"totalProcessed"`
	IndexedCount    int    `json:"indexedCount"`
	NotIndexedCount int    `json:"notIndexedCount"`
	ErrorCount      int    `json:"errorCount"`
	Timestamp       int64  `json:"timestamp"`
}

// URLProcessed announces a single settled job.
type URLProcessed struct {
	URLID     string `json:"urlId"`
	ProjectID string `json:"projectId"`
	IsIndexed bool   `json:"isIndexed"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// Bus is the fan-out channel between the job pipeline and its observers.
//
// SubscribeStats returns a receive channel and a cancel function; cancel
// unsubscribes and eventually closes the channel. Implementations drop
// messages to slow subscribers rather than blocking publishers.
type Bus interface {
	PublishStats(ctx context.Context, ev StatsUpdate) error
	PublishURLProcessed(ctx context.Context, ev URLProcessed) error
	SubscribeStats(ctx context.Context) (<-chan StatsUpdate, func(), error)
}
