// Stats HTTP handlers.
//
// This file exposes the read side of the stats aggregator:
//   - GET /stats          (point-in-time counters, optionally per project)
//   - GET /stats/stream   (Server-Sent Events push of live updates)
//
// Handlers are transport-thin: they read from the in-memory aggregator and
// subscribe to the event bus; all counting happens in the worker pipeline.
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Zoot009/indexer-v2-backend/internal/events"
	"github.com/Zoot009/indexer-v2-backend/internal/http/middleware"
	"github.com/Zoot009/indexer-v2-backend/internal/stats"
)

// StatsSource is the snapshot view consumed by the stats endpoints.
type StatsSource interface {
	// Snapshot returns current counters; an empty projectID means global.
	Snapshot(projectID string) stats.Totals
}

// StatsHandler serves snapshot and streaming stats.
type StatsHandler struct {
	Stats StatsSource
	Bus   events.Bus
	// KeepAlive is the SSE heartbeat interval; zero disables heartbeats.
	KeepAlive time.Duration
}

// GetStats handles GET /stats.
//
// Query parameters:
//   - projectId (optional): scope counters to a single project. Unknown
//     projects return zero counters rather than 404, matching the
//     aggregator's view (a project with no processed URLs has no row).
func (h *StatsHandler) GetStats(c *gin.Context) {
	projectID := c.Query("projectId")
	ok(c, http.StatusOK, h.Stats.Snapshot(projectID))
}

// StreamStats handles GET /stats/stream as a Server-Sent Events stream.
//
// Protocol:
//   - An initial "stats" event carrying the current snapshot is sent
//     immediately so clients render without waiting for the next update.
//   - Each subsequent update from the bus is forwarded as a "stats" event.
//     With ?projectId= only that project's updates are forwarded; without
//     it, only global updates are.
//   - A comment line is written every KeepAlive interval so idle streams
//     survive proxies and LBs with read timeouts.
//
// The stream ends when the client disconnects or the bus subscription is
// torn down (e.g., Redis connection loss); clients are expected to
// reconnect and re-read the initial snapshot.
func (h *StatsHandler) StreamStats(c *gin.Context) {
	projectID := c.Query("projectId")

	flusher, okF := c.Writer.(http.Flusher)
	if !okF {
		fail(c, http.StatusInternalServerError, codeStreamFailed, "streaming unsupported")
		return
	}

	updates, cancel, err := h.Bus.SubscribeStats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, codeStreamFailed, "subscribe failed")
		return
	}
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	snap := h.Stats.Snapshot(projectID)
	c.SSEvent("stats", events.StatsUpdate{
		ProjectID:       projectID,
		TotalProcessed:  snap.TotalProcessed,
		IndexedCount:    snap.IndexedCount,
		NotIndexedCount: snap.NotIndexedCount,
		ErrorCount:      snap.ErrorCount,
		Timestamp:       time.Now().UnixMilli(),
	})
	flusher.Flush()

	var heartbeat <-chan time.Time
	if h.KeepAlive > 0 {
		t := time.NewTicker(h.KeepAlive)
		defer t.Stop()
		heartbeat = t.C
	}

	lg := middleware.LoggerFrom(c)
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case u, open := <-updates:
			if !open {
				lg.Warn().Msg("stats subscription closed, ending stream")
				return
			}
			if u.ProjectID != projectID {
				continue
			}
			c.SSEvent("stats", u)
			flusher.Flush()
		case <-heartbeat:
			fmt.Fprint(c.Writer, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}
