// Enqueue HTTP handler.
//
// POST /projects/{id}/enqueue moves a project into PROCESSING and pushes one
// queue job per PENDING URL. The endpoint is safe to retry: URLs already
// claimed or settled are filtered out by the PENDING scan, and a redelivered
// job loses the claim compare-and-swap in the worker anyway.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Zoot009/indexer-v2-backend/internal/http/middleware"
	"github.com/Zoot009/indexer-v2-backend/internal/queue"
	"github.com/Zoot009/indexer-v2-backend/internal/repo"
)

// EnqueueHandler publishes a project's pending URLs onto the job queue.
type EnqueueHandler struct {
	DB    *gorm.DB
	Queue queue.JobQueue
}

// EnqueueResponse reports how many jobs were published.
type EnqueueResponse struct {
	ProjectID string `json:"projectId"`
	Enqueued  int    `json:"enqueued"`
}

// Enqueue handles POST /projects/{id}/enqueue.
//
// Responses:
//   - 202 with {projectId, enqueued} on success (enqueued may be 0)
//   - 404 when the project does not exist
//   - 409 when the project already reached a terminal status
//   - 502 when the queue rejects a publish; already-published jobs stay
//     queued, so a retry after the broker recovers is harmless
func (h *EnqueueHandler) Enqueue(c *gin.Context) {
	projectID := strings.TrimSpace(c.Param("id"))
	if projectID == "" {
		fail(c, http.StatusBadRequest, codeInvalidRequest, "missing project id")
		return
	}
	ctx := c.Request.Context()

	if _, err := repo.GetProject(ctx, h.DB, projectID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, codeProjectNotFound, "project not found")
			return
		}
		fail(c, http.StatusInternalServerError, codeInternalError, "lookup failed")
		return
	}

	started, err := repo.StartProject(ctx, h.DB, projectID)
	if err != nil {
		fail(c, http.StatusInternalServerError, codeInternalError, "update failed")
		return
	}
	if !started {
		fail(c, http.StatusConflict, codeInvalidRequest, "project already completed")
		return
	}

	ids, err := repo.ListPendingURLIDs(ctx, h.DB, projectID)
	if err != nil {
		fail(c, http.StatusInternalServerError, codeInternalError, "scan failed")
		return
	}

	enqueued := 0
	for _, id := range ids {
		if err := h.Queue.Enqueue(ctx, id); err != nil {
			lg := middleware.LoggerFrom(c)
			lg.Error().Err(err).
				Str("project_id", projectID).
				Int("enqueued", enqueued).
				Int("pending", len(ids)).
				Msg("enqueue aborted")
			fail(c, http.StatusBadGateway, codeInternalError, "queue publish failed")
			return
		}
		enqueued++
	}

	ok(c, http.StatusAccepted, EnqueueResponse{ProjectID: projectID, Enqueued: enqueued})
}
