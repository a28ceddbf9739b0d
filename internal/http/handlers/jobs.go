package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/biographdb/biograph-backend/internal/http/response"
	pkgerrors "github.com/biographdb/biograph-backend/internal/pkg/errors"
	"github.com/biographdb/biograph-backend/internal/platform/logger"
	"github.com/biographdb/biograph-backend/internal/services"
)

// JobHandler serves the shared submit/status/download surface every job kind
// exposes. Routes are registered per kind, so the handler methods are
// factories closing over the kind name.
type JobHandler struct {
	log  *logger.Logger
	jobs services.JobService
}

func NewJobHandler(baseLog *logger.Logger, jobs services.JobService) *JobHandler {
	return &JobHandler{
		log:  baseLog.With("handler", "JobHandler"),
		jobs: jobs,
	}
}

// POST /:kind/submit responds with the bare job uid so callers can poll.
func (h *JobHandler) Submit(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var params map[string]any
		if err := c.ShouldBindJSON(&params); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
			return
		}

		job, _, err := h.jobs.Submit(c.Request.Context(), kind, params)
		if err != nil {
			respondJobError(c, err)
			return
		}
		c.String(http.StatusOK, job.UID.String())
	}
}

// GET /:kind/status?uid= returns the recorded params and status. An unknown
// or malformed uid yields an empty object rather than an error.
func (h *JobHandler) Status(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := uuid.Parse(c.Query("uid"))
		if err != nil {
			response.RespondOK(c, gin.H{})
			return
		}

		job, err := h.jobs.Status(c.Request.Context(), kind, uid)
		if err != nil {
			if errors.Is(err, pkgerrors.ErrNotFound) {
				response.RespondOK(c, gin.H{})
				return
			}
			respondJobError(c, err)
			return
		}

		// Parameter fields sit alongside the lifecycle fields, mirroring
		// the stored record rather than nesting a params object.
		payload := gin.H{}
		if len(job.Params) > 0 {
			_ = json.Unmarshal(job.Params, &payload)
		}
		payload["uid"] = job.UID.String()
		payload["kind"] = job.Kind
		payload["status"] = job.Status
		if job.Error != "" {
			payload["error"] = job.Error
		}
		if len(job.Result) > 0 {
			var result any
			if err := json.Unmarshal(job.Result, &result); err == nil {
				payload["result"] = result
			}
		}
		response.RespondOK(c, payload)
	}
}

// GET /:kind/download?uid=
func (h *JobHandler) Download(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := uuid.Parse(c.Query("uid"))
		if err != nil {
			response.RespondError(c, http.StatusNotFound, "job_not_found", err)
			return
		}

		path, mediaType, err := h.jobs.ArtifactPath(c.Request.Context(), kind, uid)
		if err != nil {
			respondJobError(c, err)
			return
		}
		c.Header("Content-Type", mediaType)
		c.File(path)
	}
}

// respondJobError maps the service sentinels onto the status codes callers
// of the original API rely on: anything missing, invalid or premature is 404.
func respondJobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pkgerrors.ErrInvalidArgument):
		response.RespondError(c, http.StatusNotFound, "invalid_parameters", err)
	case errors.Is(err, pkgerrors.ErrNotCompleted):
		response.RespondError(c, http.StatusNotFound, "job_not_completed", err)
	case errors.Is(err, pkgerrors.ErrNotFound):
		response.RespondError(c, http.StatusNotFound, "not_found", err)
	default:
		response.RespondError(c, http.StatusInternalServerError, "internal_error", err)
	}
}
