package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/biographdb/biograph-backend/internal/http/response"
	pipelines "github.com/biographdb/biograph-backend/internal/jobs/pipeline"
	"github.com/biographdb/biograph-backend/internal/platform/logger"
	"github.com/biographdb/biograph-backend/internal/services"
)

// BiconHandler owns the two endpoints specific to the biclustering kind: the
// multipart submission and the clustermap image download.
type BiconHandler struct {
	log        *logger.Logger
	jobs       services.JobService
	pipeline   *pipelines.BiconPipeline
	resultsDir string
}

func NewBiconHandler(baseLog *logger.Logger, jobs services.JobService, pipeline *pipelines.BiconPipeline, resultsDir string) *BiconHandler {
	return &BiconHandler{
		log:        baseLog.With("handler", "BiconHandler"),
		jobs:       jobs,
		pipeline:   pipeline,
		resultsDir: resultsDir,
	}
}

// POST /bicon/submit takes a multipart form with the expression matrix plus the
// clustering window. Parameters ride in form fields; the file's name plays
// no part in deduplication.
func (h *BiconHandler) Submit(c *gin.Context) {
	header, err := c.FormFile("expression")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "missing_expression_file", err)
		return
	}
	file, err := header.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_expression_file", err)
		return
	}
	defer file.Close()

	params := map[string]any{}
	for _, field := range []string{"lg_min", "lg_max"} {
		if v := c.PostForm(field); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				response.RespondError(c, http.StatusNotFound, "invalid_parameters", err)
				return
			}
			params[field] = n
		}
	}
	if v := c.PostForm("network"); v != "" {
		params["network"] = v
	}

	job, _, err := h.jobs.SubmitUpload(c.Request.Context(), "bicon", header.Filename, file, params)
	if err != nil {
		respondJobError(c, err)
		return
	}
	c.String(http.StatusOK, job.UID.String())
}

// GET /bicon/clustermap?uid=
func (h *BiconHandler) Clustermap(c *gin.Context) {
	uid, err := uuid.Parse(c.Query("uid"))
	if err != nil {
		response.RespondError(c, http.StatusNotFound, "job_not_found", err)
		return
	}

	// Route through the artifact check so incomplete jobs get the same 404
	// as a missing download.
	if _, _, err := h.jobs.ArtifactPath(c.Request.Context(), "bicon", uid); err != nil {
		respondJobError(c, err)
		return
	}

	png, err := h.pipeline.Clustermap(h.resultsDir, uid.String())
	if err != nil {
		respondJobError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
