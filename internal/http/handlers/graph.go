package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/biographdb/biograph-backend/internal/data/entitystore"
	"github.com/biographdb/biograph-backend/internal/graphbuild"
	"github.com/biographdb/biograph-backend/internal/http/response"
	pkgerrors "github.com/biographdb/biograph-backend/internal/pkg/errors"
	"github.com/biographdb/biograph-backend/internal/platform/logger"
	"github.com/biographdb/biograph-backend/internal/services"
)

// GraphHandler serves the endpoints specific to graph builds: the detail
// alias, the two download forms and the collection listing used by clients
// to discover valid build parameters.
type GraphHandler struct {
	log  *logger.Logger
	jobs services.JobService
}

func NewGraphHandler(baseLog *logger.Logger, jobs services.JobService) *GraphHandler {
	return &GraphHandler{
		log:  baseLog.With("handler", "GraphHandler"),
		jobs: jobs,
	}
}

// GET /graph/details/:uid
func (h *GraphHandler) Details(c *gin.Context) {
	uid, err := uuid.Parse(c.Param("uid"))
	if err != nil {
		response.RespondError(c, http.StatusNotFound, "job_not_found", err)
		return
	}
	job, err := h.jobs.Status(c.Request.Context(), "graph", uid)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			response.RespondError(c, http.StatusNotFound, "job_not_found", err)
			return
		}
		respondJobError(c, err)
		return
	}
	response.RespondOK(c, job)
}

// GET /graph/download/:fname where fname is {uid}.graphml.
func (h *GraphHandler) Download(c *gin.Context) {
	h.serveGraphML(c, c.Param("fname"), "")
}

// GET /graph/download_v2/:uid/:fname lets clients pick the saved filename.
func (h *GraphHandler) DownloadNamed(c *gin.Context) {
	h.serveGraphML(c, c.Param("uid")+".graphml", c.Param("fname"))
}

func (h *GraphHandler) serveGraphML(c *gin.Context, fname, saveAs string) {
	raw, ok := strings.CutSuffix(fname, ".graphml")
	if !ok {
		response.RespondError(c, http.StatusNotFound, "job_not_found", nil)
		return
	}
	uid, err := uuid.Parse(raw)
	if err != nil {
		response.RespondError(c, http.StatusNotFound, "job_not_found", err)
		return
	}

	path, mediaType, err := h.jobs.ArtifactPath(c.Request.Context(), "graph", uid)
	if err != nil {
		respondJobError(c, err)
		return
	}

	c.Header("Content-Type", mediaType)
	if saveAs != "" {
		if !strings.HasSuffix(saveAs, ".graphml") {
			saveAs += ".graphml"
		}
		c.FileAttachment(path, saveAs)
		return
	}
	c.File(path)
}

// GET /graph/collections lists the valid values for every build parameter.
func (h *GraphHandler) Collections(c *gin.Context) {
	response.RespondOK(c, gin.H{
		"nodes":        entitystore.NodeCollectionNames,
		"edges":        entitystore.EdgeCollectionNames,
		"iid_evidence": graphbuild.ValidIIDEvidence,
		"taxid":        graphbuild.ValidTaxIDs,
		"drug_groups":  graphbuild.ValidDrugGroups,
	})
}
