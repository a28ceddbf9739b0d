package http

import (
	"sort"

	"github.com/gin-gonic/gin"

	httpH "github.com/biographdb/biograph-backend/internal/http/handlers"
	httpMW "github.com/biographdb/biograph-backend/internal/http/middleware"
	"github.com/biographdb/biograph-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	// Kinds are the registered job kind names; each gets the shared
	// submit/status/download route triple.
	Kinds []string

	JobHandler   *httpH.JobHandler
	BiconHandler *httpH.BiconHandler
	GraphHandler *httpH.GraphHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	// Per-kind job surface
	kinds := append([]string(nil), cfg.Kinds...)
	sort.Strings(kinds)
	for _, kind := range kinds {
		kind := kind
		if kind == "bicon" && cfg.BiconHandler != nil {
			r.POST("/bicon/submit", cfg.BiconHandler.Submit)
		} else if cfg.JobHandler != nil {
			r.POST("/"+kind+"/submit", cfg.JobHandler.Submit(kind))
		}
		if cfg.JobHandler != nil {
			r.GET("/"+kind+"/status", cfg.JobHandler.Status(kind))
			r.GET("/"+kind+"/download", cfg.JobHandler.Download(kind))
		}
	}

	// Bicon extras
	if cfg.BiconHandler != nil {
		r.GET("/bicon/clustermap", cfg.BiconHandler.Clustermap)
	}

	// Graph extras
	if cfg.GraphHandler != nil {
		r.GET("/graph/details/:uid", cfg.GraphHandler.Details)
		r.GET("/graph/download/:fname", cfg.GraphHandler.Download)
		r.GET("/graph/download_v2/:uid/:fname", cfg.GraphHandler.DownloadNamed)
		r.GET("/graph/collections", cfg.GraphHandler.Collections)
	}

	return r
}
