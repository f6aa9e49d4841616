// Package api is the thin HTTP transport of spec.md §4.6, exposing
// submit/status/cancel/list/video_path/health over gin-gonic/gin — the
// same router construction (gin.New + gin.Recovery, routes registered by
// resource) used in
// _examples/injaneity-brainbot-464/api/server.go's NewRouter.
package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"eduvid/internal/apperr"
	"eduvid/internal/docextract"
	"eduvid/internal/logging"
	"eduvid/internal/orchestrator"
	"eduvid/internal/types"
)

// Server wraps an Orchestrator with its gin Engine.
type Server struct {
	orch      *orchestrator.Orchestrator
	uploadCfg docextract.Config
	uploadDir string
	log       logging.Logger
}

// NewRouter builds a gin.Engine with every route registered.
func NewRouter(orch *orchestrator.Orchestrator, uploadCfg docextract.Config, uploadDir string, log logging.Logger) *gin.Engine {
	s := &Server{orch: orch, uploadCfg: uploadCfg, uploadDir: uploadDir, log: log.With().Str("component", "api").Logger()}

	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/jobs", s.handleSubmit)
	r.GET("/jobs/:id", s.handleStatus)
	r.POST("/jobs/:id/cancel", s.handleCancel)
	r.GET("/jobs", s.handleList)
	r.GET("/jobs/:id/video", s.handleVideoPath)
	r.GET("/health", s.handleHealth)
	r.GET("/admin/llm", s.handleLLMAdmin)

	return r
}

// handleSubmit accepts a multipart upload, saves it under uploadDir, and
// submits it to the orchestrator.
func (s *Server) handleSubmit(c *gin.Context) {
	file, err := c.FormFile("document")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document field is required"})
		return
	}

	priority := types.ParsePriority(c.PostForm("priority"))

	dest := s.uploadDir + "/" + file.Filename
	if err := c.SaveUploadedFile(file, dest); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save upload"})
		return
	}

	job, err := s.orch.Submit(dest, s.uploadCfg, priority)
	if err != nil {
		_ = os.Remove(dest)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, job)
}

func (s *Server) handleStatus(c *gin.Context) {
	job, err := s.orch.StatusOf(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleCancel(c *gin.Context) {
	if err := s.orch.Cancel(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelling"})
}

func (s *Server) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.List())
}

func (s *Server) handleVideoPath(c *gin.Context) {
	job, err := s.orch.StatusOf(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if job.Video == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "video not yet available"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": job.Video.Path})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.Health())
}

// handleLLMAdmin reports the LLM provider/model currently configured, the
// Go module's narrowed equivalent of
// original_source/server/app/services/llm_admin_service.py's
// get_current_config (see DESIGN.md for the multi-provider surface that
// is not ported).
func (s *Server) handleLLMAdmin(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.LLMAdminConfig())
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
