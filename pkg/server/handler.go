package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mikeboe/deep-research/pkg/clients"
	"github.com/mikeboe/deep-research/pkg/database"
)

type Handler struct {
	Service *Service
	MCP     http.Handler
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s, MCP: NewMCPHandler(s)}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.Any("/mcp", gin.WrapH(h.MCP))
	api := r.Group("/api")
	{
		api.GET("/models", h.listModels)
		api.POST("/feedback", h.feedback)
		api.POST("/research", h.research)
		api.GET("/research/:id/logs", h.getRunLogs)
	}
}

type FeedbackRequest struct {
	Query        string `json:"query"`
	NumQuestions *int   `json:"numQuestions"`
	ModelID      string `json:"modelId"`
}

type ResearchRequest struct {
	Query   string `json:"query"`
	Breadth *int   `json:"breadth"`
	Depth   *int   `json:"depth"`
	ModelID string `json:"modelId"`
}

// Validate fills defaults and rejects malformed input.
func (r *ResearchRequest) Validate() (ResearchInput, error) {
	in := ResearchInput{
		Query:   strings.TrimSpace(r.Query),
		Breadth: DefaultBreadth,
		Depth:   DefaultDepth,
		ModelID: r.ModelID,
	}
	if in.Query == "" {
		return in, errors.New("query is required")
	}
	if r.Breadth != nil {
		if *r.Breadth < 1 {
			return in, errors.New("breadth must be a positive integer")
		}
		in.Breadth = *r.Breadth
	}
	if r.Depth != nil {
		if *r.Depth < 1 {
			return in, errors.New("depth must be a positive integer")
		}
		in.Depth = *r.Depth
	}
	return in, nil
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"models":  clients.AvailableModels,
		"default": h.Service.Cfg.DefaultModel,
	})
}

// configStatus maps configuration failures: unknown models are bad requests,
// missing credentials are unauthorized.
func configStatus(modelID string) int {
	if modelID != "" {
		if _, ok := clients.LookupModel(modelID); !ok {
			return http.StatusBadRequest
		}
	}
	return http.StatusUnauthorized
}

func (h *Handler) feedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	numQuestions := DefaultNumQuestions
	if req.NumQuestions != nil {
		if *req.NumQuestions < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "numQuestions must not be negative"})
			return
		}
		numQuestions = *req.NumQuestions
	}
	if err := h.Service.Cfg.ValidateModel(req.ModelID); err != nil {
		c.JSON(configStatus(req.ModelID), gin.H{"error": err.Error()})
		return
	}

	questions, err := h.Service.Feedback(c.Request.Context(), req.Query, numQuestions, req.ModelID)
	if err != nil {
		h.Service.Logger.Error("Feedback generation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to generate feedback",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": questions})
}

func (h *Handler) research(c *gin.Context) {
	var req ResearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in, err := req.Validate()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Service.Cfg.Validate(in.ModelID); err != nil {
		c.JSON(configStatus(in.ModelID), gin.H{"error": err.Error()})
		return
	}
	in.RunID = uuid.New()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Run-Id", in.RunID.String())
	c.Status(http.StatusOK)

	logger := h.Service.Logger.With("run_id", in.RunID.String())
	stream := newSSEWriter(c.Writer, c.Writer.Flush, logger)

	// A disconnected client does not cancel the run; its frames are dropped.
	ctx := context.WithoutCancel(c.Request.Context())
	for frame := range h.Service.Run(ctx, in) {
		_ = stream.Write(frame)
	}
}

func (h *Handler) getRunLogs(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return
	}

	logs, err := h.Service.RunLogs(c.Request.Context(), id)
	if errors.Is(err, ErrNoRunStore) || errors.Is(err, database.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if logs == nil {
		logs = []database.LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}
