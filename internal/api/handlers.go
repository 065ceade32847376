package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/appforge/appforge/internal/chat"
	apperrors "github.com/appforge/appforge/internal/common/errors"
	"github.com/appforge/appforge/internal/common/logger"
	"github.com/appforge/appforge/internal/project/builder"
	"github.com/appforge/appforge/internal/project/models"
	"github.com/appforge/appforge/internal/project/runner"
	"github.com/appforge/appforge/internal/project/store"
)

// Handler contains HTTP handlers for the chat and project API
type Handler struct {
	coordinator *chat.Coordinator
	projects    *store.Store
	builder     *builder.Builder
	supervisor  *runner.Supervisor
	logger      *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(coordinator *chat.Coordinator, projects *store.Store, b *builder.Builder, sup *runner.Supervisor, log *logger.Logger) *Handler {
	return &Handler{
		coordinator: coordinator,
		projects:    projects,
		builder:     b,
		supervisor:  sup,
		logger:      log,
	}
}

// respondError maps an error onto its HTTP status with a plain error body.
func respondError(c *gin.Context, err error) {
	c.JSON(apperrors.GetHTTPStatus(err), gin.H{"error": apperrors.GetMessage(err)})
}

// Conversation endpoints

// ListConversations lists all conversations
// GET /api/conversations
func (h *Handler) ListConversations(c *gin.Context) {
	convs, err := h.coordinator.ListConversations(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

// CreateConversation starts an empty conversation
// POST /api/conversations
func (h *Handler) CreateConversation(c *gin.Context) {
	conv, err := h.coordinator.CreateConversation(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to create conversation", zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

// GetConversation retrieves a conversation with its messages
// GET /api/conversations/:conversationId
func (h *Handler) GetConversation(c *gin.Context) {
	conv, err := h.coordinator.GetConversation(c.Request.Context(), c.Param("conversationId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Chat runs one chat turn: prompt the model, extract files, materialize them
// POST /api/chat
func (h *Handler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.BadRequest(err.Error()))
		return
	}

	result, err := h.coordinator.HandleMessage(c.Request.Context(), req.Message, req.ConversationID, req.ProjectID)
	if err != nil {
		h.logger.Error("chat turn failed", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ChatResponse{
		Success:        true,
		ConversationID: result.ConversationID,
		Message:        result.Message,
		Project:        result.Project,
		ShouldUpdate:   result.ShouldUpdate,
	})
}

// Project endpoints

// ListProjects lists all projects, most recent first
// GET /api/projects
func (h *Handler) ListProjects(c *gin.Context) {
	c.JSON(http.StatusOK, h.projects.List())
}

// GetProject retrieves a project by ID
// GET /api/projects/:projectId
func (h *Handler) GetProject(c *gin.Context) {
	proj, err := h.projects.Get(c.Param("projectId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, proj)
}

// DeleteProject stops the project's process and removes it from the registry
// DELETE /api/projects/:projectId
func (h *Handler) DeleteProject(c *gin.Context) {
	projectID := c.Param("projectId")

	// Stop the process first so the registry entry is still there to resolve
	// it. A stop failure is logged but does not block removal.
	if err := h.supervisor.Stop(c.Request.Context(), projectID); err != nil && !apperrors.IsNotFound(err) {
		h.logger.Warn("failed to stop project before delete",
			zap.String("project_id", projectID), zap.Error(err))
	}

	if err := h.projects.Delete(c.Request.Context(), projectID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"projects": h.projects.List(),
	})
}

// BuildProject installs the project's dependencies
// POST /api/projects/:projectId/build
func (h *Handler) BuildProject(c *gin.Context) {
	proj, err := h.builder.Build(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		h.logger.Error("build failed", zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  proj.Status != models.StatusError,
		"output":   proj.LastOutput,
		"projects": h.projects.List(),
	})
}

// RunProject starts the project's process
// POST /api/projects/:projectId/run
func (h *Handler) RunProject(c *gin.Context) {
	proj, err := h.builder.Run(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		h.logger.Error("run failed", zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"output":   proj.LastOutput,
		"port":     proj.Port,
		"projects": h.projects.List(),
	})
}

// StopProject stops the project's process
// POST /api/projects/:projectId/stop
func (h *Handler) StopProject(c *gin.Context) {
	proj, err := h.builder.Stop(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"output":   proj.LastOutput,
		"projects": h.projects.List(),
	})
}

// RestartProject stops and restarts the project's process on a fresh port
// POST /api/projects/:projectId/restart
func (h *Handler) RestartProject(c *gin.Context) {
	proj, err := h.builder.Restart(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		h.logger.Error("restart failed", zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"output":   proj.LastOutput,
		"port":     proj.Port,
		"projects": h.projects.List(),
	})
}

// GetProjectFile reads one project file from disk
// GET /api/projects/:projectId/files/*filePath
func (h *Handler) GetProjectFile(c *gin.Context) {
	filePath := strings.TrimPrefix(c.Param("filePath"), "/")
	content, err := h.projects.GetFile(c.Param("projectId"), filePath)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, FileResponse{Success: true, Content: content})
}

// UpdateProjectFile rewrites one project file on disk
// PUT /api/projects/:projectId/files/*filePath
func (h *Handler) UpdateProjectFile(c *gin.Context) {
	var req UpdateFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.BadRequest(err.Error()))
		return
	}

	filePath := strings.TrimPrefix(c.Param("filePath"), "/")
	if err := h.projects.UpdateFile(c.Param("projectId"), filePath, req.Content); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
