// Package api provides the HTTP handlers for the chat and project API.
package api

import (
	"github.com/appforge/appforge/internal/project/models"
)

// ChatRequest for one chat turn
type ChatRequest struct {
	Message        string `json:"message" binding:"required"`
	ConversationID string `json:"conversationId,omitempty"`
	ProjectID      string `json:"projectId,omitempty"`
}

// ChatResponse is the outcome of one chat turn
type ChatResponse struct {
	Success        bool            `json:"success"`
	ConversationID string          `json:"conversationId"`
	Message        string          `json:"message"`
	Project        *models.Project `json:"project,omitempty"`
	ShouldUpdate   bool            `json:"shouldUpdate"`
}

// UpdateFileRequest for rewriting one project file
type UpdateFileRequest struct {
	Content string `json:"content"`
}

// FileResponse returns one project file's on-disk content
type FileResponse struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
}
