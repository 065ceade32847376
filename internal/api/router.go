package api

import (
	"github.com/gin-gonic/gin"

	"github.com/appforge/appforge/internal/chat"
	"github.com/appforge/appforge/internal/common/logger"
	"github.com/appforge/appforge/internal/project/builder"
	"github.com/appforge/appforge/internal/project/runner"
	"github.com/appforge/appforge/internal/project/store"
)

// SetupRoutes configures the chat and project API routes
func SetupRoutes(router *gin.RouterGroup, coordinator *chat.Coordinator, projects *store.Store, b *builder.Builder, sup *runner.Supervisor, log *logger.Logger) {
	handler := NewHandler(coordinator, projects, b, sup, log)

	// Conversation routes
	conversations := router.Group("/conversations")
	{
		conversations.GET("", handler.ListConversations)
		conversations.POST("", handler.CreateConversation)
		conversations.GET("/:conversationId", handler.GetConversation)
	}

	router.POST("/chat", handler.Chat)

	// Project routes
	projectsGroup := router.Group("/projects")
	{
		projectsGroup.GET("", handler.ListProjects)
		projectsGroup.GET("/:projectId", handler.GetProject)
		projectsGroup.DELETE("/:projectId", handler.DeleteProject)
		projectsGroup.POST("/:projectId/build", handler.BuildProject)
		projectsGroup.POST("/:projectId/run", handler.RunProject)
		projectsGroup.POST("/:projectId/stop", handler.StopProject)
		projectsGroup.POST("/:projectId/restart", handler.RestartProject)
		projectsGroup.GET("/:projectId/files/*filePath", handler.GetProjectFile)
		projectsGroup.PUT("/:projectId/files/*filePath", handler.UpdateProjectFile)
	}
}
