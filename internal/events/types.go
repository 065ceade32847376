// Package events provides event types and utilities for the AppForge event system.
package events

// Event types for projects
const (
	ProjectCreated       = "project.created"
	ProjectUpdated       = "project.updated"
	ProjectDeleted       = "project.deleted"
	ProjectStatusChanged = "project.status_changed"
	ProjectOutput        = "project.output"
)

// Event types for conversations
const (
	ConversationCreated = "conversation.created"
	MessageAdded        = "message.added"
)
