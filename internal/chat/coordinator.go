package chat

import (
	"context"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/appforge/appforge/internal/agent"
	apperrors "github.com/appforge/appforge/internal/common/errors"
	"github.com/appforge/appforge/internal/common/logger"
	"github.com/appforge/appforge/internal/events"
	"github.com/appforge/appforge/internal/events/bus"
	"github.com/appforge/appforge/internal/parser"
	"github.com/appforge/appforge/internal/project/models"
	"github.com/appforge/appforge/internal/project/store"
)

// Result is the outcome of one chat turn.
type Result struct {
	ConversationID string
	Message        string          // explanation text with file blocks stripped
	Project        *models.Project // nil when the response contained no files
	ShouldUpdate   bool            // true when an existing project was modified
}

// Coordinator drives the chat flow: it assembles conversation history, asks
// the model, drains the streamed response, extracts file edits, and
// materializes them through the project store.
type Coordinator struct {
	repo       Repository
	projects   *store.Store
	capability agent.Capability
	eventBus   bus.EventBus
	logger     *logger.Logger
}

// NewCoordinator creates a chat coordinator.
func NewCoordinator(repo Repository, projects *store.Store, capability agent.Capability, eventBus bus.EventBus, log *logger.Logger) *Coordinator {
	return &Coordinator{
		repo:       repo,
		projects:   projects,
		capability: capability,
		eventBus:   eventBus,
		logger:     log.WithFields(zap.String("component", "chat-coordinator")),
	}
}

// CreateConversation starts an empty conversation.
func (c *Coordinator) CreateConversation(ctx context.Context) (*Conversation, error) {
	conv := &Conversation{}
	if err := c.repo.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	c.publish(ctx, events.ConversationCreated, map[string]interface{}{
		"conversation_id": conv.ID,
	})
	return conv, nil
}

// GetConversation returns a conversation with its messages.
func (c *Coordinator) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	return c.repo.GetConversation(ctx, id)
}

// ListConversations returns all conversations.
func (c *Coordinator) ListConversations(ctx context.Context) ([]*Conversation, error) {
	return c.repo.ListConversations(ctx)
}

// HandleMessage runs one chat turn. The streamed model response is drained
// completely before any conversation state is written, so an upstream failure
// leaves both the conversation and the project exactly as they were.
func (c *Coordinator) HandleMessage(ctx context.Context, message, conversationID, projectID string) (*Result, error) {
	if strings.TrimSpace(message) == "" {
		return nil, apperrors.ValidationError("message", "must not be empty")
	}

	var conv *Conversation
	if conversationID != "" {
		existing, err := c.repo.GetConversation(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		conv = existing
	}

	// An explicit project wins over the conversation's binding.
	targetProject := projectID
	if targetProject == "" && conv != nil {
		targetProject = conv.ProjectID
	}

	var proj *models.Project
	if targetProject != "" {
		existing, err := c.projects.Get(targetProject)
		if err != nil {
			return nil, err
		}
		proj = existing
	}

	req := agent.Request{System: buildSystem(proj)}
	if conv != nil {
		for _, m := range conv.Messages {
			req.Messages = append(req.Messages, agent.Message{
				Role:    agent.Role(m.Role),
				Content: m.Content,
			})
		}
	}
	req.Messages = append(req.Messages, agent.Message{Role: agent.RoleUser, Content: message})

	response, err := c.drain(ctx, req)
	if err != nil {
		return nil, err
	}

	edits, explanation := parser.Parse(response)

	if conv == nil {
		created, err := c.CreateConversation(ctx)
		if err != nil {
			return nil, err
		}
		conv = created
	}
	if err := c.repo.AppendMessage(ctx, conv.ID, &Message{Role: RoleUser, Content: message}); err != nil {
		return nil, err
	}
	var touched []string
	for _, e := range edits {
		touched = append(touched, e.Path)
	}
	if err := c.repo.AppendMessage(ctx, conv.ID, &Message{Role: RoleAssistant, Content: response, FilePaths: touched}); err != nil {
		return nil, err
	}
	c.publish(ctx, events.MessageAdded, map[string]interface{}{
		"conversation_id": conv.ID,
	})

	result := &Result{
		ConversationID: conv.ID,
		Message:        explanation,
	}
	if len(edits) == 0 {
		return result, nil
	}
	// Files landing in an already-bound project mean the caller should
	// refresh its view rather than open a new one.
	result.ShouldUpdate = targetProject != ""

	files := make([]store.FileInput, len(edits))
	for i, e := range edits {
		files[i] = store.FileInput{Path: e.Path, Content: e.Content, Language: e.Language}
	}

	materialized, err := c.projects.CreateOrUpdate(ctx, files, message, targetProject)
	if err != nil {
		return nil, err
	}
	result.Project = materialized

	if conv.ProjectID != materialized.ID {
		if err := c.repo.SetProjectID(ctx, conv.ID, materialized.ID); err != nil {
			return nil, err
		}
	}

	c.logger.Info("chat turn materialized",
		zap.String("conversation_id", conv.ID),
		zap.String("project_id", materialized.ID),
		zap.Int("files", len(edits)),
		zap.Bool("update", result.ShouldUpdate))
	return result, nil
}

// drain collects the full streamed completion. Partial output from a failed
// stream is discarded; a half-parsed response must never materialize files.
func (c *Coordinator) drain(ctx context.Context, req agent.Request) (string, error) {
	stream, err := c.capability.Stream(ctx, req)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return "", err
		}
		return "", apperrors.UpstreamError("model request failed", err)
	}
	defer func() { _ = stream.Close() }()

	var b strings.Builder
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) {
				return "", err
			}
			return "", apperrors.UpstreamError("model stream failed", err)
		}
		b.WriteString(chunk)
	}
	return b.String(), nil
}

func (c *Coordinator) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if c.eventBus == nil {
		return
	}
	if err := c.eventBus.Publish(ctx, eventType, bus.NewEvent(eventType, "chat-coordinator", data)); err != nil {
		c.logger.Warn("failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}
