package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/appforge/appforge/internal/common/errors"
)

// Repository defines the interface for conversation storage operations
type Repository interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context) ([]*Conversation, error)
	AppendMessage(ctx context.Context, conversationID string, msg *Message) error
	SetProjectID(ctx context.Context, conversationID, projectID string) error

	// Close closes the repository (for database connections)
	Close() error
}

// MemoryRepository provides in-memory conversation storage operations
type MemoryRepository struct {
	conversations map[string]*Conversation
	mu            sync.RWMutex
}

// Ensure MemoryRepository implements Repository interface
var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates a new in-memory conversation repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		conversations: make(map[string]*Conversation),
	}
}

// Close is a no-op for in-memory repository
func (r *MemoryRepository) Close() error {
	return nil
}

// CreateConversation creates a new conversation
func (r *MemoryRepository) CreateConversation(ctx context.Context, conv *Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	r.conversations[conv.ID] = conv.Clone()
	return nil
}

// GetConversation retrieves a conversation with its messages
func (r *MemoryRepository) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.conversations[id]
	if !ok {
		return nil, apperrors.NotFound("conversation", id)
	}
	return conv.Clone(), nil
}

// ListConversations returns all conversations, most recently updated first
func (r *MemoryRepository) ListConversations(ctx context.Context) ([]*Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Conversation, 0, len(r.conversations))
	for _, conv := range r.conversations {
		out = append(out, conv.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// AppendMessage adds a message to an existing conversation
func (r *MemoryRepository) AppendMessage(ctx context.Context, conversationID string, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[conversationID]
	if !ok {
		return apperrors.NotFound("conversation", conversationID)
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	stored := *msg
	if msg.FilePaths != nil {
		stored.FilePaths = append([]string(nil), msg.FilePaths...)
	}
	conv.Messages = append(conv.Messages, &stored)
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

// SetProjectID binds a conversation to the project its files belong to
func (r *MemoryRepository) SetProjectID(ctx context.Context, conversationID, projectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[conversationID]
	if !ok {
		return apperrors.NotFound("conversation", conversationID)
	}
	conv.ProjectID = projectID
	conv.UpdatedAt = time.Now().UTC()
	return nil
}
