package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	apperrors "github.com/appforge/appforge/internal/common/errors"
)

// SQLiteRepository provides SQLite-based conversation storage operations
type SQLiteRepository struct {
	db *sql.DB
}

// Ensure SQLiteRepository implements Repository interface
var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository creates a new SQLite repository
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	repo := &SQLiteRepository{db: db}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return repo, nil
}

// initSchema creates the database tables if they don't exist
func (r *SQLiteRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		project_id TEXT DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		file_paths TEXT NOT NULL DEFAULT '',
		timestamp DATETIME NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id);
	`

	_, err := r.db.Exec(schema)
	return err
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// CreateConversation creates a new conversation
func (r *SQLiteRepository) CreateConversation(ctx context.Context, conv *Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (id, project_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, conv.ID, conv.ProjectID, conv.CreatedAt, conv.UpdatedAt)
	return err
}

// GetConversation retrieves a conversation with its messages
func (r *SQLiteRepository) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	conv := &Conversation{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id).Scan(&conv.ID, &conv.ProjectID, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("conversation", id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, role, content, file_paths, timestamp
		FROM messages WHERE conversation_id = ? ORDER BY timestamp ASC, id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		msg := &Message{}
		var paths string
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &paths, &msg.Timestamp); err != nil {
			return nil, err
		}
		if paths != "" {
			if err := json.Unmarshal([]byte(paths), &msg.FilePaths); err != nil {
				return nil, fmt.Errorf("failed to decode message file paths: %w", err)
			}
		}
		conv.Messages = append(conv.Messages, msg)
	}
	return conv, rows.Err()
}

// ListConversations returns all conversations, most recently updated first.
// Messages are loaded per conversation; listings stay small enough that the
// extra queries do not matter.
func (r *SQLiteRepository) ListConversations(ctx context.Context) ([]*Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM conversations ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := r.GetConversation(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, nil
}

// AppendMessage adds a message to an existing conversation
func (r *SQLiteRepository) AppendMessage(ctx context.Context, conversationID string, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE conversations SET updated_at = ? WHERE id = ?
	`, time.Now().UTC(), conversationID)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return apperrors.NotFound("conversation", conversationID)
	}

	var paths string
	if len(msg.FilePaths) > 0 {
		encoded, err := json.Marshal(msg.FilePaths)
		if err != nil {
			return fmt.Errorf("failed to encode message file paths: %w", err)
		}
		paths = string(encoded)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, file_paths, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, conversationID, string(msg.Role), msg.Content, paths, msg.Timestamp)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// SetProjectID binds a conversation to the project its files belong to
func (r *SQLiteRepository) SetProjectID(ctx context.Context, conversationID, projectID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET project_id = ?, updated_at = ? WHERE id = ?
	`, projectID, time.Now().UTC(), conversationID)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return apperrors.NotFound("conversation", conversationID)
	}
	return nil
}
