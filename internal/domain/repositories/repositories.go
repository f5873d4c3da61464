package repositories

import (
	"context"

	"aichat/internal/domain/models"
)

// UserRepository provides access to user accounts.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// ConversationRepository provides access to conversations, always scoped to
// the owning user.
type ConversationRepository interface {
	Create(ctx context.Context, conv *models.Conversation) error
	Get(ctx context.Context, id, userID string) (*models.Conversation, error)
	ListByUser(ctx context.Context, userID string) ([]models.Conversation, error)
	UpdateTitle(ctx context.Context, id, userID, title string) (*models.Conversation, error)
	// Touch bumps updated_at; called from the stream finalizer.
	Touch(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// MessageRepository provides access to messages within a conversation.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error)
	// Finalize records the terminal state of an assistant message: content,
	// status, optional error text and optional usage. It is the sole mutator
	// of a message after creation.
	Finalize(ctx context.Context, id string, content, status string, errText *string, usage *models.Usage) error
	DeleteByConversation(ctx context.Context, conversationID string) error
}

// FileRepository provides access to uploaded file records.
type FileRepository interface {
	Create(ctx context.Context, file *models.UploadedFile) error
	Get(ctx context.Context, id, userID string) (*models.UploadedFile, error)
	// ListByIDs returns the subset of ids owned by the user, preserving the
	// order of the requested ids.
	ListByIDs(ctx context.Context, ids []string, userID string) ([]models.UploadedFile, error)
}

// CursorRepository tracks per-(conversation, file) read offsets into
// extracted attachment text.
type CursorRepository interface {
	Get(ctx context.Context, conversationID, fileID string) (*models.FileReadCursor, error)
	// Latest returns the most recently updated cursor in the conversation,
	// or nil when the conversation has none.
	Latest(ctx context.Context, conversationID, userID string) (*models.FileReadCursor, error)
	// Upsert overwrites offset and owner on conflict (last write wins).
	Upsert(ctx context.Context, cursor *models.FileReadCursor) error
	DeleteByConversation(ctx context.Context, conversationID string) error
}
