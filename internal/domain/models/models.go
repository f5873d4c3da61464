package models

import (
	"strings"
	"time"
)

// User is an account that owns conversations and uploaded files.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Conversation is a chat session owned by exactly one user. UpdatedAt is
// bumped whenever a turn completes, which drives sidebar ordering.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message lifecycle statuses. An assistant message is created in
// StatusStreaming and moves to exactly one terminal status.
const (
	StatusStreaming = "streaming"
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
	StatusError     = "error"
)

// Message is one turn half within a conversation. Token counts, cost and
// the estimated flag are only set on completed assistant messages.
type Message struct {
	ID               string    `json:"id"`
	ConversationID   string    `json:"-"`
	Role             string    `json:"role"`
	Content          string    `json:"content"`
	Status           string    `json:"status,omitempty"`
	Error            *string   `json:"error,omitempty"`
	PromptTokens     *int      `json:"promptTokens,omitempty"`
	CompletionTokens *int      `json:"completionTokens,omitempty"`
	TotalTokens      *int      `json:"totalTokens,omitempty"`
	Cost             *float64  `json:"cost,omitempty"`
	Estimated        *bool     `json:"estimated,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// UploadedFile is an immutable record of a file stored on disk under
// StoredName. Message text references it via /api/files/{id} links.
type UploadedFile struct {
	ID           string    `json:"id"`
	UserID       string    `json:"-"`
	StoredName   string    `json:"-"`
	OriginalName string    `json:"originalName"`
	Mime         string    `json:"mime"`
	SizeBytes    int64     `json:"size"`
	CreatedAt    time.Time `json:"createdAt"`
}

// IsImage reports whether the file participates in multimodal image input
// rather than text extraction.
func (f *UploadedFile) IsImage() bool {
	return strings.HasPrefix(f.Mime, "image/")
}

// FileReadCursor tracks how far a file's extracted text has been consumed
// within one conversation. Offset is monotonically non-decreasing within a
// conversation; upserts are last-write-wins on (conversation, file).
type FileReadCursor struct {
	ConversationID string    `json:"conversationId"`
	FileID         string    `json:"fileId"`
	UserID         string    `json:"-"`
	Offset         int       `json:"offset"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
