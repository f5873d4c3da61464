package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"aichat/internal/domain"
	"aichat/internal/domain/models"
	"aichat/internal/domain/repositories"
)

// MessageRepository implements repositories.MessageRepository using
// PostgreSQL
type MessageRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(config *RepositoryConfig) repositories.MessageRepository {
	return &MessageRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create inserts a new message
func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (conversation_id, role, content, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		msg.ConversationID,
		msg.Role,
		msg.Content,
		msg.Status,
	).Scan(&msg.ID, &msg.CreatedAt)

	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}

	return nil
}

// ListByConversation retrieves all messages in a conversation, oldest first
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	query := fmt.Sprintf(`
		SELECT id, conversation_id, role, content, status, error,
		       prompt_tokens, completion_tokens, total_tokens, cost, estimated,
		       created_at
		FROM %s
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var msg models.Message
		err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.Role,
			&msg.Content,
			&msg.Status,
			&msg.Error,
			&msg.PromptTokens,
			&msg.CompletionTokens,
			&msg.TotalTokens,
			&msg.Cost,
			&msg.Estimated,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	if msgs == nil {
		msgs = []models.Message{}
	}

	return msgs, nil
}

// Finalize records the terminal state of an assistant message. The status
// guard keeps the transition one-way: a message that already reached a
// terminal status is never overwritten.
func (r *MessageRepository) Finalize(ctx context.Context, id string, content, status string, errText *string, usage *models.Usage) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET content = $1, status = $2, error = $3,
		    prompt_tokens = $4, completion_tokens = $5, total_tokens = $6,
		    cost = $7, estimated = $8
		WHERE id = $9 AND status = $10
	`, r.tables.Messages)

	var promptTokens, completionTokens, totalTokens *int
	var cost *float64
	var estimated *bool
	if usage != nil {
		promptTokens = &usage.PromptTokens
		completionTokens = &usage.CompletionTokens
		totalTokens = &usage.TotalTokens
		cost = &usage.Cost
		estimated = &usage.Estimated
	}

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query,
		content,
		status,
		errText,
		promptTokens,
		completionTokens,
		totalTokens,
		cost,
		estimated,
		id,
		models.StatusStreaming,
	)

	if err != nil {
		return fmt.Errorf("finalize message: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("message %s not in streaming state: %w", id, domain.ErrNotFound)
	}

	return nil
}

// DeleteByConversation removes all messages in a conversation
func (r *MessageRepository) DeleteByConversation(ctx context.Context, conversationID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE conversation_id = $1`, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, conversationID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}

	return nil
}
