package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"aichat/internal/domain/models"
	"aichat/internal/domain/repositories"
)

// CursorRepository implements repositories.CursorRepository using PostgreSQL
type CursorRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewCursorRepository creates a new CursorRepository
func NewCursorRepository(config *RepositoryConfig) repositories.CursorRepository {
	return &CursorRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Get retrieves the cursor for a (conversation, file) pair, nil when absent
func (r *CursorRepository) Get(ctx context.Context, conversationID, fileID string) (*models.FileReadCursor, error) {
	query := fmt.Sprintf(`
		SELECT conversation_id, file_id, user_id, read_offset, updated_at
		FROM %s
		WHERE conversation_id = $1 AND file_id = $2
	`, r.tables.Cursors)

	var cursor models.FileReadCursor
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, conversationID, fileID).Scan(
		&cursor.ConversationID,
		&cursor.FileID,
		&cursor.UserID,
		&cursor.Offset,
		&cursor.UpdatedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get file cursor: %w", err)
	}

	return &cursor, nil
}

// Latest returns the most recently updated cursor in the conversation,
// nil when the conversation has none
func (r *CursorRepository) Latest(ctx context.Context, conversationID, userID string) (*models.FileReadCursor, error) {
	query := fmt.Sprintf(`
		SELECT conversation_id, file_id, user_id, read_offset, updated_at
		FROM %s
		WHERE conversation_id = $1 AND user_id = $2
		ORDER BY updated_at DESC
		LIMIT 1
	`, r.tables.Cursors)

	var cursor models.FileReadCursor
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, conversationID, userID).Scan(
		&cursor.ConversationID,
		&cursor.FileID,
		&cursor.UserID,
		&cursor.Offset,
		&cursor.UpdatedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest file cursor: %w", err)
	}

	return &cursor, nil
}

// Upsert writes a cursor, overwriting offset and owner on conflict.
// Idempotent under retry: repeating an upsert with the same offset leaves
// the stored offset unchanged.
func (r *CursorRepository) Upsert(ctx context.Context, cursor *models.FileReadCursor) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (conversation_id, file_id, user_id, read_offset, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (conversation_id, file_id)
		DO UPDATE SET user_id = EXCLUDED.user_id,
		              read_offset = EXCLUDED.read_offset,
		              updated_at = NOW()
	`, r.tables.Cursors)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query,
		cursor.ConversationID,
		cursor.FileID,
		cursor.UserID,
		cursor.Offset,
	); err != nil {
		return fmt.Errorf("upsert file cursor: %w", err)
	}

	return nil
}

// DeleteByConversation removes all cursors in a conversation
func (r *CursorRepository) DeleteByConversation(ctx context.Context, conversationID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE conversation_id = $1`, r.tables.Cursors)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, conversationID); err != nil {
		return fmt.Errorf("delete file cursors: %w", err)
	}

	return nil
}
