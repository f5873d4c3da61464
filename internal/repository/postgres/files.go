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

// FileRepository implements repositories.FileRepository using PostgreSQL
type FileRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewFileRepository creates a new FileRepository
func NewFileRepository(config *RepositoryConfig) repositories.FileRepository {
	return &FileRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create inserts a new uploaded file record
func (r *FileRepository) Create(ctx context.Context, file *models.UploadedFile) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, stored_name, original_name, mime, size_bytes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, r.tables.Files)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		file.UserID,
		file.StoredName,
		file.OriginalName,
		file.Mime,
		file.SizeBytes,
	).Scan(&file.ID, &file.CreatedAt)

	if err != nil {
		return fmt.Errorf("create uploaded file: %w", err)
	}

	return nil
}

// Get retrieves a file record by ID, scoped to the owning user
func (r *FileRepository) Get(ctx context.Context, id, userID string) (*models.UploadedFile, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, stored_name, original_name, mime, size_bytes, created_at
		FROM %s
		WHERE id = $1 AND user_id = $2
	`, r.tables.Files)

	var file models.UploadedFile
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, id, userID).Scan(
		&file.ID,
		&file.UserID,
		&file.StoredName,
		&file.OriginalName,
		&file.Mime,
		&file.SizeBytes,
		&file.CreatedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("file %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get uploaded file: %w", err)
	}

	return &file, nil
}

// ListByIDs returns the subset of ids owned by the user, in request order.
// Unknown or foreign ids are silently dropped.
func (r *FileRepository) ListByIDs(ctx context.Context, ids []string, userID string) ([]models.UploadedFile, error) {
	if len(ids) == 0 {
		return []models.UploadedFile{}, nil
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, stored_name, original_name, mime, size_bytes, created_at
		FROM %s
		WHERE id = ANY($1) AND user_id = $2
	`, r.tables.Files)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, ids, userID)
	if err != nil {
		return nil, fmt.Errorf("list uploaded files: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]models.UploadedFile, len(ids))
	for rows.Next() {
		var file models.UploadedFile
		err := rows.Scan(
			&file.ID,
			&file.UserID,
			&file.StoredName,
			&file.OriginalName,
			&file.Mime,
			&file.SizeBytes,
			&file.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan uploaded file: %w", err)
		}
		byID[file.ID] = file
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploaded files: %w", err)
	}

	files := make([]models.UploadedFile, 0, len(byID))
	for _, id := range ids {
		if file, ok := byID[id]; ok {
			files = append(files, file)
			delete(byID, id)
		}
	}

	return files, nil
}
