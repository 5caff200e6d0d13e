package transcriptions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/scribe/internal/common"
	"github.com/dmitrijs2005/scribe/internal/dbx"
	"github.com/dmitrijs2005/scribe/internal/server/models"
	"github.com/google/uuid"
)

const selectColumns = `t.id, t.file_id, t.content, t.status, t.created_at, t.updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTranscription(s scanner) (*models.Transcription, error) {
	var t models.Transcription
	if err := s.Scan(&t.ID, &t.FileID, &t.Content, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts a transcription row. A second row for the same file fails
// with common.ErrConflict via the file_id unique constraint.
func (r *PostgresRepository) Create(ctx context.Context, t *models.Transcription) (*models.Transcription, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	query :=
		`INSERT INTO transcriptions (id, file_id, content, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query, t.ID, t.FileID, t.Content, t.Status).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, fmt.Errorf("transcription for file %s: %w", t.FileID, common.ErrConflict)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) GetByFileID(ctx context.Context, fileID string) (*models.Transcription, error) {
	query := `SELECT ` + selectColumns + ` FROM transcriptions t WHERE t.file_id = $1`
	return r.one(ctx, query, fileID)
}

func (r *PostgresRepository) LockByFileID(ctx context.Context, fileID string) (*models.Transcription, error) {
	query := `SELECT ` + selectColumns + ` FROM transcriptions t WHERE t.file_id = $1 FOR UPDATE`
	return r.one(ctx, query, fileID)
}

func (r *PostgresRepository) one(ctx context.Context, query string, args ...any) (*models.Transcription, error) {
	t, err := scanTranscription(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

// UpdateStatus sets status and content and touches updated_at.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status models.TranscriptionStatus, content string) (*models.Transcription, error) {
	query :=
		`UPDATE transcriptions t SET status = $2, content = $3, updated_at = now()
		 WHERE t.id = $1
		 RETURNING ` + selectColumns

	return r.one(ctx, query, id, status, content)
}

func (r *PostgresRepository) DeleteByFileID(ctx context.Context, fileID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM transcriptions WHERE file_id = $1`, fileID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transcriptions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// ListByFileIDs returns rows for the given files, optionally filtered by status.
func (r *PostgresRepository) ListByFileIDs(ctx context.Context, fileIDs []string, status *models.TranscriptionStatus) ([]*models.Transcription, error) {
	if len(fileIDs) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(fileIDs)+1)
	placeholders := make([]string, 0, len(fileIDs))
	for _, id := range fileIDs {
		args = append(args, id)
		placeholders = append(placeholders, "$"+strconv.Itoa(len(args)))
	}

	query := `SELECT ` + selectColumns + ` FROM transcriptions t WHERE t.file_id IN (` + strings.Join(placeholders, ", ") + `)`
	if status != nil {
		args = append(args, *status)
		query += ` AND t.status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY t.created_at ASC`

	return r.many(ctx, query, args...)
}

// ListByFolder returns the transcriptions of files in an owner's folder.
func (r *PostgresRepository) ListByFolder(ctx context.Context, folderID, ownerID string) ([]*models.Transcription, error) {
	query :=
		`SELECT ` + selectColumns + ` FROM transcriptions t
		 JOIN files f ON f.id = t.file_id
		 WHERE f.folder_id = $1 AND f.user_id = $2
		 ORDER BY t.created_at DESC`

	return r.many(ctx, query, folderID, ownerID)
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Transcription, error) {
	query :=
		`SELECT ` + selectColumns + ` FROM transcriptions t
		 JOIN files f ON f.id = t.file_id
		 WHERE f.user_id = $1
		 ORDER BY t.created_at DESC`

	return r.many(ctx, query, ownerID)
}

func (r *PostgresRepository) many(ctx context.Context, query string, args ...any) ([]*models.Transcription, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select transcriptions: %w", err)
	}
	defer rows.Close()

	var result []*models.Transcription
	for rows.Next() {
		t, err := scanTranscription(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkStale moves processing rows last touched before olderThan to error.
func (r *PostgresRepository) MarkStale(ctx context.Context, olderThan time.Time) (int64, error) {
	query :=
		`UPDATE transcriptions SET status = 'error', content = '', updated_at = now()
		 WHERE status = 'processing' AND updated_at < $1`

	result, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale transcriptions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
