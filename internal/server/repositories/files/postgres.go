package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/scribe/internal/common"
	"github.com/dmitrijs2005/scribe/internal/dbx"
	"github.com/dmitrijs2005/scribe/internal/server/models"
	"github.com/google/uuid"
)

const selectColumns = `id, folder_id, user_id, name, size, mime_type, url, created_at`

// PostgresRepository implements file record storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (*models.File, error) {
	var (
		f        models.File
		folderID sql.NullString
	)
	if err := s.Scan(&f.ID, &folderID, &f.OwnerID, &f.Name, &f.Size, &f.MimeType, &f.URL, &f.CreatedAt); err != nil {
		return nil, err
	}
	if folderID.Valid {
		f.FolderID = &folderID.String
	}
	return &f, nil
}

// Create inserts a file record. The id is generated when empty. A name
// already used in the same folder fails with common.ErrConflict.
func (r *PostgresRepository) Create(ctx context.Context, file *models.File) (*models.File, error) {
	if file.ID == "" {
		file.ID = uuid.NewString()
	}

	query :=
		`INSERT INTO files (id, folder_id, user_id, name, size, mime_type, url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at
		 `

	var folderID sql.NullString
	if file.FolderID != nil {
		folderID = sql.NullString{String: *file.FolderID, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query,
		file.ID, folderID, file.OwnerID, file.Name, file.Size, file.MimeType, file.URL).Scan(&file.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, fmt.Errorf("file %s: %w", file.Name, common.ErrConflict)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return file, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id, ownerID string) (*models.File, error) {
	query := `SELECT ` + selectColumns + ` FROM files WHERE id = $1 AND user_id = $2`

	f, err := scanFile(r.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

// FindByName returns every file of the owner with that exact name, across folders.
func (r *PostgresRepository) FindByName(ctx context.Context, ownerID, name string) ([]*models.File, error) {
	query := `SELECT ` + selectColumns + ` FROM files WHERE user_id = $1 AND name = $2 ORDER BY created_at DESC`
	return r.query(ctx, query, ownerID, name)
}

func (r *PostgresRepository) List(ctx context.Context, ownerID string, folderID *string) ([]*models.File, error) {
	if folderID == nil {
		query := `SELECT ` + selectColumns + ` FROM files WHERE user_id = $1 ORDER BY created_at DESC`
		return r.query(ctx, query, ownerID)
	}
	query := `SELECT ` + selectColumns + ` FROM files WHERE user_id = $1 AND folder_id = $2 ORDER BY created_at DESC`
	return r.query(ctx, query, ownerID, *folderID)
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*models.File, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// NameExists reports whether the folder already holds a file with that name.
func (r *PostgresRepository) NameExists(ctx context.Context, ownerID, folderID, name string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM files WHERE user_id = $1 AND folder_id = $2 AND name = $3)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, ownerID, folderID, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id, ownerID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM files WHERE id = $1 AND user_id = $2`, id, ownerID)
}

// DeleteByFolder bulk-deletes the folder's file rows.
func (r *PostgresRepository) DeleteByFolder(ctx context.Context, folderID, ownerID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM files WHERE folder_id = $1 AND user_id = $2`, folderID, ownerID)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete files: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
