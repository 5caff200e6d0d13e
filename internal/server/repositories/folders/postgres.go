package folders

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

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the folder, assigning an id when it has none.
func (r *PostgresRepository) Create(ctx context.Context, folder *models.Folder) (*models.Folder, error) {
	if folder.ID == "" {
		folder.ID = uuid.NewString()
	}

	query :=
		`INSERT INTO folders (id, name, user_id)
		 VALUES ($1, $2, $3)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query, folder.ID, folder.Name, folder.OwnerID).Scan(&folder.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return folder, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id, ownerID string) (*models.Folder, error) {
	query :=
		`SELECT id, name, user_id, created_at FROM folders
		 WHERE id = $1 AND user_id = $2
		 `

	f := &models.Folder{}
	err := r.db.QueryRowContext(ctx, query, id, ownerID).Scan(&f.ID, &f.Name, &f.OwnerID, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return f, nil
}

// List returns the owner's folders, newest first.
func (r *PostgresRepository) List(ctx context.Context, ownerID string) ([]*models.Folder, error) {
	query :=
		`SELECT id, name, user_id, created_at FROM folders
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 `

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select folders: %w", err)
	}
	defer rows.Close()

	var result []*models.Folder
	for rows.Next() {
		f := &models.Folder{}
		if err := rows.Scan(&f.ID, &f.Name, &f.OwnerID, &f.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Rename updates the name with a single owner-filtered statement. A missing
// row, or one owned by someone else, yields common.ErrNotFound.
func (r *PostgresRepository) Rename(ctx context.Context, id, ownerID, name string) (*models.Folder, error) {
	query :=
		`UPDATE folders SET name = $3
		 WHERE id = $1 AND user_id = $2
		 RETURNING id, name, user_id, created_at
		 `

	f := &models.Folder{}
	err := r.db.QueryRowContext(ctx, query, id, ownerID, name).Scan(&f.ID, &f.Name, &f.OwnerID, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return f, nil
}

// Delete removes the folder row and returns the number of rows affected.
func (r *PostgresRepository) Delete(ctx context.Context, id, ownerID string) (int64, error) {
	query := `DELETE FROM folders WHERE id = $1 AND user_id = $2`

	result, err := r.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete folder: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return n, nil
}
