// Package files persists metadata-store file records.
package files

import (
	"context"

	"github.com/dmitrijs2005/scribe/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, file *models.File) (*models.File, error)
	GetByID(ctx context.Context, id, ownerID string) (*models.File, error)
	FindByName(ctx context.Context, ownerID, name string) ([]*models.File, error)
	// List returns the owner's files. A nil folderID selects every file of
	// the owner, not only unorganized ones.
	List(ctx context.Context, ownerID string, folderID *string) ([]*models.File, error)
	NameExists(ctx context.Context, ownerID, folderID, name string) (bool, error)
	Delete(ctx context.Context, id, ownerID string) (int64, error)
	DeleteByFolder(ctx context.Context, folderID, ownerID string) (int64, error)
}
