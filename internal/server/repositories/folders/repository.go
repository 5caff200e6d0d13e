// Package folders persists Folder rows. Every operation is scoped by owner.
package folders

import (
	"context"

	"github.com/dmitrijs2005/scribe/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, folder *models.Folder) (*models.Folder, error)
	Get(ctx context.Context, id, ownerID string) (*models.Folder, error)
	List(ctx context.Context, ownerID string) ([]*models.Folder, error)
	Rename(ctx context.Context, id, ownerID, name string) (*models.Folder, error)
	Delete(ctx context.Context, id, ownerID string) (int64, error)
}
