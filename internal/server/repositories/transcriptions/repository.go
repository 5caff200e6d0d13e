// Package transcriptions persists transcription attempts, at most one row per file.
package transcriptions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/scribe/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, t *models.Transcription) (*models.Transcription, error)
	GetByFileID(ctx context.Context, fileID string) (*models.Transcription, error)
	// LockByFileID reads the row with FOR UPDATE; use inside a transaction.
	LockByFileID(ctx context.Context, fileID string) (*models.Transcription, error)
	UpdateStatus(ctx context.Context, id string, status models.TranscriptionStatus, content string) (*models.Transcription, error)
	DeleteByFileID(ctx context.Context, fileID string) (int64, error)
	ListByFileIDs(ctx context.Context, fileIDs []string, status *models.TranscriptionStatus) ([]*models.Transcription, error)
	ListByFolder(ctx context.Context, folderID, ownerID string) ([]*models.Transcription, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Transcription, error)
	MarkStale(ctx context.Context, olderThan time.Time) (int64, error)
}
