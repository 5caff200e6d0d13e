package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/scribe/internal/common"
	"github.com/dmitrijs2005/scribe/internal/dbx"
	"github.com/dmitrijs2005/scribe/internal/logging"
	"github.com/dmitrijs2005/scribe/internal/server/blobstore"
	"github.com/dmitrijs2005/scribe/internal/server/models"
	"github.com/dmitrijs2005/scribe/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/scribe/internal/server/transcriber"
)

const (
	DefaultSignedURLTTL = time.Hour
	DefaultLease        = 90 * time.Minute

	// leaseMargin is the least a lease outlasts the signed URL TTL, which
	// bounds every engine call and the status update after it.
	leaseMargin = 15 * time.Minute
)

// SubmitRequest names the file to transcribe, by id or by name.
type SubmitRequest struct {
	FileID   string
	FileName string
}

// TranscriptionService drives files through processing -> completed | error.
type TranscriptionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       blobstore.Store
	engine      transcriber.Client
	signTTL     time.Duration
	lease       time.Duration
	log         logging.Logger
	now         func() time.Time
}

func NewTranscriptionService(db *sql.DB, rm repomanager.RepositoryManager, blobs blobstore.Store,
	engine transcriber.Client, signTTL, lease time.Duration, log logging.Logger) *TranscriptionService {
	if signTTL <= 0 {
		signTTL = DefaultSignedURLTTL
	}
	if lease <= 0 {
		lease = DefaultLease
	}
	if lease < signTTL+leaseMargin {
		lease = signTTL + leaseMargin
	}
	return &TranscriptionService{
		db:          db,
		repomanager: rm,
		blobs:       blobs,
		engine:      engine,
		signTTL:     signTTL,
		lease:       lease,
		log:         log.With("module", "transcriptions"),
		now:         time.Now,
	}
}

// Submit transcribes one file synchronously. A processing row is committed
// before the engine is called and always ends in completed or error. A file
// keeps a single row: a previous terminal attempt is replaced, a live
// processing one makes the call fail with a conflict.
func (s *TranscriptionService) Submit(ctx context.Context, ownerID string, req SubmitRequest) (*models.Transcription, error) {
	file, err := s.resolveFile(ctx, ownerID, req)
	if err != nil {
		return nil, err
	}

	tr, err := s.begin(ctx, file.ID)
	if err != nil {
		return nil, err
	}
	log := s.log.With("file_id", file.ID, "transcription_id", tr.ID)
	log.Info(ctx, "transcription started")

	// The engine call outlives a dropped client but not the signed URL.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.signTTL)
	defer cancel()

	url, err := s.blobs.Sign(callCtx, file.StorageKey(), s.signTTL)
	if err != nil {
		s.fail(callCtx, log, tr.ID)
		return nil, common.Storage("Failed to sign file URL", err)
	}

	res, err := s.engine.Transcribe(callCtx, url)
	if err != nil {
		s.fail(callCtx, log, tr.ID)
		var terr *transcriber.Error
		if !errors.As(err, &terr) {
			err = &transcriber.Error{Code: transcriber.CodeUnknown, Err: err}
		}
		log.Warn(ctx, "transcription failed", "error", err)
		return nil, err
	}

	done, err := s.repomanager.Transcriptions(s.db).UpdateStatus(callCtx, tr.ID, models.StatusCompleted, res.Text)
	if err != nil {
		log.Error(ctx, "saving transcription failed", "error", err)
		s.fail(callCtx, log, tr.ID)
		return nil, common.Storage("Failed to save transcription", err)
	}

	log.Info(ctx, "transcription completed", "chars", len(res.Text))
	return done, nil
}

func (s *TranscriptionService) resolveFile(ctx context.Context, ownerID string, req SubmitRequest) (*models.File, error) {
	repo := s.repomanager.Files(s.db)

	if req.FileID != "" {
		f, err := repo.GetByID(ctx, req.FileID, ownerID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil, common.NotFound("File not found")
			}
			return nil, common.Storage("Failed to fetch file", err)
		}
		return f, nil
	}

	if req.FileName == "" {
		return nil, common.Validation("File id or name is required")
	}

	matches, err := repo.FindByName(ctx, ownerID, req.FileName)
	if err != nil {
		return nil, common.Storage("Failed to fetch file", err)
	}
	switch len(matches) {
	case 0:
		return nil, common.NotFound("File not found")
	case 1:
		return matches[0], nil
	default:
		return nil, common.Validation(fmt.Sprintf("%d files are named %q, submit by file id", len(matches), req.FileName))
	}
}

// begin replaces any terminal or expired attempt with a fresh processing row.
func (s *TranscriptionService) begin(ctx context.Context, fileID string) (*models.Transcription, error) {
	var tr *models.Transcription

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Transcriptions(tx)

		prev, err := repo.LockByFileID(ctx, fileID)
		switch {
		case errors.Is(err, common.ErrNotFound):
		case err != nil:
			return err
		case prev.Status == models.StatusProcessing && s.now().Sub(prev.UpdatedAt) < s.lease:
			return common.Conflict("Transcription already in progress")
		default:
			if _, err := repo.DeleteByFileID(ctx, fileID); err != nil {
				return err
			}
		}

		tr, err = repo.Create(ctx, &models.Transcription{FileID: fileID, Status: models.StatusProcessing})
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrConflict) {
			return nil, common.Conflict("Transcription already in progress")
		}
		return nil, common.Storage("Failed to create transcription record", err)
	}
	return tr, nil
}

func (s *TranscriptionService) fail(ctx context.Context, log logging.Logger, id string) {
	if _, err := s.repomanager.Transcriptions(s.db).UpdateStatus(ctx, id, models.StatusError, ""); err != nil {
		log.Error(ctx, "recording transcription error state failed", "error", err)
	}
}

// ForFile returns the file's transcription as a zero or one element list.
func (s *TranscriptionService) ForFile(ctx context.Context, ownerID, fileID string) ([]*models.Transcription, error) {
	if _, err := s.repomanager.Files(s.db).GetByID(ctx, fileID, ownerID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.NotFound("File not found")
		}
		return nil, common.Storage("Failed to fetch file", err)
	}

	tr, err := s.repomanager.Transcriptions(s.db).GetByFileID(ctx, fileID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return []*models.Transcription{}, nil
		}
		return nil, common.Storage("Failed to fetch transcriptions", err)
	}
	return []*models.Transcription{tr}, nil
}

func (s *TranscriptionService) ForFolder(ctx context.Context, ownerID, folderID string) ([]*models.Transcription, error) {
	list, err := s.repomanager.Transcriptions(s.db).ListByFolder(ctx, folderID, ownerID)
	if err != nil {
		return nil, common.Storage("Failed to fetch transcriptions", err)
	}
	return nonNil(list), nil
}

func (s *TranscriptionService) ForOwner(ctx context.Context, ownerID string) ([]*models.Transcription, error) {
	list, err := s.repomanager.Transcriptions(s.db).ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, common.Storage("Failed to fetch transcriptions", err)
	}
	return nonNil(list), nil
}

// ReapStale moves processing rows older than the lease to error.
func (s *TranscriptionService) ReapStale(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.lease)
	n, err := s.repomanager.Transcriptions(s.db).MarkStale(ctx, cutoff)
	if err != nil {
		return 0, common.Storage("Failed to reap stale transcriptions", err)
	}
	if n > 0 {
		s.log.Warn(ctx, "stale transcriptions marked as error", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

func nonNil(list []*models.Transcription) []*models.Transcription {
	if list == nil {
		return []*models.Transcription{}
	}
	return list
}
