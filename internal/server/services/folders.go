package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dmitrijs2005/scribe/internal/common"
	"github.com/dmitrijs2005/scribe/internal/logging"
	"github.com/dmitrijs2005/scribe/internal/server/models"
	"github.com/dmitrijs2005/scribe/internal/server/repositories/repomanager"
)

// FolderService owns folder create, rename, list and cascading delete.
type FolderService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	files       *FileService
	log         logging.Logger
}

func NewFolderService(db *sql.DB, rm repomanager.RepositoryManager, files *FileService, log logging.Logger) *FolderService {
	return &FolderService{
		db:          db,
		repomanager: rm,
		files:       files,
		log:         log.With("module", "folders"),
	}
}

func (s *FolderService) Create(ctx context.Context, ownerID, name string) (*models.Folder, error) {
	name, err := CleanFolderName(name)
	if err != nil {
		return nil, err
	}

	f, err := s.repomanager.Folders(s.db).Create(ctx, &models.Folder{Name: name, OwnerID: ownerID})
	if err != nil {
		return nil, common.Storage("Failed to create folder", err)
	}
	return f, nil
}

// Rename updates the name through an owner-filtered update; a folder of
// another owner is reported as not found.
func (s *FolderService) Rename(ctx context.Context, id, ownerID, name string) (*models.Folder, error) {
	name, err := CleanFolderName(name)
	if err != nil {
		return nil, err
	}

	f, err := s.repomanager.Folders(s.db).Rename(ctx, id, ownerID, name)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.NotFound("Folder not found")
		}
		return nil, common.Storage("Failed to update folder", err)
	}
	return f, nil
}

// Get returns one folder with its reconciled files.
func (s *FolderService) Get(ctx context.Context, id, ownerID string) (*models.FolderWithFiles, error) {
	f, err := s.repomanager.Folders(s.db).Get(ctx, id, ownerID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.NotFound("Folder not found")
		}
		return nil, common.Storage("Failed to fetch folder", err)
	}

	files, err := s.files.Reconcile(ctx, ownerID, &f.ID)
	if err != nil {
		return nil, err
	}
	return &models.FolderWithFiles{Folder: *f, Files: files}, nil
}

// List returns every folder of the owner with its reconciled files. Entries
// without a folder, or whose folder is not one of the owner's, form the
// unorganized bucket.
func (s *FolderService) List(ctx context.Context, ownerID string) (*models.FolderListing, error) {
	folders, err := s.repomanager.Folders(s.db).List(ctx, ownerID)
	if err != nil {
		return nil, common.Storage("Failed to fetch folders", err)
	}

	all, err := s.files.Reconcile(ctx, ownerID, nil)
	if err != nil {
		return nil, err
	}

	byFolder := make(map[string][]models.CombinedFile, len(folders))
	for _, f := range folders {
		byFolder[f.ID] = []models.CombinedFile{}
	}

	unorganized := []models.CombinedFile{}
	for _, cf := range all {
		fid := cf.FolderID()
		if fid != nil {
			if _, ok := byFolder[*fid]; ok {
				byFolder[*fid] = append(byFolder[*fid], cf)
				continue
			}
		}
		unorganized = append(unorganized, cf)
	}

	listing := &models.FolderListing{
		Folders:     make([]models.FolderWithFiles, 0, len(folders)),
		Unorganized: unorganized,
	}
	for _, f := range folders {
		listing.Folders = append(listing.Folders, models.FolderWithFiles{Folder: *f, Files: byFolder[f.ID]})
	}
	return listing, nil
}

// Delete cascades over the folder's files, then removes the folder row.
// Per-file cleanup (blob, transcription) is best effort; the bulk file
// delete and the folder delete must succeed. A failure after the files are
// gone leaves the folder row in place and the call can be retried.
func (s *FolderService) Delete(ctx context.Context, id, ownerID string) error {
	fileRepo := s.repomanager.Files(s.db)
	trRepo := s.repomanager.Transcriptions(s.db)

	folderID := id
	records, err := fileRepo.List(ctx, ownerID, &folderID)
	if err != nil {
		return common.Storage("Failed to fetch folder files", err)
	}

	for _, f := range records {
		s.files.deleteBlob(ctx, f)
		if _, err := trRepo.DeleteByFileID(ctx, f.ID); err != nil {
			s.log.Error(ctx, "transcription delete failed", "file_id", f.ID, "error", err)
		}
	}

	if _, err := fileRepo.DeleteByFolder(ctx, id, ownerID); err != nil {
		return common.Storage("Failed to delete folder files", err)
	}

	n, err := s.repomanager.Folders(s.db).Delete(ctx, id, ownerID)
	if err != nil {
		return common.Storage("Failed to delete folder", err)
	}
	if n == 0 {
		return common.NotFound("Folder not found")
	}

	s.log.Info(ctx, "folder deleted", "folder_id", id, "files", len(records))
	return nil
}
