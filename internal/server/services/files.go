// Package services contains the server-side business logic: the reconciled
// file view, folder and file lifecycles, transcription jobs and exports.
package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dmitrijs2005/scribe/internal/common"
	"github.com/dmitrijs2005/scribe/internal/logging"
	"github.com/dmitrijs2005/scribe/internal/server/blobstore"
	"github.com/dmitrijs2005/scribe/internal/server/models"
	"github.com/dmitrijs2005/scribe/internal/server/repositories/repomanager"
	"github.com/dustin/go-humanize"
	"github.com/rs/xid"
)

// Upload is one incoming file of an upload request. Size is the declared
// length of Body; zero means unknown and the body is buffered to measure it.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// FileRegistration describes an already stored blob to record as a file.
type FileRegistration struct {
	FolderID string
	Name     string
	Size     int64
	MimeType string
	URL      string
}

// FileService owns the reconciled file view and single-file lifecycle.
type FileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       blobstore.Store
	policy      UploadPolicy
	log         logging.Logger
}

func NewFileService(db *sql.DB, rm repomanager.RepositoryManager, blobs blobstore.Store, policy UploadPolicy, log logging.Logger) *FileService {
	return &FileService{
		db:          db,
		repomanager: rm,
		blobs:       blobs,
		policy:      policy,
		log:         log.With("module", "files"),
	}
}

// Reconcile merges the owner's file records with the blob store listing.
// Records win over blobs with the same storage key; blobs without a record
// get their ETag as id. The result is newest first, with records ahead of
// blobs on equal timestamps. A failed listing degrades to records only.
func (s *FileService) Reconcile(ctx context.Context, ownerID string, folderID *string) ([]models.CombinedFile, error) {
	records, err := s.repomanager.Files(s.db).List(ctx, ownerID, folderID)
	if err != nil {
		return nil, common.Storage("Failed to fetch files", err)
	}

	seen := make(map[string]struct{}, len(records))
	result := make([]models.CombinedFile, 0, len(records))
	for _, r := range records {
		key := r.StorageKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, models.FromRecord(r))
	}

	prefix := models.StoragePrefix(ownerID, folderID)
	blobs, err := s.blobs.List(ctx, prefix)
	if err != nil {
		s.log.Warn(ctx, "blob listing failed, returning records only", "prefix", prefix, "error", err)
		blobs = nil
	}

	for i := range blobs {
		b := &blobs[i]
		if b.OwnerID != ownerID {
			continue
		}
		if _, dup := seen[b.Key]; dup {
			continue
		}
		seen[b.Key] = struct{}{}
		result = append(result, models.FromBlob(b))
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp().After(result[j].Timestamp())
	})

	return result, nil
}

// Upload validates every file, sniffing only the head of each body, then
// streams each blob and writes its record in turn.
// A record insert failing after its blob write leaves the blob behind; it
// shows up as a blob entry in Reconcile.
func (s *FileService) Upload(ctx context.Context, ownerID, folderID string, uploads []Upload) ([]*models.File, error) {
	if len(uploads) == 0 {
		return nil, common.Validation("No file provided")
	}

	if _, err := s.repomanager.Folders(s.db).Get(ctx, folderID, ownerID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.NotFound("Folder not found")
		}
		return nil, common.Storage("Failed to fetch folder", err)
	}

	items := make([]preparedUpload, 0, len(uploads))
	for _, u := range uploads {
		it, err := s.prepare(u)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}

	repo := s.repomanager.Files(s.db)
	created := make([]*models.File, 0, len(items))
	taken := make(map[string]struct{}, len(items))
	for _, it := range items {
		name, err := s.uniqueName(ctx, ownerID, folderID, it.name, taken)
		if err != nil {
			return created, err
		}
		taken[name] = struct{}{}

		folder := folderID
		f := &models.File{
			FolderID: &folder,
			OwnerID:  ownerID,
			Name:     name,
			Size:     it.size,
			MimeType: it.mimeType,
		}
		key := f.StorageKey()

		url, err := s.blobs.Put(ctx, key, it.body, f.Size, f.MimeType)
		if err != nil {
			s.log.Error(ctx, "blob upload failed", "key", key, "error", err)
			return created, common.Storage("Failed to upload file", err)
		}
		f.URL = url

		if _, err := repo.Create(ctx, f); err != nil {
			if errors.Is(err, common.ErrConflict) {
				return created, common.Conflict("File already exists")
			}
			s.log.Error(ctx, "file record insert failed, blob left orphaned", "key", key, "error", err)
			return created, common.Storage("Failed to save file metadata", err)
		}

		s.log.Info(ctx, "file uploaded", "file_id", f.ID, "key", key, "size", humanize.IBytes(uint64(f.Size)))
		created = append(created, f)
	}

	return created, nil
}

// sniffLen is how much of a body is read up front for type detection.
const sniffLen = 3072

type preparedUpload struct {
	name     string
	mimeType string
	size     int64
	body     io.ReadSeeker
}

// prepare checks the name, size and type of u. A seekable body of known size
// is only read up to sniffLen and rewound, so it streams to the blob store
// later; anything else is buffered.
func (s *FileService) prepare(u Upload) (preparedUpload, error) {
	name, err := CleanFileName(u.Name)
	if err != nil {
		return preparedUpload{}, err
	}

	size := u.Size
	if size > 0 {
		if err := s.policy.CheckSize(size); err != nil {
			return preparedUpload{}, err
		}
	}

	body, seekable := u.Body.(io.ReadSeeker)
	if !seekable || size <= 0 {
		data, err := io.ReadAll(io.LimitReader(u.Body, s.policy.maxSize()+1))
		if err != nil {
			return preparedUpload{}, common.Validation("Failed to read file " + name)
		}
		size, body = int64(len(data)), bytes.NewReader(data)
		if err := s.policy.CheckSize(size); err != nil {
			return preparedUpload{}, err
		}
	}

	head := make([]byte, min(size, sniffLen))
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return preparedUpload{}, common.Validation("Failed to read file " + name)
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return preparedUpload{}, common.Validation("Failed to read file " + name)
	}

	mt, err := s.policy.ResolveType(u.ContentType, head[:n])
	if err != nil {
		return preparedUpload{}, err
	}

	return preparedUpload{name: name, mimeType: mt, size: size, body: body}, nil
}

// uniqueName keeps name when the folder has no file by that name, else
// appends an xid before the extension.
func (s *FileService) uniqueName(ctx context.Context, ownerID, folderID, name string, taken map[string]struct{}) (string, error) {
	_, clash := taken[name]
	if !clash {
		exists, err := s.repomanager.Files(s.db).NameExists(ctx, ownerID, folderID, name)
		if err != nil {
			return "", common.Storage("Failed to check file name", err)
		}
		clash = exists
	}
	if !clash {
		return name, nil
	}
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "-" + xid.New().String() + ext, nil
}

// Register records a blob that was stored out of band, so it is reported
// with its metadata from then on.
func (s *FileService) Register(ctx context.Context, ownerID string, reg FileRegistration) (*models.File, error) {
	name, err := CleanFileName(reg.Name)
	if err != nil {
		return nil, err
	}
	if reg.FolderID == "" || reg.Size <= 0 || reg.MimeType == "" || reg.URL == "" {
		return nil, common.Validation("Missing required file data")
	}
	if err := s.policy.CheckSize(reg.Size); err != nil {
		return nil, err
	}

	if _, err := s.repomanager.Folders(s.db).Get(ctx, reg.FolderID, ownerID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.NotFound("Folder not found")
		}
		return nil, common.Storage("Failed to fetch folder", err)
	}

	repo := s.repomanager.Files(s.db)
	exists, err := repo.NameExists(ctx, ownerID, reg.FolderID, name)
	if err != nil {
		return nil, common.Storage("Failed to check file name", err)
	}
	if exists {
		return nil, common.Conflict("File already exists")
	}

	folder := reg.FolderID
	f, err := repo.Create(ctx, &models.File{
		FolderID: &folder,
		OwnerID:  ownerID,
		Name:     name,
		Size:     reg.Size,
		MimeType: normalizeType(reg.MimeType),
		URL:      reg.URL,
	})
	if err != nil {
		if errors.Is(err, common.ErrConflict) {
			return nil, common.Conflict("File already exists")
		}
		return nil, common.Storage("Failed to create file", err)
	}
	return f, nil
}

// Delete removes one file: blob first (best effort), then its transcription,
// then the record.
func (s *FileService) Delete(ctx context.Context, ownerID, fileID string) error {
	repo := s.repomanager.Files(s.db)

	f, err := repo.GetByID(ctx, fileID, ownerID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.NotFound("File not found")
		}
		return common.Storage("Failed to fetch file", err)
	}

	s.deleteBlob(ctx, f)

	if _, err := s.repomanager.Transcriptions(s.db).DeleteByFileID(ctx, f.ID); err != nil {
		return common.Storage("Failed to delete transcription", err)
	}

	n, err := repo.Delete(ctx, f.ID, ownerID)
	if err != nil {
		return common.Storage("Failed to delete file", err)
	}
	if n == 0 {
		return common.NotFound("File not found")
	}

	s.log.Info(ctx, "file deleted", "file_id", f.ID)
	return nil
}

func (s *FileService) deleteBlob(ctx context.Context, f *models.File) {
	key := f.StorageKey()
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.log.Warn(ctx, "blob delete failed", "key", key, "error", err)
	}
}
