package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/scribe/internal/common"
	"github.com/dmitrijs2005/scribe/internal/logging"
	"github.com/dmitrijs2005/scribe/internal/server/models"
	"github.com/dmitrijs2005/scribe/internal/server/repositories/repomanager"
	"github.com/gosimple/slug"
	"github.com/klauspost/compress/zip"
)

// Archive is a packaged folder export.
type Archive struct {
	Name    string
	Data    []byte
	Entries []string
}

type ExportService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
}

func NewExportService(db *sql.DB, rm repomanager.RepositoryManager, log logging.Logger) *ExportService {
	return &ExportService{db: db, repomanager: rm, log: log.With("module", "export")}
}

// ExportFolder zips the completed transcriptions of a folder, one .txt entry
// per file, in file creation order.
func (s *ExportService) ExportFolder(ctx context.Context, folderID, ownerID string) (*Archive, error) {
	folder, err := s.repomanager.Folders(s.db).Get(ctx, folderID, ownerID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.NotFound("Folder not found")
		}
		return nil, common.Storage("Failed to fetch folder", err)
	}

	files, err := s.repomanager.Files(s.db).List(ctx, ownerID, &folder.ID)
	if err != nil {
		return nil, common.Storage("Failed to fetch files", err)
	}
	if len(files) == 0 {
		return nil, common.NotFound("No files in folder to export")
	}

	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, f.ID)
	}

	completed := models.StatusCompleted
	trs, err := s.repomanager.Transcriptions(s.db).ListByFileIDs(ctx, ids, &completed)
	if err != nil {
		return nil, common.Storage("Failed to fetch transcriptions", err)
	}
	if len(trs) == 0 {
		return nil, common.NotFound("No completed transcriptions to export")
	}

	byFile := make(map[string]*models.Transcription, len(trs))
	for _, t := range trs {
		byFile[t.FileID] = t
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := newEntryNamer()
	archive := &Archive{Name: archiveName(folder.Name)}

	// files come newest first
	for i := len(files) - 1; i >= 0; i-- {
		f := files[i]
		t, ok := byFile[f.ID]
		if !ok {
			continue
		}
		name := names.next(f.Name)
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: t.UpdatedAt})
		if err != nil {
			return nil, common.Storage("Failed to build archive", fmt.Errorf("zip entry %s: %w", name, err))
		}
		if _, err := w.Write([]byte(t.Content)); err != nil {
			return nil, common.Storage("Failed to build archive", fmt.Errorf("zip entry %s: %w", name, err))
		}
		archive.Entries = append(archive.Entries, name)
	}

	if err := zw.Close(); err != nil {
		return nil, common.Storage("Failed to build archive", fmt.Errorf("zip close: %w", err))
	}
	archive.Data = buf.Bytes()

	s.log.Info(ctx, "folder exported", "folder_id", folder.ID, "entries", len(archive.Entries))
	return archive, nil
}

func archiveName(folderName string) string {
	base := slug.Make(folderName)
	if base == "" {
		base = "export"
	}
	return base + ".zip"
}

// entryNamer turns file names into unique archive entry names: the last
// extension becomes .txt, and repeats get _2, _3, ... before it.
type entryNamer struct {
	used map[string]struct{}
}

func newEntryNamer() *entryNamer {
	return &entryNamer{used: map[string]struct{}{}}
}

func (n *entryNamer) next(fileName string) string {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	if base == "" {
		base = fileName
	}

	name := base + ".txt"
	for i := 2; ; i++ {
		if _, taken := n.used[name]; !taken {
			break
		}
		name = fmt.Sprintf("%s_%d.txt", base, i)
	}
	n.used[name] = struct{}{}
	return name
}
