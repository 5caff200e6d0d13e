package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/scribe/internal/common"
	"github.com/dmitrijs2005/scribe/internal/dbx"
	"github.com/dmitrijs2005/scribe/internal/logging"
	"github.com/dmitrijs2005/scribe/internal/server/models"
	"github.com/dmitrijs2005/scribe/internal/server/repositories/files"
	"github.com/dmitrijs2005/scribe/internal/server/repositories/folders"
	"github.com/dmitrijs2005/scribe/internal/server/repositories/transcriptions"
	"github.com/dmitrijs2005/scribe/internal/server/transcriber"
)

// memStore is an in-memory metadata store shared by the fake repositories.
type memStore struct {
	mu     sync.Mutex
	seq    int
	clock  time.Time
	folder map[string]*models.Folder
	files  []*models.File
	trs    map[string]*models.Transcription

	listFilesErr      error
	deleteByFolderErr error
	deleteFolderErr   error
	deleteTrErr       map[string]error
	createFileErr     error
	updateTrErr       error
}

func newMemStore() *memStore {
	return &memStore{
		clock:       time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		folder:      map[string]*models.Folder{},
		trs:         map[string]*models.Transcription{},
		deleteTrErr: map[string]error{},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s%d", prefix, m.seq)
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memStore) addFolder(id, owner, name string) *models.Folder {
	f := &models.Folder{ID: id, Name: name, OwnerID: owner, CreatedAt: m.tick()}
	m.folder[id] = f
	return f
}

func (m *memStore) addFile(id, owner string, folderID *string, name string, created time.Time) *models.File {
	f := &models.File{ID: id, FolderID: folderID, OwnerID: owner, Name: name, MimeType: "audio/mpeg", CreatedAt: created}
	m.files = append(m.files, f)
	return f
}

func (m *memStore) addTranscription(fileID string, status models.TranscriptionStatus, content string, updated time.Time) *models.Transcription {
	t := &models.Transcription{ID: "t-" + fileID, FileID: fileID, Status: status, Content: content, CreatedAt: updated, UpdatedAt: updated}
	m.trs[fileID] = t
	return t
}

func (m *memStore) filesIn(folderID string) []*models.File {
	var out []*models.File
	for _, f := range m.files {
		if f.FolderID != nil && *f.FolderID == folderID {
			out = append(out, f)
		}
	}
	return out
}

type memFolders struct{ m *memStore }

func (r memFolders) Create(ctx context.Context, f *models.Folder) (*models.Folder, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if f.ID == "" {
		f.ID = r.m.nextID("folder-")
	}
	f.CreatedAt = r.m.tick()
	r.m.folder[f.ID] = f
	return f, nil
}

func (r memFolders) Get(ctx context.Context, id, ownerID string) (*models.Folder, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	f, ok := r.m.folder[id]
	if !ok || f.OwnerID != ownerID {
		return nil, common.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (r memFolders) List(ctx context.Context, ownerID string) ([]*models.Folder, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Folder
	for _, f := range r.m.folder {
		if f.OwnerID == ownerID {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r memFolders) Rename(ctx context.Context, id, ownerID, name string) (*models.Folder, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	f, ok := r.m.folder[id]
	if !ok || f.OwnerID != ownerID {
		return nil, common.ErrNotFound
	}
	f.Name = name
	cp := *f
	return &cp, nil
}

func (r memFolders) Delete(ctx context.Context, id, ownerID string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.deleteFolderErr != nil {
		return 0, r.m.deleteFolderErr
	}
	f, ok := r.m.folder[id]
	if !ok || f.OwnerID != ownerID {
		return 0, nil
	}
	delete(r.m.folder, id)
	return 1, nil
}

type memFiles struct{ m *memStore }

func (r memFiles) Create(ctx context.Context, f *models.File) (*models.File, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.createFileErr != nil {
		return nil, r.m.createFileErr
	}
	if f.ID == "" {
		f.ID = r.m.nextID("file-")
	}
	f.CreatedAt = r.m.tick()
	r.m.files = append(r.m.files, f)
	return f, nil
}

func (r memFiles) GetByID(ctx context.Context, id, ownerID string) (*models.File, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, f := range r.m.files {
		if f.ID == id && f.OwnerID == ownerID {
			return f, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r memFiles) FindByName(ctx context.Context, ownerID, name string) ([]*models.File, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.File
	for _, f := range r.m.files {
		if f.OwnerID == ownerID && f.Name == name {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r memFiles) List(ctx context.Context, ownerID string, folderID *string) ([]*models.File, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.listFilesErr != nil {
		return nil, r.m.listFilesErr
	}
	var out []*models.File
	for _, f := range r.m.files {
		if f.OwnerID != ownerID {
			continue
		}
		if folderID != nil && (f.FolderID == nil || *f.FolderID != *folderID) {
			continue
		}
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r memFiles) NameExists(ctx context.Context, ownerID, folderID, name string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, f := range r.m.files {
		if f.OwnerID == ownerID && f.FolderID != nil && *f.FolderID == folderID && f.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (r memFiles) Delete(ctx context.Context, id, ownerID string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for i, f := range r.m.files {
		if f.ID == id && f.OwnerID == ownerID {
			r.m.files = append(r.m.files[:i], r.m.files[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (r memFiles) DeleteByFolder(ctx context.Context, folderID, ownerID string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.deleteByFolderErr != nil {
		return 0, r.m.deleteByFolderErr
	}
	kept := r.m.files[:0]
	var n int64
	for _, f := range r.m.files {
		if f.OwnerID == ownerID && f.FolderID != nil && *f.FolderID == folderID {
			n++
			continue
		}
		kept = append(kept, f)
	}
	r.m.files = kept
	return n, nil
}

type memTranscriptions struct{ m *memStore }

func (r memTranscriptions) Create(ctx context.Context, t *models.Transcription) (*models.Transcription, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, exists := r.m.trs[t.FileID]; exists {
		return nil, fmt.Errorf("unique: %w", common.ErrConflict)
	}
	if t.ID == "" {
		t.ID = r.m.nextID("tr-")
	}
	now := r.m.tick()
	t.CreatedAt, t.UpdatedAt = now, now
	cp := *t
	r.m.trs[t.FileID] = &cp
	return t, nil
}

func (r memTranscriptions) GetByFileID(ctx context.Context, fileID string) (*models.Transcription, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t, ok := r.m.trs[fileID]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r memTranscriptions) LockByFileID(ctx context.Context, fileID string) (*models.Transcription, error) {
	return r.GetByFileID(ctx, fileID)
}

func (r memTranscriptions) UpdateStatus(ctx context.Context, id string, status models.TranscriptionStatus, content string) (*models.Transcription, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.updateTrErr != nil && status == models.StatusCompleted {
		return nil, r.m.updateTrErr
	}
	for _, t := range r.m.trs {
		if t.ID == id {
			t.Status = status
			t.Content = content
			t.UpdatedAt = r.m.tick()
			cp := *t
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r memTranscriptions) DeleteByFileID(ctx context.Context, fileID string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.deleteTrErr[fileID]; err != nil {
		return 0, err
	}
	if _, ok := r.m.trs[fileID]; !ok {
		return 0, nil
	}
	delete(r.m.trs, fileID)
	return 1, nil
}

func (r memTranscriptions) ListByFileIDs(ctx context.Context, ids []string, status *models.TranscriptionStatus) ([]*models.Transcription, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Transcription
	for _, id := range ids {
		t, ok := r.m.trs[id]
		if !ok || (status != nil && t.Status != *status) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (r memTranscriptions) ListByFolder(ctx context.Context, folderID, ownerID string) ([]*models.Transcription, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Transcription
	for _, f := range r.m.files {
		if f.OwnerID != ownerID || f.FolderID == nil || *f.FolderID != folderID {
			continue
		}
		if t, ok := r.m.trs[f.ID]; ok {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r memTranscriptions) ListByOwner(ctx context.Context, ownerID string) ([]*models.Transcription, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Transcription
	for _, f := range r.m.files {
		if f.OwnerID != ownerID {
			continue
		}
		if t, ok := r.m.trs[f.ID]; ok {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r memTranscriptions) MarkStale(ctx context.Context, olderThan time.Time) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for _, t := range r.m.trs {
		if t.Status == models.StatusProcessing && t.UpdatedAt.Before(olderThan) {
			t.Status = models.StatusError
			t.Content = ""
			n++
		}
	}
	return n, nil
}

type memRepoManager struct{ m *memStore }

func (rm memRepoManager) RunMigrations(context.Context, *sql.DB) error {
	return nil
}

func (rm memRepoManager) Folders(dbx.DBTX) folders.Repository {
	return memFolders{rm.m}
}

func (rm memRepoManager) Files(dbx.DBTX) files.Repository {
	return memFiles{rm.m}
}

func (rm memRepoManager) Transcriptions(dbx.DBTX) transcriptions.Repository {
	return memTranscriptions{rm.m}
}

// memBlobs is an in-memory blob store.
type memBlobs struct {
	mu        sync.Mutex
	objects   map[string]models.BlobEntry
	data      map[string][]byte
	listErr   error
	putErr    error
	signErr   error
	deleteErr map[string]error
	deleted   []string
}

func newMemBlobs() *memBlobs {
	return &memBlobs{
		objects:   map[string]models.BlobEntry{},
		data:      map[string][]byte{},
		deleteErr: map[string]error{},
	}
}

func (b *memBlobs) add(key, etag string, lastModified time.Time) {
	e, ok := models.NewBlobEntry(key, 1, lastModified, etag, "https://blobs.test/"+key)
	if !ok {
		panic("bad key " + key)
	}
	b.objects[key] = e
}

func (b *memBlobs) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return "", b.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	b.data[key] = data
	e, _ := models.NewBlobEntry(key, size, time.Now(), `"etag-`+key+`"`, "https://blobs.test/"+key)
	b.objects[key] = e
	return e.URL, nil
}

func (b *memBlobs) List(ctx context.Context, prefix string) ([]models.BlobEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]models.BlobEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, b.objects[k])
	}
	return out, nil
}

func (b *memBlobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, key)
	if err := b.deleteErr[key]; err != nil {
		return err
	}
	delete(b.objects, key)
	return nil
}

func (b *memBlobs) Sign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if b.signErr != nil {
		return "", b.signErr
	}
	return fmt.Sprintf("https://blobs.test/%s?ttl=%s", key, ttl), nil
}

// fakeEngine records calls and lets a test observe state mid-call.
type fakeEngine struct {
	text   string
	err    error
	gotURL string
	during func()
	ctxErr error
}

func (e *fakeEngine) Transcribe(ctx context.Context, audioURL string) (*transcriber.Result, error) {
	e.gotURL = audioURL
	if e.during != nil {
		e.during()
	}
	e.ctxErr = ctx.Err()
	if e.err != nil {
		return nil, e.err
	}
	return &transcriber.Result{Text: e.text}, nil
}

type fixture struct {
	store *memStore
	blobs *memBlobs
	rm    memRepoManager
	db    *sql.DB
	mock  sqlmock.Sqlmock
	files *FileService
	fold  *FolderService
	exp   *ExportService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := newMemStore()
	blobs := newMemBlobs()
	rm := memRepoManager{st}
	fs := NewFileService(db, rm, blobs, UploadPolicy{}, logging.Nop())
	return &fixture{
		store: st,
		blobs: blobs,
		rm:    rm,
		db:    db,
		mock:  mock,
		files: fs,
		fold:  NewFolderService(db, rm, fs, logging.Nop()),
		exp:   NewExportService(db, rm, logging.Nop()),
	}
}

func (fx *fixture) transcriptions(engine transcriber.Client) *TranscriptionService {
	return NewTranscriptionService(fx.db, fx.rm, fx.blobs, engine, time.Hour, DefaultLease, logging.Nop())
}

func strPtr(s string) *string { return &s }

var errBoom = errors.New("boom")
