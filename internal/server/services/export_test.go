package services

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/scribe/internal/common"
	"github.com/dmitrijs2005/scribe/internal/server/models"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readArchive(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	out := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[f.Name] = string(b)
	}
	return out
}

func TestExportFolder_SingleCompletedTranscription(t *testing.T) {
	fx := newFixture(t)
	fx.store.addFolder("f1", "u1", "Demo")
	fx.store.addFile("x1", "u1", strPtr("f1"), "a.mp3", time.Now())
	fx.store.addTranscription("x1", models.StatusCompleted, "hello", time.Now())

	a, err := fx.exp.ExportFolder(context.Background(), "f1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "demo.zip", a.Name)
	assert.Equal(t, []string{"a.txt"}, a.Entries)
	assert.Equal(t, map[string]string{"a.txt": "hello"}, readArchive(t, a.Data))
}

func TestExportFolder_SkipsUnfinishedTranscriptions(t *testing.T) {
	fx := newFixture(t)
	fx.store.addFolder("f1", "u1", "Demo")
	now := time.Now()
	fx.store.addFile("x1", "u1", strPtr("f1"), "a.mp3", now)
	fx.store.addFile("x2", "u1", strPtr("f1"), "b.wav", now.Add(time.Second))
	fx.store.addFile("x3", "u1", strPtr("f1"), "c.mp4", now.Add(2*time.Second))
	fx.store.addTranscription("x1", models.StatusCompleted, "one", now)
	fx.store.addTranscription("x2", models.StatusProcessing, "", now)
	fx.store.addTranscription("x3", models.StatusError, "", now)

	a, err := fx.exp.ExportFolder(context.Background(), "f1", "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a.txt": "one"}, readArchive(t, a.Data))
}

func TestExportFolder_NoCompletedTranscriptions(t *testing.T) {
	fx := newFixture(t)
	fx.store.addFolder("f1", "u1", "Demo")
	fx.store.addFile("x1", "u1", strPtr("f1"), "a.mp3", time.Now())
	fx.store.addTranscription("x1", models.StatusError, "", time.Now())

	a, err := fx.exp.ExportFolder(context.Background(), "f1", "u1")
	assert.Nil(t, a)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, "No completed transcriptions to export", common.Message(err))
}

func TestExportFolder_NoFiles(t *testing.T) {
	fx := newFixture(t)
	fx.store.addFolder("f1", "u1", "Demo")

	_, err := fx.exp.ExportFolder(context.Background(), "f1", "u1")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, "No files in folder to export", common.Message(err))
}

func TestExportFolder_ForeignFolder(t *testing.T) {
	fx := newFixture(t)
	fx.store.addFolder("f1", "u1", "Demo")

	_, err := fx.exp.ExportFolder(context.Background(), "f1", "u2")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, "Folder not found", common.Message(err))
}

func TestExportFolder_SameBaseNameGetsSuffix(t *testing.T) {
	fx := newFixture(t)
	fx.store.addFolder("f1", "u1", "Team Calls / Q3")
	now := time.Now()
	fx.store.addFile("x1", "u1", strPtr("f1"), "a.mp3", now)
	fx.store.addFile("x2", "u1", strPtr("f1"), "a.wav", now.Add(time.Second))
	fx.store.addFile("x3", "u1", strPtr("f1"), "a.mp4", now.Add(2*time.Second))
	fx.store.addTranscription("x1", models.StatusCompleted, "first", now)
	fx.store.addTranscription("x2", models.StatusCompleted, "second", now)
	fx.store.addTranscription("x3", models.StatusCompleted, "third", now)

	a, err := fx.exp.ExportFolder(context.Background(), "f1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "team-calls-q3.zip", a.Name)
	assert.Equal(t, []string{"a.txt", "a_2.txt", "a_3.txt"}, a.Entries)
	assert.Equal(t, map[string]string{"a.txt": "first", "a_2.txt": "second", "a_3.txt": "third"}, readArchive(t, a.Data))
}

func TestEntryNamer(t *testing.T) {
	n := newEntryNamer()
	assert.Equal(t, "talk.txt", n.next("talk.mp3"))
	assert.Equal(t, "archive.tar.txt", n.next("archive.tar.gz"))
	assert.Equal(t, "noext.txt", n.next("noext"))
	assert.Equal(t, ".hidden.txt", n.next(".hidden"))
	assert.Equal(t, "talk_2.txt", n.next("talk.wav"))
}

func TestArchiveName(t *testing.T) {
	assert.Equal(t, "demo.zip", archiveName("Demo"))
	assert.Equal(t, "export.zip", archiveName("???"))
}

func TestExportFolder_ArchiveFailureIsStorageError(t *testing.T) {
	fx := newFixture(t)
	fx.store.addFolder("f1", "u1", "Demo")
	fx.store.addFile("x1", "u1", strPtr("f1"), strings.Repeat("a", 1<<16)+".mp3", time.Now())
	fx.store.addTranscription("x1", models.StatusCompleted, "hello", time.Now())

	_, err := fx.exp.ExportFolder(context.Background(), "f1", "u1")
	assert.ErrorIs(t, err, common.ErrStorage)
	assert.Equal(t, "Failed to build archive", common.Message(err))
}
