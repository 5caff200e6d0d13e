package models

import (
	"encoding/json"
	"time"
)

// Source tells where a CombinedFile came from.
type Source string

const (
	SourceMetadata Source = "metadata"
	SourceBlob     Source = "blob"
)

// CombinedFile is one entry of the reconciled file view. Exactly one of
// Record and Blob is set, matching Source; build it with FromRecord or
// FromBlob.
type CombinedFile struct {
	Source Source
	Record *File
	Blob   *BlobEntry
}

func FromRecord(f *File) CombinedFile {
	return CombinedFile{Source: SourceMetadata, Record: f}
}

func FromBlob(b *BlobEntry) CombinedFile {
	return CombinedFile{Source: SourceBlob, Blob: b}
}

func (c CombinedFile) ID() string {
	if c.Source == SourceMetadata {
		return c.Record.ID
	}
	return c.Blob.ID()
}

func (c CombinedFile) Name() string {
	if c.Source == SourceMetadata {
		return c.Record.Name
	}
	return c.Blob.Name
}

func (c CombinedFile) FolderID() *string {
	if c.Source == SourceMetadata {
		return c.Record.FolderID
	}
	return c.Blob.FolderID
}

func (c CombinedFile) Key() string {
	if c.Source == SourceMetadata {
		return c.Record.StorageKey()
	}
	return c.Blob.Key
}

// Timestamp is created_at for records and last_modified for blobs.
func (c CombinedFile) Timestamp() time.Time {
	if c.Source == SourceMetadata {
		return c.Record.CreatedAt
	}
	return c.Blob.LastModified
}

type combinedFileJSON struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Size         int64      `json:"size"`
	MimeType     string     `json:"mime_type"`
	URL          string     `json:"url"`
	CreatedAt    time.Time  `json:"created_at"`
	FolderID     *string    `json:"folder_id"`
	OwnerID      string     `json:"user_id"`
	Source       Source     `json:"source"`
	StorageKey   string     `json:"s3_key,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}

// MarshalJSON renders both variants as one flat object.
func (c CombinedFile) MarshalJSON() ([]byte, error) {
	var out combinedFileJSON
	switch c.Source {
	case SourceMetadata:
		f := c.Record
		out = combinedFileJSON{
			ID:        f.ID,
			Name:      f.Name,
			Size:      f.Size,
			MimeType:  f.MimeType,
			URL:       f.URL,
			CreatedAt: f.CreatedAt,
			FolderID:  f.FolderID,
			OwnerID:   f.OwnerID,
			Source:    SourceMetadata,
		}
	case SourceBlob:
		b := c.Blob
		lm := b.LastModified
		out = combinedFileJSON{
			ID:           b.ID(),
			Name:         b.Name,
			Size:         b.Size,
			MimeType:     DefaultMimeType,
			URL:          b.URL,
			CreatedAt:    b.LastModified,
			FolderID:     b.FolderID,
			OwnerID:      b.OwnerID,
			Source:       SourceBlob,
			StorageKey:   b.Key,
			LastModified: &lm,
		}
	}
	return json.Marshal(out)
}
