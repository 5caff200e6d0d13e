package models

import "time"

// File is a metadata-store file record. FolderID is nil for files kept in the
// "unorganized" bucket.
type File struct {
	ID        string    `json:"id"`
	FolderID  *string   `json:"folder_id"`
	OwnerID   string    `json:"user_id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	MimeType  string    `json:"mime_type"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// StorageKey returns the canonical blob key of the file.
func (f *File) StorageKey() string {
	return StorageKey(f.OwnerID, f.FolderID, f.Name)
}
