package models

import (
	"strings"
	"time"
)

// BlobEntry is an object found in the blob store. OwnerID, FolderID and Name
// are parsed from Key.
type BlobEntry struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
	URL          string

	OwnerID  string
	FolderID *string
	Name     string
}

const (
	// KeyRoot is the first segment of every upload key.
	KeyRoot = "uploads"

	// UnorganizedFolder is the folder segment used for files without a folder.
	UnorganizedFolder = "unorganized"

	// DefaultMimeType is reported for blobs without a metadata record.
	DefaultMimeType = "application/octet-stream"
)

// StorageKey builds uploads/{owner}/{folder ?? "unorganized"}/{name}.
func StorageKey(ownerID string, folderID *string, name string) string {
	folder := UnorganizedFolder
	if folderID != nil {
		folder = *folderID
	}
	return strings.Join([]string{KeyRoot, ownerID, folder, name}, "/")
}

// StoragePrefix returns the listing prefix for an owner, optionally narrowed
// to one folder. It always ends with a slash.
func StoragePrefix(ownerID string, folderID *string) string {
	if folderID == nil {
		return KeyRoot + "/" + ownerID + "/"
	}
	return KeyRoot + "/" + ownerID + "/" + *folderID + "/"
}

// ParseStorageKey splits uploads/{owner}/{folder}/{name}. The name may itself
// contain slashes. ok is false for keys outside that layout.
func ParseStorageKey(key string) (ownerID string, folderID *string, name string, ok bool) {
	parts := strings.SplitN(key, "/", 4)
	if len(parts) != 4 || parts[0] != KeyRoot || parts[1] == "" || parts[2] == "" || parts[3] == "" {
		return "", nil, "", false
	}
	if parts[2] != UnorganizedFolder {
		folder := parts[2]
		folderID = &folder
	}
	return parts[1], folderID, parts[3], true
}

// NewBlobEntry fills the derived fields of a listed object. ok is false when
// the key does not follow the upload layout.
func NewBlobEntry(key string, size int64, lastModified time.Time, etag, url string) (BlobEntry, bool) {
	owner, folder, name, ok := ParseStorageKey(key)
	if !ok {
		return BlobEntry{}, false
	}
	return BlobEntry{
		Key:          key,
		Size:         size,
		LastModified: lastModified,
		ETag:         etag,
		URL:          url,
		OwnerID:      owner,
		FolderID:     folder,
		Name:         name,
	}, true
}

// ID derives an identity for a blob without a record: its ETag without quotes.
func (b *BlobEntry) ID() string {
	return strings.ReplaceAll(b.ETag, `"`, "")
}
