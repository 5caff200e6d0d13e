// Package models defines the entities persisted in the metadata store and the
// derived views built from blob listings.
package models

import "time"

// Folder is a user-owned container of files.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// FolderWithFiles is a folder together with its reconciled file view.
type FolderWithFiles struct {
	Folder
	Files []CombinedFile `json:"files"`
}

// FolderListing is the result of listing a user's folders. Unorganized holds
// reconciled files that do not belong to any of the listed folders.
type FolderListing struct {
	Folders     []FolderWithFiles `json:"folders"`
	Unorganized []CombinedFile    `json:"unorganized"`
}
