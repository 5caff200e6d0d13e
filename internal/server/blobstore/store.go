// Package blobstore stores uploaded media under hierarchical keys and vends
// time-limited signed references to them.
package blobstore

import (
	"context"
	"io"
	"time"

	"github.com/dmitrijs2005/scribe/internal/server/models"
)

// Store is the blob store contract. Delete of a missing key is not an error.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	List(ctx context.Context, prefix string) ([]models.BlobEntry, error)
	Delete(ctx context.Context, key string) error
	Sign(ctx context.Context, key string, ttl time.Duration) (string, error)
}
