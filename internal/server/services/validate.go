package services

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/scribe/internal/common"
	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxUploadSize is the per-file upload limit.
const DefaultMaxUploadSize int64 = 100 << 20

// DefaultAllowedTypes are the media types accepted for upload.
var DefaultAllowedTypes = []string{
	"audio/mpeg", "audio/mp3", "audio/wav", "audio/ogg", "audio/m4a",
	"video/mp4", "video/avi", "video/mov", "video/wmv", "video/flv", "video/webm",
}

// typeAliases folds the names content sniffing reports onto the accepted list.
var typeAliases = map[string]string{
	"audio/x-wav":     "audio/wav",
	"audio/wave":      "audio/wav",
	"audio/vnd.wave":  "audio/wav",
	"audio/x-m4a":     "audio/m4a",
	"audio/mp4":       "audio/m4a",
	"video/x-msvideo": "video/avi",
	"video/quicktime": "video/mov",
	"video/x-ms-wmv":  "video/wmv",
	"video/x-ms-asf":  "video/wmv",
	"video/x-flv":     "video/flv",
	"application/ogg": "audio/ogg",
	"audio/x-mpeg":    "audio/mpeg",
	"audio/x-mp3":     "audio/mp3",
}

// UploadPolicy validates incoming media.
type UploadPolicy struct {
	MaxSize      int64
	AllowedTypes []string
}

func (p UploadPolicy) maxSize() int64 {
	if p.MaxSize <= 0 {
		return DefaultMaxUploadSize
	}
	return p.MaxSize
}

func (p UploadPolicy) allowed() []string {
	if len(p.AllowedTypes) == 0 {
		return DefaultAllowedTypes
	}
	return p.AllowedTypes
}

// CheckSize rejects bodies over the limit.
func (p UploadPolicy) CheckSize(size int64) error {
	if size > p.maxSize() {
		return common.Validation(fmt.Sprintf("File size exceeds %s limit", humanize.IBytes(uint64(p.maxSize()))))
	}
	return nil
}

// ResolveType returns the accepted media type of the upload. The declared type
// is sniffed from data when it is empty or generic.
func (p UploadPolicy) ResolveType(declared string, data []byte) (string, error) {
	ct := normalizeType(declared)
	if ct == "" || ct == "application/octet-stream" {
		ct = normalizeType(mimetype.Detect(data).String())
	}
	if alias, ok := typeAliases[ct]; ok {
		ct = alias
	}
	for _, t := range p.allowed() {
		if t == ct {
			return ct, nil
		}
	}
	return "", common.Validation("Invalid file type. Only audio and video files are allowed.")
}

func normalizeType(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mt
}

// CleanFileName strips any client-side directory part from name.
func CleanFileName(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	name = filepath.Base(name)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", common.Validation("File name is required")
	}
	return name, nil
}

// CleanFolderName trims name and requires it to be non-empty.
func CleanFolderName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", common.Validation("Folder name is required")
	}
	return name, nil
}
