package file

import (
	"context"
	"io"
	"mime"
	"path"
	"strings"
	"time"
)

const epubContentType = "application/epub+zip"

type File struct {
	ID          string    `json:"id" db:"id"`
	OrgID       string    `json:"-" db:"org_id"`
	OwnerID     string    `json:"owner_id" db:"owner_id"`
	Name        string    `json:"name" db:"name"`
	BlobName    string    `json:"-" db:"blob_name"`
	ContentType string    `json:"content_type" db:"content_type"`
	Size        int64     `json:"size" db:"size"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

func (f File) IsEPUB() bool {
	return f.ContentType == epubContentType || strings.EqualFold(path.Ext(f.Name), ".epub")
}

func (f File) IsVideo() bool {
	return strings.HasPrefix(f.ContentType, "video/")
}

type Share struct {
	ID        string    `json:"id" db:"id"`
	FileID    string    `json:"file_id" db:"file_id"`
	Token     string    `json:"token" db:"token"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedBy string    `json:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (s Share) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type NewShare struct {
	// TTLSeconds defaults to an hour and is capped by the configured maximum.
	TTLSeconds int `json:"ttl_seconds"`
}

// TOCEntry is an entry of a flattened table of contents; Level starts at 1.
type TOCEntry struct {
	Title string `json:"title"`
	Href  string `json:"href"`
	Level int    `json:"level"`
}

// TrimRequest bounds are in seconds from the start of the video.
type TrimRequest struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type SignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type GetFilter struct {
	OrgID string // optional
	ID    string
}

type (
	// Storage is the blob store holding file contents.
	Storage interface {
		Upload(ctx context.Context, blobName, contentType string, r io.Reader) error
		Download(ctx context.Context, blobName string) (io.ReadCloser, error)
		Delete(ctx context.Context, blobName string) error
		// SignedURL returns a read-only URL of the blob valid for ttl.
		SignedURL(ctx context.Context, blobName string, ttl time.Duration) (string, error)
	}

	// Trimmer cuts the [start, end) range of the input video into output.
	Trimmer interface {
		Trim(ctx context.Context, input, output string, start, end time.Duration) error
	}
)

// detectContentType falls back to the extension of name when the client sent no usable type.
func detectContentType(name, contentType string) string {
	ct := strings.TrimSpace(contentType)
	if ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if strings.EqualFold(path.Ext(name), ".epub") {
		return epubContentType
	}
	if byExt := mime.TypeByExtension(path.Ext(name)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}
