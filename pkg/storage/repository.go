package storage

import (
	"context"
	"io"
	"time"

	"github.com/sdejongh/filenorris/pkg/logging"
	"github.com/sdejongh/filenorris/pkg/models"
	"github.com/sdejongh/filenorris/pkg/thumbnail"
)

// FileRepository is the uniform view over one configured storage.
// Paths are backend-relative, '/'-separated, and "" is the root.
type FileRepository interface {
	// GetFiles lists the immediate children of path
	GetFiles(ctx context.Context, path string) ([]models.FileItem, error)

	// GetFileContent opens a file for reading; the caller closes the stream
	GetFileContent(ctx context.Context, path string) (io.ReadCloser, error)

	// GetThumbnail returns a preview no larger than size pixels, the original
	// content when no preview can be made, or nil when there is nothing to show
	GetThumbnail(ctx context.Context, path string, size int) (io.ReadCloser, error)

	// UploadFile writes content as destination/fileName
	UploadFile(ctx context.Context, destination, fileName string, content io.Reader) error

	// UploadFolder creates destination/folderName holding every entry
	UploadFolder(ctx context.Context, destination, folderName string, files []models.UploadEntry) error

	// Close releases any resources held by the repository
	Close() error
}

// SecretFunc resolves the stored secret of a storage at call time
type SecretFunc func(ctx context.Context) (string, error)

// Options are shared by every backend
type Options struct {
	Logger logging.Logger

	// ThumbnailQuality is the JPEG quality of generated previews
	ThumbnailQuality int

	// DialTimeout bounds connection setup for network backends
	DialTimeout time.Duration
}

// DefaultDialTimeout applies when Options.DialTimeout is zero
const DefaultDialTimeout = 15 * time.Second

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logging.NewNullLogger()
	}
	if o.ThumbnailQuality <= 0 {
		o.ThumbnailQuality = thumbnail.DefaultQuality
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	return o
}
