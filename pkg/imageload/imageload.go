// Package imageload fetches image bytes for display, either a preview or the
// original file, by storage id and path.
package imageload

import (
	"context"
	"fmt"
	"io"

	"github.com/sdejongh/filenorris/pkg/logging"
	"github.com/sdejongh/filenorris/pkg/storage"
)

// Kind selects what to fetch
type Kind int

const (
	Thumbnail Kind = iota
	Original
)

func (k Kind) String() string {
	if k == Original {
		return "original"
	}
	return "thumbnail"
}

// DefaultSize is the preview edge used when a request leaves Size unset
const DefaultSize = 256

// Request identifies an image
type Request struct {
	StorageID string
	Path      string
	Kind      Kind
	Size      int
}

// Resolver returns the repository of a storage
type Resolver interface {
	Resolve(ctx context.Context, id string) (storage.FileRepository, error)
}

// Fetcher loads images through the registry
type Fetcher struct {
	repos  Resolver
	logger logging.Logger
}

// NewFetcher creates a fetcher
func NewFetcher(repos Resolver, logger logging.Logger) *Fetcher {
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &Fetcher{repos: repos, logger: logger}
}

// Fetch returns the requested bytes. Thumbnail requests fall back to the
// original content when the backend has no preview. The caller closes the
// stream.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (io.ReadCloser, error) {
	repo, err := f.repos.Resolve(ctx, req.StorageID)
	if err != nil {
		return nil, err
	}

	if req.Kind == Thumbnail {
		size := req.Size
		if size <= 0 {
			size = DefaultSize
		}
		rc, err := repo.GetThumbnail(ctx, req.Path, size)
		if err != nil {
			return nil, fmt.Errorf("failed to load thumbnail of %s: %w", req.Path, err)
		}
		if rc != nil {
			return rc, nil
		}
		f.logger.Debug(ctx, "no thumbnail, loading original", logging.Fields{
			"storage_id": req.StorageID,
			"path":       req.Path,
		})
	}

	rc, err := repo.GetFileContent(ctx, req.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", req.Path, err)
	}
	return rc, nil
}
