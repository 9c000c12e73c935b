// Package aggregate flattens a directory subtree into folder groups, each
// holding the files directly inside it.
package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sdejongh/filenorris/internal/platform"
	"github.com/sdejongh/filenorris/pkg/logging"
	"github.com/sdejongh/filenorris/pkg/models"
)

// Lister lists the immediate children of a directory
type Lister interface {
	GetFiles(ctx context.Context, path string) ([]models.FileItem, error)
}

// Options control the walk and the ordering of its result
type Options struct {
	FolderSort models.SortConfig
	FileSort   models.SortConfig

	// MaxDepth stops descending below this many levels (0 = unlimited)
	MaxDepth int

	// MaxItems stops the walk after this many entries (0 = unlimited)
	MaxItems int

	Logger logging.Logger
}

// DefaultOptions sorts folders and files by name and does not limit the walk
func DefaultOptions() Options {
	return Options{
		FolderSort: models.DefaultSortConfig(),
		FileSort:   models.DefaultSortConfig(),
	}
}

// internalItem is one walked entry with the directory it was listed from
type internalItem struct {
	item       models.FileItem
	parentPath string
}

// SkippedFolder is a directory whose listing failed during the walk
type SkippedFolder struct {
	Path string
	Err  error
}

// MarshalJSON renders Err as its message
func (s SkippedFolder) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Path  string `json:"path"`
		Error string `json:"error"`
	}{s.Path, s.Err.Error()})
}

var errLimit = errors.New("item limit reached")

type walker struct {
	lister    Lister
	opts      Options
	items     []internalItem
	skipped   []SkippedFolder
	truncated bool
}

// walk lists p and descends into each directory before moving on to its
// next sibling, one listing at a time
func (w *walker) walk(ctx context.Context, p string, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	children, err := w.lister.GetFiles(ctx, p)
	if err != nil {
		return err
	}

	for _, child := range children {
		if w.opts.MaxItems > 0 && len(w.items) >= w.opts.MaxItems {
			w.truncated = true
			return errLimit
		}
		w.items = append(w.items, internalItem{item: child, parentPath: p})

		if !child.IsDir {
			continue
		}
		if w.opts.MaxDepth > 0 && depth >= w.opts.MaxDepth {
			w.truncated = true
			continue
		}

		err := w.walk(ctx, child.Path, depth+1)
		switch {
		case err == nil:
		case errors.Is(err, errLimit), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		default:
			// One unreadable folder does not sink the whole view
			w.skipped = append(w.skipped, SkippedFolder{Path: child.Path, Err: err})
			w.opts.Logger.Warn(ctx, "Skipping unreadable folder", logging.Fields{
				"path":  child.Path,
				"error": err.Error(),
			})
		}
	}
	return nil
}

// Aggregate walks the subtree at root and groups the result. Failure to
// list root itself is returned as an error.
func Aggregate(ctx context.Context, lister Lister, root string, opts Options) (Result, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewNullLogger()
	}

	clean, err := platform.CleanPath(root)
	if err != nil {
		return Result{}, err
	}

	w := &walker{lister: lister, opts: opts}
	if err := w.walk(ctx, clean, 1); err != nil && !errors.Is(err, errLimit) {
		return Result{}, fmt.Errorf("failed to list %s: %w", label(clean, clean), err)
	}

	res := build(clean, w.items, opts)
	res.Truncated = w.truncated
	res.Skipped = w.skipped
	return res, nil
}
