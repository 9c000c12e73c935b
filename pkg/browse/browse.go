// Package browse serves flat folder listings and grouped tree views on top
// of the storage registry.
package browse

import (
	"context"
	"errors"

	"github.com/sdejongh/filenorris/pkg/aggregate"
	"github.com/sdejongh/filenorris/pkg/compare"
	"github.com/sdejongh/filenorris/pkg/logging"
	"github.com/sdejongh/filenorris/pkg/models"
	"github.com/sdejongh/filenorris/pkg/storage"
)

const (
	// MsgStorageNotFound is shown when a storage id cannot be resolved
	MsgStorageNotFound = "Storage not found"

	msgListFailed = "Could not load folder: "
)

// Resolver returns the repository of a storage
type Resolver interface {
	Resolve(ctx context.Context, id string) (storage.FileRepository, error)
}

// Listing is a sorted folder listing. A failed listing has no items and a
// user-facing Message; Err keeps the cause.
type Listing struct {
	StorageID string            `json:"storage_id"`
	Path      string            `json:"path"`
	Items     []models.FileItem `json:"items"`
	Message   string            `json:"message,omitempty"`
	Err       error             `json:"-"`
}

// Failed reports whether the listing could not be loaded
func (l Listing) Failed() bool {
	return l.Message != ""
}

// Limits bound tree walks
type Limits struct {
	MaxDepth int
	MaxItems int
}

// Service answers browse requests
type Service struct {
	repos  Resolver
	loader *aggregate.Loader
	limits Limits
	logger logging.Logger
}

// NewService creates a browse service
func NewService(repos Resolver, limits Limits, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &Service{
		repos:  repos,
		loader: aggregate.NewLoader(),
		limits: limits,
		logger: logger,
	}
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// List returns the sorted children of path. Missing storages and listing
// failures come back as an empty listing with a message; only cancellation
// is returned as an error.
func (s *Service) List(ctx context.Context, storageID, path string, sort models.SortConfig) (Listing, error) {
	listing := Listing{StorageID: storageID, Path: path, Items: []models.FileItem{}}
	fields := logging.Fields{"storage_id": storageID, "path": path}

	repo, err := s.repos.Resolve(ctx, storageID)
	if err != nil {
		if isCanceled(err) {
			return listing, err
		}
		s.logger.Warn(ctx, "Storage unavailable", logging.Fields{"storage_id": storageID, "error": err.Error()})
		listing.Message = MsgStorageNotFound
		listing.Err = err
		return listing, nil
	}

	items, err := repo.GetFiles(ctx, path)
	if err != nil {
		if isCanceled(err) {
			return listing, err
		}
		s.logger.Error(ctx, "Listing failed", err, fields)
		listing.Message = msgListFailed + err.Error()
		listing.Err = err
		return listing, nil
	}

	listing.Items = compare.Sorted(items, sort)
	return listing, nil
}

// Tree walks root and groups the result. A newer Tree call with the same
// viewKey cancels this one.
func (s *Service) Tree(ctx context.Context, viewKey, storageID, root string, folderSort, fileSort models.SortConfig) (aggregate.Result, error) {
	repo, err := s.repos.Resolve(ctx, storageID)
	if err != nil {
		return aggregate.Result{}, err
	}

	opts := aggregate.Options{
		FolderSort: folderSort,
		FileSort:   fileSort,
		MaxDepth:   s.limits.MaxDepth,
		MaxItems:   s.limits.MaxItems,
		Logger:     s.logger.WithFields(logging.Fields{"storage_id": storageID}),
	}
	return s.loader.Aggregate(ctx, viewKey, repo, root, opts)
}
