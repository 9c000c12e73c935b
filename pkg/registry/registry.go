// Package registry hands out one FileRepository per configured storage,
// building it on first use.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/sdejongh/filenorris/pkg/logging"
	"github.com/sdejongh/filenorris/pkg/models"
	"github.com/sdejongh/filenorris/pkg/storage"
)

// ConfigSource looks up storage configurations by id
type ConfigSource interface {
	Get(ctx context.Context, id string) (models.StorageConfiguration, error)
}

// CredentialSource looks up the secret of a storage
type CredentialSource interface {
	Get(ctx context.Context, id string) (string, error)
}

// Factory builds the repository for one configuration
type Factory func(ctx context.Context, cfg models.StorageConfiguration, secret storage.SecretFunc) (storage.FileRepository, error)

// Registry caches repositories by storage id
type Registry struct {
	configs   ConfigSource
	creds     CredentialSource
	factories map[models.StorageKind]Factory
	logger    logging.Logger

	group   singleflight.Group
	mu      sync.Mutex
	clients map[string]storage.FileRepository
}

// New creates an empty registry; register factories before use
func New(configs ConfigSource, creds CredentialSource, logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &Registry{
		configs:   configs,
		creds:     creds,
		factories: make(map[models.StorageKind]Factory),
		logger:    logger,
		clients:   make(map[string]storage.FileRepository),
	}
}

// Register sets the factory for a storage kind
func (r *Registry) Register(kind models.StorageKind, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

func (r *Registry) cached(id string) (storage.FileRepository, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	return c, ok
}

// buildTimeout bounds a shared build once it is detached from its callers
const buildTimeout = 2 * storage.DefaultDialTimeout

// Resolve returns the repository for id, building it if needed. Concurrent
// first calls for one id share a single build. The build does not inherit
// the cancellation of the caller that started it; a caller whose ctx ends
// stops waiting and gets ctx.Err() while the others keep waiting.
func (r *Registry) Resolve(ctx context.Context, id string) (storage.FileRepository, error) {
	if c, ok := r.cached(id); ok {
		return c, nil
	}

	ch := r.group.DoChan(id, func() (interface{}, error) {
		if c, ok := r.cached(id); ok {
			return c, nil
		}
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), buildTimeout)
		defer cancel()

		repo, err := r.build(bctx, id)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.clients[id] = repo
		r.mu.Unlock()
		return repo, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(storage.FileRepository), nil
	}
}

func (r *Registry) build(ctx context.Context, id string) (storage.FileRepository, error) {
	cfg, err := r.configs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if models.RequiresCredential(cfg) {
		// Decrypting once up front rejects missing and corrupted secrets
		if _, err := r.creds.Get(ctx, id); err != nil {
			return nil, fmt.Errorf("storage %s: %w", id, err)
		}
	}

	r.mu.Lock()
	factory := r.factories[cfg.Kind()]
	r.mu.Unlock()
	if factory == nil {
		return nil, fmt.Errorf("no repository for %s storage: %w", cfg.Kind(), models.ErrUnsupported)
	}

	secret := func(ctx context.Context) (string, error) {
		return r.creds.Get(ctx, id)
	}
	repo, err := factory(ctx, cfg, secret)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s repository: %w", cfg.Kind(), err)
	}

	r.logger.Debug(ctx, "Repository created", logging.Fields{
		"storage_id": id,
		"kind":       string(cfg.Kind()),
	})
	return repo, nil
}

// GetFileRepository returns the repository for id, or nil when the storage
// is unknown or cannot be built. The reason is logged.
func (r *Registry) GetFileRepository(ctx context.Context, id string) storage.FileRepository {
	repo, err := r.Resolve(ctx, id)
	if err == nil {
		return repo
	}

	fields := logging.Fields{"storage_id": id}
	switch {
	case errors.Is(err, models.ErrStorageNotFound):
		r.logger.Warn(ctx, "Storage configuration not found", fields)
	case errors.Is(err, models.ErrCredentialMissing):
		r.logger.Warn(ctx, "Credential missing for storage", fields)
	default:
		r.logger.Error(ctx, "Failed to create repository", err, fields)
	}
	return nil
}

// Evict closes and forgets the repository of id, so the next call rebuilds
// it from the current configuration
func (r *Registry) Evict(id string) error {
	r.mu.Lock()
	c, ok := r.clients[id]
	delete(r.clients, id)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return c.Close()
}

// Close closes every cached repository
func (r *Registry) Close() error {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]storage.FileRepository)
	r.mu.Unlock()

	var errs []error
	for id, c := range clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
