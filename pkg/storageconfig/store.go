// Package storageconfig persists the ordered list of storage configurations
// and notifies watchers on every change.
package storageconfig

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/sdejongh/filenorris/pkg/credentials"
	"github.com/sdejongh/filenorris/pkg/logging"
	"github.com/sdejongh/filenorris/pkg/models"
	"github.com/sdejongh/filenorris/pkg/store"
)

// Store is the storage configuration repository. Secrets are delegated to
// the credential store and written in the same transaction as the record.
type Store struct {
	db     *sql.DB
	creds  *credentials.Store
	logger logging.Logger

	// writeMu orders mutations and their notifications
	writeMu sync.Mutex

	mu          sync.Mutex
	subscribers map[int]chan []models.StorageConfiguration
	nextSub     int
}

// NewStore creates a configuration store
func NewStore(db *sql.DB, creds *credentials.Store, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &Store{
		db:          db,
		creds:       creds,
		logger:      logger,
		subscribers: make(map[int]chan []models.StorageConfiguration),
	}
}

// List returns every decodable configuration in insertion order.
// Malformed records are logged and skipped.
func (s *Store) List(ctx context.Context) ([]models.StorageConfiguration, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, record FROM storage_configs ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage configurations: %w", err)
	}
	defer rows.Close()

	configs := []models.StorageConfiguration{}
	for rows.Next() {
		var id string
		var record []byte
		if err := rows.Scan(&id, &record); err != nil {
			return nil, fmt.Errorf("failed to scan storage configuration: %w", err)
		}

		cfg, err := Decode(record)
		if err == nil && cfg.StorageID() != id {
			err = fmt.Errorf("%w: record id %q stored under %q", ErrMalformed, cfg.StorageID(), id)
		}
		if err != nil {
			s.logger.Warn(ctx, "skipping malformed storage configuration", logging.Fields{
				"storage_id": id,
				"error":      err.Error(),
			})
			continue
		}
		configs = append(configs, cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate storage configurations: %w", err)
	}
	return configs, nil
}

// Get returns the configuration for id, or models.ErrStorageNotFound
func (s *Store) Get(ctx context.Context, id string) (models.StorageConfiguration, error) {
	var record []byte
	err := s.db.QueryRowContext(ctx, `SELECT record FROM storage_configs WHERE id = ?`, id).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrStorageNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get storage configuration: %w", err)
	}

	cfg, err := Decode(record)
	if err != nil {
		s.logger.Warn(ctx, "malformed storage configuration", logging.Fields{"storage_id": id, "error": err.Error()})
		return nil, fmt.Errorf("%w: %s", models.ErrStorageNotFound, id)
	}
	return cfg, nil
}

// Add assigns a new id to cfg and persists it together with its secret.
// Local configurations ignore secret.
func (s *Store) Add(ctx context.Context, cfg models.StorageConfiguration, secret string) (models.StorageConfiguration, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = models.WithID(cfg, uuid.New().String())

	record, err := Encode(cfg)
	if err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err = store.WithTx(ctx, s.db, func(ctx context.Context, tx store.DBTX) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO storage_configs (id, position, record)
			VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM storage_configs), ?)
		`, cfg.StorageID(), record)
		if err != nil {
			return fmt.Errorf("failed to insert storage configuration: %w", err)
		}
		if models.RequiresCredential(cfg) {
			return s.creds.PutTx(ctx, tx, cfg.StorageID(), secret)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "storage added", logging.Fields{"storage_id": cfg.StorageID(), "kind": string(cfg.Kind())})
	s.publish(ctx)
	return cfg, nil
}

// Update replaces the configuration stored under id, keeping id and list
// position. A nil secret keeps the current one.
func (s *Store) Update(ctx context.Context, id string, cfg models.StorageConfiguration, secret *string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = models.WithID(cfg, id)

	record, err := Encode(cfg)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err = store.WithTx(ctx, s.db, func(ctx context.Context, tx store.DBTX) error {
		res, err := tx.ExecContext(ctx, `UPDATE storage_configs SET record = ? WHERE id = ?`, record, id)
		if err != nil {
			return fmt.Errorf("failed to update storage configuration: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: %s", models.ErrStorageNotFound, id)
		}

		switch {
		case !models.RequiresCredential(cfg):
			return s.creds.DeleteTx(ctx, tx, id)
		case secret != nil:
			return s.creds.PutTx(ctx, tx, id, *secret)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "storage updated", logging.Fields{"storage_id": id, "kind": string(cfg.Kind())})
	s.publish(ctx)
	return nil
}

// Delete removes the configuration and its credential atomically
func (s *Store) Delete(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := store.WithTx(ctx, s.db, func(ctx context.Context, tx store.DBTX) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM storage_configs WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete storage configuration: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: %s", models.ErrStorageNotFound, id)
		}
		return s.creds.DeleteTx(ctx, tx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "storage deleted", logging.Fields{"storage_id": id})
	s.publish(ctx)
	return nil
}

// Watch emits the current list immediately and again after every mutation.
// Slow receivers only see the latest list. The channel is closed when ctx is done.
func (s *Store) Watch(ctx context.Context) <-chan []models.StorageConfiguration {
	ch := make(chan []models.StorageConfiguration, 1)

	s.writeMu.Lock()
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	s.mu.Unlock()

	if list, err := s.List(ctx); err == nil {
		offer(ch, list)
	} else {
		s.logger.Error(ctx, "failed to load storage configurations for watcher", err, nil)
	}
	s.writeMu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subscribers, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// publish must be called with writeMu held
func (s *Store) publish(ctx context.Context) {
	s.mu.Lock()
	n := len(s.subscribers)
	s.mu.Unlock()
	if n == 0 {
		return
	}

	// The mutation is committed; a cancelled caller must not starve watchers.
	list, err := s.List(context.WithoutCancel(ctx))
	if err != nil {
		s.logger.Error(ctx, "failed to reload storage configurations", err, nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subscribers {
		offer(ch, list)
	}
}

// offer replaces any pending value in a 1-buffered channel
func offer(ch chan []models.StorageConfiguration, list []models.StorageConfiguration) {
	for {
		select {
		case ch <- list:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
