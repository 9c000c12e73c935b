// Package credentials stores connection secrets encrypted at rest with
// AES-256-GCM, keyed by storage id.
package credentials

import (
	"context"
	"crypto/cipher"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sdejongh/filenorris/pkg/logging"
	"github.com/sdejongh/filenorris/pkg/models"
	"github.com/sdejongh/filenorris/pkg/store"
)

// KeyAlias names the key that protects every credential
const KeyAlias = "credentials"

var (
	// ErrCorrupted means a stored secret could not be authenticated. The entry
	// is reset when this is returned; the secret should be treated as lost.
	ErrCorrupted = errors.New("credential corrupted")

	// ErrNotFound means no secret is stored for the id
	ErrNotFound = models.ErrCredentialMissing
)

// Store encrypts secrets into the secrets table
type Store struct {
	db     *sql.DB
	aead   cipher.AEAD
	logger logging.Logger
}

// NewStore creates a credential store using the key aliased KeyAlias
func NewStore(db *sql.DB, keys KeyStore, logger logging.Logger) (*Store, error) {
	aead, err := keys.AEAD(KeyAlias)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential key: %w", err)
	}
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &Store{db: db, aead: aead, logger: logger}, nil
}

// Put encrypts and stores secret under id, replacing any previous value
func (s *Store) Put(ctx context.Context, id, secret string) error {
	return s.PutTx(ctx, s.db, id, secret)
}

// PutTx is Put on a caller-provided handle, typically a transaction
func (s *Store) PutTx(ctx context.Context, tx store.DBTX, id, secret string) error {
	blob, err := seal(s.aead, id, []byte(secret))
	if err != nil {
		return err
	}
	if err := store.NewKV(tx, store.TableSecrets).Set(ctx, id, blob); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// Get returns the secret for id. It returns ErrNotFound when absent and
// ErrCorrupted when the stored blob fails authentication, in which case the
// entry is deleted.
func (s *Store) Get(ctx context.Context, id string) (string, error) {
	kv := store.NewKV(s.db, store.TableSecrets)

	blob, err := kv.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to load credential: %w", err)
	}
	if blob == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	plaintext, err := open(s.aead, id, blob)
	if err != nil {
		s.logger.Warn(ctx, "discarding undecryptable credential", logging.Fields{
			"storage_id": id,
			"error":      err.Error(),
		})
		if delErr := kv.Delete(ctx, id); delErr != nil {
			s.logger.Error(ctx, "failed to reset corrupted credential", delErr, logging.Fields{"storage_id": id})
		}
		return "", err
	}

	secret := string(plaintext)
	clear(plaintext)
	return secret, nil
}

// Has reports whether a secret is stored for id without decrypting it
func (s *Store) Has(ctx context.Context, id string) (bool, error) {
	blob, err := store.NewKV(s.db, store.TableSecrets).Get(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to load credential: %w", err)
	}
	return blob != nil, nil
}

// Delete removes the secret for id; deleting an absent id is not an error
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.DeleteTx(ctx, s.db, id)
}

// DeleteTx is Delete on a caller-provided handle, typically a transaction
func (s *Store) DeleteTx(ctx context.Context, tx store.DBTX, id string) error {
	if err := store.NewKV(tx, store.TableSecrets).Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}
