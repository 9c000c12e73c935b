package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	keySize  = 32
	saltSize = 16
)

// KeyStore hands out cipher handles for named keys. The raw key bytes never
// leave the implementation; callers only ever hold the AEAD.
type KeyStore interface {
	// AEAD returns the AES-256-GCM handle for alias, creating the key on first use
	AEAD(alias string) (cipher.AEAD, error)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// FileKeyStore keeps one random key per alias in an owner-only file
type FileKeyStore struct {
	dir string

	mu    sync.Mutex
	cache map[string]cipher.AEAD
}

// NewFileKeyStore creates a key store rooted at dir
func NewFileKeyStore(dir string) *FileKeyStore {
	return &FileKeyStore{dir: dir, cache: make(map[string]cipher.AEAD)}
}

// AEAD loads or generates the key file for alias
func (k *FileKeyStore) AEAD(alias string) (cipher.AEAD, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if aead, ok := k.cache[alias]; ok {
		return aead, nil
	}

	key, err := readOrCreate(filepath.Join(k.dir, alias+".key"), keySize)
	if err != nil {
		return nil, err
	}

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	k.cache[alias] = aead
	return aead, nil
}

// PassphraseKeyStore derives keys from a passphrase with Argon2id and a
// per-alias salt persisted next to the database
type PassphraseKeyStore struct {
	dir        string
	passphrase []byte

	mu    sync.Mutex
	cache map[string]cipher.AEAD
}

// NewPassphraseKeyStore creates a key store deriving keys from passphrase
func NewPassphraseKeyStore(dir string, passphrase string) (*PassphraseKeyStore, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase is required")
	}
	return &PassphraseKeyStore{
		dir:        dir,
		passphrase: []byte(passphrase),
		cache:      make(map[string]cipher.AEAD),
	}, nil
}

// AEAD derives the key for alias
func (k *PassphraseKeyStore) AEAD(alias string) (cipher.AEAD, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if aead, ok := k.cache[alias]; ok {
		return aead, nil
	}

	salt, err := readOrCreate(filepath.Join(k.dir, alias+".salt"), saltSize)
	if err != nil {
		return nil, err
	}

	aead, err := newGCM(deriveKey(k.passphrase, salt))
	if err != nil {
		return nil, err
	}
	k.cache[alias] = aead
	return aead, nil
}

func deriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, keySize)
}

// readOrCreate returns the contents of path, writing size random bytes to it
// first if it does not exist. New material is written to a temporary file and
// hard-linked into place, so the file appears complete or not at all and the
// first creator wins a race.
func readOrCreate(path string, size int) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != size {
			return nil, fmt.Errorf("key material %s has %d bytes, want %d", path, len(data), size)
		}
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read key material: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	data = make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		return nil, fmt.Errorf("failed to generate key material: %w", err)
	}

	tmp, err := writeTemp(filepath.Dir(path), filepath.Base(path), data)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp)

	err = os.Link(tmp, path)
	if errors.Is(err, fs.ErrExist) {
		// Lost a creation race; use the winner's bytes.
		return readOrCreate(path, size)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to store key material: %w", err)
	}
	return data, nil
}

// writeTemp writes data to a new owner-only file in dir and returns its name
func writeTemp(dir, base string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create key material: %w", err)
	}
	name := f.Name()

	if err := f.Chmod(0600); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("failed to create key material: %w", err)
	}
	if _, err := f.Write(data); err == nil {
		err = f.Sync()
	}
	if err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("failed to write key material: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("failed to write key material: %w", err)
	}
	return name, nil
}
