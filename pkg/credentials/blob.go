package credentials

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// ivSize is the GCM standard nonce length; blobs are iv || ciphertext+tag
const ivSize = 12

// seal encrypts plaintext under a fresh random IV. The entry id is bound as
// additional data so a blob cannot be replayed under another id.
func seal(aead cipher.AEAD, id string, plaintext []byte) ([]byte, error) {
	iv := make([]byte, ivSize, ivSize+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}
	return aead.Seal(iv, iv, plaintext, []byte(id)), nil
}

// open decrypts a blob; any failure is reported as ErrCorrupted
func open(aead cipher.AEAD, id string, blob []byte) ([]byte, error) {
	if len(blob) < ivSize+aead.Overhead() {
		return nil, fmt.Errorf("%w: blob too short (%d bytes)", ErrCorrupted, len(blob))
	}
	plaintext, err := aead.Open(nil, blob[:ivSize], blob[ivSize:], []byte(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return plaintext, nil
}
