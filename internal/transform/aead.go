// Package transform implements the AES-256-GCM/GMAC AEAD transform used to
// protect RTPS submessages and serialized payloads.
//
// GCM calls produce ciphertext and a detached 16-byte tag; GMAC calls feed
// the plaintext as additional authenticated data against an empty
// ciphertext, producing a tag with no output bytes. Both modes share the
// same key, 12-byte IV, and underlying cipher.AEAD construction.
package transform

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

const (
	// KeySize is the size in bytes of an AES-256 session key.
	KeySize = 32
	// IVSize is the size in bytes of the AES-GCM IV (session id || iv suffix).
	IVSize = 12
	// TagSize is the size in bytes of the AES-GCM authentication tag.
	TagSize = 16
	// BlockSize is the size in bytes of one AES block, used to count the
	// number of blocks a plaintext will consume in a session.
	BlockSize = 16
)

// ErrAuthenticationFailed is returned when a GCM tag fails to verify during
// decryption or GMAC verification.
var ErrAuthenticationFailed = fmt.Errorf("authentication tag mismatch")

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("transform: invalid key size: got %d, want %d", len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("transform: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("transform: new GCM: %w", err)
	}
	return aead, nil
}

// Encrypt performs AES-256-GCM encryption with no associated data, as the
// built-in profile does not authenticate the Crypto Header (see DESIGN.md).
// It returns ciphertext and a detached 16-byte tag.
func Encrypt(key, iv, plaintext []byte) (ciphertext, tag []byte, err error) {
	if len(iv) != IVSize {
		return nil, nil, fmt.Errorf("transform: invalid IV size: got %d, want %d", len(iv), IVSize)
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, nil, err
	}
	sealed := aead.Seal(nil, iv, plaintext, nil)
	n := len(sealed) - TagSize
	return sealed[:n], sealed[n:], nil
}

// Decrypt performs AES-256-GCM decryption and tag verification.
func Decrypt(key, iv, ciphertext, tag []byte) ([]byte, error) {
	if len(iv) != IVSize {
		return nil, fmt.Errorf("transform: invalid IV size: got %d, want %d", len(iv), IVSize)
	}
	if len(tag) != TagSize {
		return nil, fmt.Errorf("transform: invalid tag size: got %d, want %d", len(tag), TagSize)
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	plaintext, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// AuthTag computes an AES-256-GMAC tag over plaintext fed as additional
// authenticated data against an empty ciphertext.
func AuthTag(key, iv, plaintext []byte) (tag []byte, err error) {
	if len(iv) != IVSize {
		return nil, fmt.Errorf("transform: invalid IV size: got %d, want %d", len(iv), IVSize)
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, iv, nil, plaintext), nil
}

// Verify checks an AES-256-GMAC tag over plaintext fed as additional
// authenticated data. It returns plaintext unchanged on success, mirroring
// the original implementation's copy-through of the verified input.
func Verify(key, iv, plaintext, tag []byte) ([]byte, error) {
	if len(iv) != IVSize {
		return nil, fmt.Errorf("transform: invalid IV size: got %d, want %d", len(iv), IVSize)
	}
	if len(tag) != TagSize {
		return nil, fmt.Errorf("transform: invalid tag size: got %d, want %d", len(tag), TagSize)
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if _, err := aead.Open(nil, iv, tag, plaintext); err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// BlockCount returns the number of 16-byte blocks a plaintext of length n
// will consume in a session, rounding up.
func BlockCount(n int) int {
	return (n + BlockSize - 1) / BlockSize
}
