package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"omemo/internal/domain"
)

// Sizes of the per-message body cipher material.
const (
	MessageKeySize = 16
	MessageIVSize  = 16
	MessageTagSize = 16
)

// NewMessageKey returns a fresh random key and IV for one message body.
func NewMessageKey() (key, iv []byte, err error) {
	key = make([]byte, MessageKeySize)
	iv = make([]byte, MessageIVSize)
	if _, err = rand.Read(key); err != nil {
		return nil, nil, err
	}
	if _, err = rand.Read(iv); err != nil {
		return nil, nil, err
	}
	return key, iv, nil
}

func bodyAEAD(key, iv []byte) (cipher.AEAD, error) {
	if len(key) != MessageKeySize || len(iv) != MessageIVSize {
		return nil, fmt.Errorf("%w: want %d byte key and %d byte iv", domain.ErrCipher, MessageKeySize, MessageIVSize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCipher, err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, MessageIVSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCipher, err)
	}
	return aead, nil
}

// SealBody encrypts plaintext with AES-128-GCM and returns the ciphertext
// with the authentication tag split off. The tag travels with the key.
func SealBody(key, iv, plaintext []byte) (body, tag []byte, err error) {
	aead, err := bodyAEAD(key, iv)
	if err != nil {
		return nil, nil, err
	}
	sealed := aead.Seal(nil, iv, plaintext, nil)
	n := len(sealed) - MessageTagSize
	return sealed[:n], sealed[n:], nil
}

// OpenBody reverses SealBody.
func OpenBody(key, iv, body, tag []byte) ([]byte, error) {
	aead, err := bodyAEAD(key, iv)
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(body)+len(tag))
	sealed = append(sealed, body...)
	sealed = append(sealed, tag...)
	pt, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, domain.ErrIntegrity
	}
	return pt, nil
}
