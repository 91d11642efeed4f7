package store

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// The current supported version of the sealed identity format.
const envelopeVersion = 1

// ErrWrongPassphrase is returned when the identity cannot be unsealed,
// either because the passphrase is wrong or the file was modified.
var ErrWrongPassphrase = errors.New("store: wrong passphrase or corrupted identity")

// kdfParams are the scrypt cost parameters.
type kdfParams struct {
	N, R, P int
}

var defaultKDF = kdfParams{N: 1 << DefaultScryptLogN, R: 8, P: 1}

// DefaultScryptLogN is the base-2 logarithm of the default scrypt cost.
const DefaultScryptLogN = 15

// Option adjusts how a store is opened.
type Option func(*kdfParams)

// WithScryptLogN sets the scrypt cost used when sealing the identity to
// 2^logN. Existing envelopes keep the cost they were sealed with.
func WithScryptLogN(logN int) Option {
	return func(p *kdfParams) {
		if logN > 0 && logN < 31 {
			p.N = 1 << logN
		}
	}
}

func applyOptions(opts []Option) kdfParams {
	kdf := defaultKDF
	for _, o := range opts {
		o(&kdf)
	}
	return kdf
}

// envelope is the on-disk structure holding a sealed identity and the
// parameters needed to derive its key again.
type envelope struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Cipher []byte `json:"cipher"`
}

// seal derives a key from passphrase and encrypts raw into an envelope.
func seal(passphrase string, raw []byte, kdf kdfParams) ([]byte, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	aead, err := envelopeAEAD(passphrase, salt[:], kdf)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte // zero nonce; the key is bound to a fresh salt
	return json.Marshal(envelope{
		V:      envelopeVersion,
		Salt:   salt[:],
		N:      kdf.N,
		R:      kdf.R,
		P:      kdf.P,
		Cipher: aead.Seal(nil, nonce[:], raw, salt[:]),
	})
}

// unseal opens an envelope produced by seal.
func unseal(passphrase string, b []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrongPassphrase, err)
	}
	if env.V > envelopeVersion {
		return nil, fmt.Errorf("store: unsupported identity envelope version %d", env.V)
	}
	aead, err := envelopeAEAD(passphrase, env.Salt, kdfParams{N: env.N, R: env.R, P: env.P})
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := aead.Open(nil, nonce[:], env.Cipher, env.Salt)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}

func envelopeAEAD(passphrase string, salt []byte, kdf kdfParams) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, kdf.N, kdf.R, kdf.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	return chacha20poly1305.New(key)
}
