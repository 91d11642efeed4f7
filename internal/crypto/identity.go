package crypto

import (
	"crypto/sha512"
	"fmt"

	"filippo.io/edwards25519"

	"omemo/internal/domain"
	"omemo/internal/util/memzero"
)

// IdentityDHPrivate maps an Ed25519 identity private key to the X25519
// private key with the same scalar (clamped SHA-512 of the seed, RFC 8032).
func IdentityDHPrivate(priv domain.Ed25519Private) domain.X25519Private {
	h := sha512.Sum512(priv.Seed())
	var out domain.X25519Private
	copy(out[:], h[:32])
	memzero.Zero(h[:])
	clamp(&out)
	return out
}

// IdentityDHPublic maps an Ed25519 identity public key to its X25519 form
// (the birational map from Edwards to Montgomery form).
func IdentityDHPublic(pub domain.Ed25519Public) (domain.X25519Public, error) {
	var out domain.X25519Public
	p, err := new(edwards25519.Point).SetBytes(pub[:])
	if err != nil {
		return out, fmt.Errorf("%w: identity key is not a curve point", domain.ErrInvalidKey)
	}
	copy(out[:], p.BytesMontgomery())
	return out, nil
}

// NewIdentityKeyPair generates a fresh identity key pair.
func NewIdentityKeyPair() (domain.IdentityKeyPair, error) {
	priv, pub, err := GenerateEd25519()
	if err != nil {
		return domain.IdentityKeyPair{}, err
	}
	return domain.IdentityKeyPair{Public: pub, Private: priv}, nil
}
