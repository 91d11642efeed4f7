package identity

import (
	"fmt"
	"unicode"

	"omemo/internal/domain"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)
)

// Service manages the identity key pair of the local device.
//
// The identity is an Ed25519 key pair. It signs the signed pre-keys and,
// converted to X25519, takes part in every X3DH handshake.
type Service struct {
	store domain.IdentityStore
	keys  domain.KeyUtil
}

// New returns an identity service backed by the given store.
func New(s domain.IdentityStore, keys domain.KeyUtil) *Service {
	return &Service{store: s, keys: keys}
}

func (s *Service) IsFreshInstallation() (bool, error) {
	return s.store.IsFreshInstallation()
}

// GenerateIdentity creates and stores a new identity key pair, replacing
// any previous one, and returns it with its fingerprint.
func (s *Service) GenerateIdentity() (domain.IdentityKeyPair, domain.Fingerprint, error) {
	pair, err := s.keys.GenerateIdentityKeyPair()
	if err != nil {
		return domain.IdentityKeyPair{}, "", err
	}
	if err := s.store.StoreIdentityKeyPair(pair); err != nil {
		return domain.IdentityKeyPair{}, "", err
	}
	return pair, s.keys.Fingerprint(s.keys.IdentityKeyFromPair(pair)), nil
}

// LoadIdentity returns the stored identity, or domain.ErrNoIdentity.
func (s *Service) LoadIdentity() (domain.IdentityKeyPair, error) {
	pair, ok, err := s.store.LoadIdentityKeyPair()
	if err != nil {
		return pair, err
	}
	if !ok {
		return pair, domain.ErrNoIdentity
	}
	return pair, nil
}

// Fingerprint returns the fingerprint of the local identity.
func (s *Service) Fingerprint() (domain.Fingerprint, error) {
	pair, err := s.LoadIdentity()
	if err != nil {
		return "", err
	}
	return s.keys.Fingerprint(s.keys.IdentityKeyFromPair(pair)), nil
}

// FingerprintOf returns the fingerprint of the identity last seen for device.
func (s *Service) FingerprintOf(device domain.Device) (domain.Fingerprint, bool, error) {
	key, ok, err := s.store.LoadIdentityKey(device)
	if err != nil || !ok {
		return "", false, err
	}
	return s.keys.Fingerprint(key), true, nil
}

// Purge drops the local key material and every session.
func (s *Service) Purge() error {
	return s.store.Purge()
}

// CheckPassphrase enforces the strength policy for passphrases that seal
// a new identity.
func CheckPassphrase(passphrase string) error {
	if !isSecurePassphrase(passphrase) {
		return ErrWeakPassphrase
	}
	return nil
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// Compile-time assertion that Service implements domain.IdentityService.
var _ domain.IdentityService = (*Service)(nil)
