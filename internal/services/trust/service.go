package trust

import (
	"omemo/internal/crypto"
	"omemo/internal/domain"
)

// Service answers trust questions from the decisions kept in a TrustStore.
// Decisions can be changed at any time; none of them is final.
type Service struct {
	store domain.TrustStore
}

// New returns a trust service backed by the given store.
func New(s domain.TrustStore) *Service { return &Service{store: s} }

// State folds the store's two questions into one TrustState.
func (s *Service) State(device domain.Device, fp domain.Fingerprint) (domain.TrustState, error) {
	decided, err := s.store.IsDecided(device, fp)
	if err != nil || !decided {
		return domain.Undecided, err
	}
	trusted, err := s.store.IsTrusted(device, fp)
	if err != nil {
		return domain.Undecided, err
	}
	if trusted {
		return domain.Trusted, nil
	}
	return domain.Distrusted, nil
}

func (s *Service) IsDecided(device domain.Device, fp domain.Fingerprint) (bool, error) {
	return s.store.IsDecided(device, fp)
}

func (s *Service) IsTrusted(device domain.Device, fp domain.Fingerprint) (bool, error) {
	return s.store.IsTrusted(device, fp)
}

func (s *Service) Trust(device domain.Device, fp domain.Fingerprint) error {
	return s.store.Trust(device, fp)
}

func (s *Service) Distrust(device domain.Device, fp domain.Fingerprint) error {
	return s.store.Distrust(device, fp)
}

// StateOfKey is State for the fingerprint of key.
func (s *Service) StateOfKey(device domain.Device, key domain.IdentityKey) (domain.TrustState, error) {
	return s.State(device, crypto.Fingerprint(key))
}

func (s *Service) TrustKey(device domain.Device, key domain.IdentityKey) error {
	return s.Trust(device, crypto.Fingerprint(key))
}

func (s *Service) DistrustKey(device domain.Device, key domain.IdentityKey) error {
	return s.Distrust(device, crypto.Fingerprint(key))
}

// Compile-time assertion that Service implements domain.TrustService.
var _ domain.TrustService = (*Service)(nil)
