package store

import (
	"path/filepath"
	"sync"

	"omemo/internal/domain"
)

const trustFilename = "trust.json"

// TrustFileStore records trust decisions per device and fingerprint.
type TrustFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewTrustFileStore returns a TrustFileStore rooted at dir.
func NewTrustFileStore(dir string) *TrustFileStore {
	return &TrustFileStore{dir: dir}
}

// trustTable maps "address:id" to the decisions per fingerprint.
type trustTable map[string]map[domain.Fingerprint]bool

func (s *TrustFileStore) lookup(device domain.Device, fp domain.Fingerprint) (trusted, decided bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := trustTable{}
	if err := readJSON(filepath.Join(s.dir, trustFilename), &m); err != nil {
		return false, false, domain.StorageError("load trust", err)
	}
	trusted, decided = m[device.String()][fp]
	return trusted, decided, nil
}

func (s *TrustFileStore) decide(device domain.Device, fp domain.Fingerprint, trusted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, trustFilename)
	m := trustTable{}
	if err := readJSON(path, &m); err != nil {
		return domain.StorageError("load trust", err)
	}
	if m[device.String()] == nil {
		m[device.String()] = map[domain.Fingerprint]bool{}
	}
	m[device.String()][fp] = trusted
	return domain.StorageError("store trust", writeJSON(path, m))
}

func (s *TrustFileStore) IsDecided(device domain.Device, fp domain.Fingerprint) (bool, error) {
	_, decided, err := s.lookup(device, fp)
	return decided, err
}

func (s *TrustFileStore) IsTrusted(device domain.Device, fp domain.Fingerprint) (bool, error) {
	trusted, _, err := s.lookup(device, fp)
	return trusted, err
}

func (s *TrustFileStore) Trust(device domain.Device, fp domain.Fingerprint) error {
	return s.decide(device, fp, true)
}

func (s *TrustFileStore) Distrust(device domain.Device, fp domain.Fingerprint) error {
	return s.decide(device, fp, false)
}
