package store

import (
	"path/filepath"
	"sync"
	"time"

	"omemo/internal/domain"
)

const (
	opkFilename        = "pre_keys.json"
	spkFilename        = "signed_pre_keys.json"
	prekeyMetaFilename = "pre_key_meta.json"
)

type prekeyMeta struct {
	LastPreKeyID          domain.OneTimePreKeyID `json:"last_pre_key_id"`
	CurrentSignedPreKeyID *domain.SignedPreKeyID `json:"current_signed_pre_key_id,omitempty"`
	LastRenewalUnix       *int64                 `json:"last_signed_pre_key_renewal,omitempty"`
}

// PreKeyFileStore persists the one-time pre-key pool to disk.
type PreKeyFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewPreKeyFileStore returns a PreKeyFileStore rooted at dir.
func NewPreKeyFileStore(dir string) *PreKeyFileStore {
	return &PreKeyFileStore{dir: dir}
}

func (s *PreKeyFileStore) load() (map[domain.OneTimePreKeyID]domain.OneTimePreKey, error) {
	m := map[domain.OneTimePreKeyID]domain.OneTimePreKey{}
	if err := readJSON(filepath.Join(s.dir, opkFilename), &m); err != nil {
		return nil, domain.StorageError("load pre-keys", err)
	}
	return m, nil
}

func (s *PreKeyFileStore) save(m map[domain.OneTimePreKeyID]domain.OneTimePreKey) error {
	return domain.StorageError("store pre-keys", writeJSON(filepath.Join(s.dir, opkFilename), m))
}

func (s *PreKeyFileStore) LoadPreKey(id domain.OneTimePreKeyID) (domain.OneTimePreKey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return domain.OneTimePreKey{}, false, err
	}
	k, ok := m[id]
	return k, ok, nil
}

func (s *PreKeyFileStore) LoadPreKeys() (map[domain.OneTimePreKeyID]domain.OneTimePreKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *PreKeyFileStore) StorePreKey(key domain.OneTimePreKey) error {
	return s.StorePreKeys(map[domain.OneTimePreKeyID]domain.OneTimePreKey{key.ID: key})
}

// StorePreKeys merges keys into the pool.
func (s *PreKeyFileStore) StorePreKeys(keys map[domain.OneTimePreKeyID]domain.OneTimePreKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	for id, k := range keys {
		m[id] = k
	}
	return s.save(m)
}

func (s *PreKeyFileStore) RemovePreKey(id domain.OneTimePreKeyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := m[id]; !ok {
		return nil
	}
	delete(m, id)
	return s.save(m)
}

func (s *PreKeyFileStore) LoadLastPreKeyID() (domain.OneTimePreKeyID, error) {
	meta, err := loadMeta(s.dir)
	return meta.LastPreKeyID, err
}

func (s *PreKeyFileStore) StoreLastPreKeyID(id domain.OneTimePreKeyID) error {
	return updateMeta(s.dir, func(m *prekeyMeta) { m.LastPreKeyID = id })
}

func (s *PreKeyFileStore) purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeFile(filepath.Join(s.dir, opkFilename))
}

// SignedPreKeyFileStore persists signed pre-keys and their rotation
// bookkeeping.
type SignedPreKeyFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewSignedPreKeyFileStore returns a SignedPreKeyFileStore rooted at dir.
func NewSignedPreKeyFileStore(dir string) *SignedPreKeyFileStore {
	return &SignedPreKeyFileStore{dir: dir}
}

func (s *SignedPreKeyFileStore) load() (map[domain.SignedPreKeyID]domain.SignedPreKey, error) {
	m := map[domain.SignedPreKeyID]domain.SignedPreKey{}
	if err := readJSON(filepath.Join(s.dir, spkFilename), &m); err != nil {
		return nil, domain.StorageError("load signed pre-keys", err)
	}
	return m, nil
}

func (s *SignedPreKeyFileStore) LoadSignedPreKey(id domain.SignedPreKeyID) (domain.SignedPreKey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return domain.SignedPreKey{}, false, err
	}
	k, ok := m[id]
	return k, ok, nil
}

func (s *SignedPreKeyFileStore) LoadSignedPreKeys() (map[domain.SignedPreKeyID]domain.SignedPreKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *SignedPreKeyFileStore) StoreSignedPreKey(key domain.SignedPreKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	m[key.ID] = key
	return domain.StorageError("store signed pre-keys", writeJSON(filepath.Join(s.dir, spkFilename), m))
}

func (s *SignedPreKeyFileStore) RemoveSignedPreKey(id domain.SignedPreKeyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := m[id]; !ok {
		return nil
	}
	delete(m, id)
	return domain.StorageError("store signed pre-keys", writeJSON(filepath.Join(s.dir, spkFilename), m))
}

func (s *SignedPreKeyFileStore) LoadCurrentSignedPreKeyID() (domain.SignedPreKeyID, bool, error) {
	meta, err := loadMeta(s.dir)
	if err != nil || meta.CurrentSignedPreKeyID == nil {
		return 0, false, err
	}
	return *meta.CurrentSignedPreKeyID, true, nil
}

func (s *SignedPreKeyFileStore) StoreCurrentSignedPreKeyID(id domain.SignedPreKeyID) error {
	return updateMeta(s.dir, func(m *prekeyMeta) { m.CurrentSignedPreKeyID = &id })
}

func (s *SignedPreKeyFileStore) LoadLastSignedPreKeyRenewal() (time.Time, bool, error) {
	meta, err := loadMeta(s.dir)
	if err != nil || meta.LastRenewalUnix == nil {
		return time.Time{}, false, err
	}
	return time.Unix(*meta.LastRenewalUnix, 0).UTC(), true, nil
}

func (s *SignedPreKeyFileStore) StoreLastSignedPreKeyRenewal(at time.Time) error {
	unix := at.Unix()
	return updateMeta(s.dir, func(m *prekeyMeta) { m.LastRenewalUnix = &unix })
}

func (s *SignedPreKeyFileStore) purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeFile(filepath.Join(s.dir, spkFilename))
}

// metaMu guards the pre-key meta file shared by both pre-key stores.
var metaMu sync.Mutex

func loadMeta(dir string) (prekeyMeta, error) {
	metaMu.Lock()
	defer metaMu.Unlock()

	var meta prekeyMeta
	if err := readJSON(filepath.Join(dir, prekeyMetaFilename), &meta); err != nil {
		return meta, domain.StorageError("load pre-key meta", err)
	}
	return meta, nil
}

func updateMeta(dir string, fn func(*prekeyMeta)) error {
	metaMu.Lock()
	defer metaMu.Unlock()

	path := filepath.Join(dir, prekeyMetaFilename)
	var meta prekeyMeta
	if err := readJSON(path, &meta); err != nil {
		return domain.StorageError("load pre-key meta", err)
	}
	fn(&meta)
	return domain.StorageError("store pre-key meta", writeJSON(path, meta))
}

func purgeMeta(dir string) error {
	metaMu.Lock()
	defer metaMu.Unlock()
	return removeFile(filepath.Join(dir, prekeyMetaFilename))
}
