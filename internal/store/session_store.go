package store

import (
	"bytes"
	"path/filepath"
	"sync"

	"omemo/internal/domain"
)

const sessionsFilename = "sessions.json"

// SessionFileStore persists serialized sessions keyed by remote device.
type SessionFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewSessionFileStore returns a SessionFileStore rooted at dir.
func NewSessionFileStore(dir string) *SessionFileStore {
	return &SessionFileStore{dir: dir}
}

type sessionTable map[domain.Address]map[domain.DeviceID][]byte

func (s *SessionFileStore) load() (sessionTable, error) {
	m := sessionTable{}
	if err := readJSON(filepath.Join(s.dir, sessionsFilename), &m); err != nil {
		return nil, domain.StorageError("load sessions", err)
	}
	return m, nil
}

func (s *SessionFileStore) save(m sessionTable) error {
	return domain.StorageError("store sessions", writeJSON(filepath.Join(s.dir, sessionsFilename), m))
}

func (s *SessionFileStore) LoadRawSession(device domain.Device) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return nil, false, err
	}
	b, ok := m[device.Address][device.ID]
	return b, ok, nil
}

func (s *SessionFileStore) StoreRawSession(device domain.Device, record []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	if m[device.Address] == nil {
		m[device.Address] = map[domain.DeviceID][]byte{}
	}
	m[device.Address][device.ID] = bytes.Clone(record)
	return s.save(m)
}

func (s *SessionFileStore) ContainsSession(device domain.Device) (bool, error) {
	_, ok, err := s.LoadRawSession(device)
	return ok, err
}

func (s *SessionFileStore) RemoveSession(device domain.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := m[device.Address][device.ID]; !ok {
		return nil
	}
	delete(m[device.Address], device.ID)
	if len(m[device.Address]) == 0 {
		delete(m, device.Address)
	}
	return s.save(m)
}

func (s *SessionFileStore) LoadAllRawSessionsOf(address domain.Address) (map[domain.DeviceID][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make(map[domain.DeviceID][]byte, len(m[address]))
	for id, b := range m[address] {
		out[id] = b
	}
	return out, nil
}

func (s *SessionFileStore) RemoveAllSessionsOf(address domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := m[address]; !ok {
		return nil
	}
	delete(m, address)
	return s.save(m)
}

func (s *SessionFileStore) purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeFile(filepath.Join(s.dir, sessionsFilename))
}
