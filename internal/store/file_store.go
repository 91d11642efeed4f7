package store

import (
	"errors"
	"os"
	"path/filepath"

	"omemo/internal/domain"
)

// FileStore is the JSON file backed domain.Store of one local device.
type FileStore struct {
	*IdentityFileStore
	*PreKeyFileStore
	*SignedPreKeyFileStore
	*SessionFileStore
	*TrustFileStore
	*DeviceListFileStore

	dir string
}

var _ domain.Store = (*FileStore)(nil)

// NewFileStore opens (creating if needed) the store of device under home.
// The identity key pair is sealed under passphrase.
func NewFileStore(home string, device domain.Device, passphrase string, opts ...Option) (*FileStore, error) {
	dir := DeviceDir(home, device)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, domain.StorageError("create store directory", err)
	}
	ids := NewIdentityFileStore(dir, passphrase)
	ids.kdf = applyOptions(opts)
	return &FileStore{
		IdentityFileStore:     ids,
		PreKeyFileStore:       NewPreKeyFileStore(dir),
		SignedPreKeyFileStore: NewSignedPreKeyFileStore(dir),
		SessionFileStore:      NewSessionFileStore(dir),
		TrustFileStore:        NewTrustFileStore(dir),
		DeviceListFileStore:   NewDeviceListFileStore(dir),
		dir:                   dir,
	}, nil
}

// DeviceDir is the directory holding the files of device under home.
func DeviceDir(home string, device domain.Device) string {
	return filepath.Join(home, filepath.Clean("/" + device.Address.String())[1:], device.ID.String())
}

// Dir returns the directory of the store.
func (s *FileStore) Dir() string { return s.dir }

// Purge removes the identity key pair, every pre-key, the counters and all
// sessions. Trust decisions, remote identity keys and device lists survive.
func (s *FileStore) Purge() error {
	err := errors.Join(
		s.IdentityFileStore.purge(),
		s.PreKeyFileStore.purge(),
		s.SignedPreKeyFileStore.purge(),
		purgeMeta(s.dir),
		s.SessionFileStore.purge(),
	)
	return domain.StorageError("purge", err)
}
