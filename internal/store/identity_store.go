package store

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"path/filepath"
	"sync"

	"omemo/internal/domain"
	"omemo/internal/util/memzero"
)

const (
	idFilename        = "identity.json.enc"
	remoteIdsFilename = "remote_identities.json"
)

// IdentityFileStore persists the local identity, sealed under a passphrase,
// and the identity keys last seen for remote devices.
type IdentityFileStore struct {
	dir        string
	passphrase string
	kdf        kdfParams
	mu         sync.Mutex
}

// NewIdentityFileStore returns an IdentityFileStore rooted at dir.
func NewIdentityFileStore(dir, passphrase string) *IdentityFileStore {
	return &IdentityFileStore{dir: dir, passphrase: passphrase, kdf: defaultKDF}
}

func (s *IdentityFileStore) IsFreshInstallation() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := readFile(filepath.Join(s.dir, idFilename))
	if err != nil {
		return false, domain.StorageError("load identity", err)
	}
	return b == nil, nil
}

// LoadIdentityKeyPair reads and unseals the identity.
func (s *IdentityFileStore) LoadIdentityKeyPair() (domain.IdentityKeyPair, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pair domain.IdentityKeyPair
	b, err := readFile(filepath.Join(s.dir, idFilename))
	if err != nil {
		return pair, false, domain.StorageError("load identity", err)
	}
	if b == nil {
		return pair, false, nil
	}
	raw, err := unseal(s.passphrase, b)
	if err != nil {
		return pair, false, err
	}
	defer memzero.Zero(raw)
	if pair, err = identityFromRaw(raw); err != nil {
		return pair, false, err
	}
	return pair, true, nil
}

// StoreIdentityKeyPair seals pair and writes it to disk.
func (s *IdentityFileStore) StoreIdentityKeyPair(pair domain.IdentityKeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ct, err := seal(s.passphrase, pair.Private[:], s.kdf)
	if err != nil {
		return err
	}
	return domain.StorageError("store identity", writeFile(filepath.Join(s.dir, idFilename), ct))
}

func (s *IdentityFileStore) LoadIdentityKey(device domain.Device) (domain.IdentityKey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var key domain.IdentityKey
	m := map[string][]byte{}
	if err := readJSON(filepath.Join(s.dir, remoteIdsFilename), &m); err != nil {
		return key, false, domain.StorageError("load identity keys", err)
	}
	b, ok := m[device.String()]
	if !ok {
		return key, false, nil
	}
	key, ok = domain.Ed25519PublicFromBytes(b)
	if !ok {
		return key, false, domain.Corrupted(device, "stored identity key", nil)
	}
	return key, true, nil
}

func (s *IdentityFileStore) StoreIdentityKey(device domain.Device, key domain.IdentityKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, remoteIdsFilename)
	m := map[string][]byte{}
	if err := readJSON(path, &m); err != nil {
		return domain.StorageError("load identity keys", err)
	}
	m[device.String()] = key.Slice()
	return domain.StorageError("store identity keys", writeJSON(path, m))
}

// purge removes the local identity. Remote identity keys are kept.
func (s *IdentityFileStore) purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeFile(filepath.Join(s.dir, idFilename))
}

// identityFromRaw rebuilds a key pair from its 64-byte private key. The
// public half must be the one the seed derives.
func identityFromRaw(raw []byte) (domain.IdentityKeyPair, error) {
	var pair domain.IdentityKeyPair
	if len(raw) != domain.Ed25519PrivateKeySize {
		return pair, domain.Corrupted(domain.Device{}, "stored identity key pair", nil)
	}
	derived := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	defer memzero.Zero(derived)
	if !bytes.Equal(derived, raw) {
		return pair, domain.Corrupted(domain.Device{}, "stored identity key pair",
			errors.New("public half does not match seed"))
	}
	copy(pair.Private[:], derived)
	copy(pair.Public[:], derived[ed25519.SeedSize:])
	return pair, nil
}
