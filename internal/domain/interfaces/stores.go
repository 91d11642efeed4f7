package interfaces

import (
	"time"

	domaintypes "omemo/internal/domain/types"
)

// IdentityStore persists the local identity and the identity keys last seen
// for remote devices.
type IdentityStore interface {
	IsFreshInstallation() (bool, error)
	LoadIdentityKeyPair() (domaintypes.IdentityKeyPair, bool, error)
	StoreIdentityKeyPair(pair domaintypes.IdentityKeyPair) error

	LoadIdentityKey(device domaintypes.Device) (domaintypes.IdentityKey, bool, error)
	StoreIdentityKey(device domaintypes.Device, key domaintypes.IdentityKey) error

	// Purge removes all local key material and every session.
	Purge() error
}

// PreKeyStore manages the pool of one-time pre-keys.
type PreKeyStore interface {
	LoadPreKey(id domaintypes.OneTimePreKeyID) (domaintypes.OneTimePreKey, bool, error)
	LoadPreKeys() (map[domaintypes.OneTimePreKeyID]domaintypes.OneTimePreKey, error)
	StorePreKey(key domaintypes.OneTimePreKey) error
	StorePreKeys(keys map[domaintypes.OneTimePreKeyID]domaintypes.OneTimePreKey) error
	RemovePreKey(id domaintypes.OneTimePreKeyID) error

	LoadLastPreKeyID() (domaintypes.OneTimePreKeyID, error)
	StoreLastPreKeyID(id domaintypes.OneTimePreKeyID) error
}

// SignedPreKeyStore manages signed pre-keys and their rotation bookkeeping.
type SignedPreKeyStore interface {
	LoadSignedPreKey(id domaintypes.SignedPreKeyID) (domaintypes.SignedPreKey, bool, error)
	LoadSignedPreKeys() (map[domaintypes.SignedPreKeyID]domaintypes.SignedPreKey, error)
	StoreSignedPreKey(key domaintypes.SignedPreKey) error
	RemoveSignedPreKey(id domaintypes.SignedPreKeyID) error

	LoadCurrentSignedPreKeyID() (domaintypes.SignedPreKeyID, bool, error)
	StoreCurrentSignedPreKeyID(id domaintypes.SignedPreKeyID) error

	LoadLastSignedPreKeyRenewal() (time.Time, bool, error)
	StoreLastSignedPreKeyRenewal(at time.Time) error
}

// SessionStore keeps serialized session records. Decoding them is the key
// utility's job so that a corrupt record can be told apart from an I/O error.
type SessionStore interface {
	LoadRawSession(device domaintypes.Device) ([]byte, bool, error)
	StoreRawSession(device domaintypes.Device, record []byte) error
	ContainsSession(device domaintypes.Device) (bool, error)
	RemoveSession(device domaintypes.Device) error

	LoadAllRawSessionsOf(address domaintypes.Address) (map[domaintypes.DeviceID][]byte, error)
	RemoveAllSessionsOf(address domaintypes.Address) error
}

// TrustStore records trust decisions per (device, fingerprint).
type TrustStore interface {
	IsDecided(device domaintypes.Device, fp domaintypes.Fingerprint) (bool, error)
	IsTrusted(device domaintypes.Device, fp domaintypes.Fingerprint) (bool, error)
	Trust(device domaintypes.Device, fp domaintypes.Fingerprint) error
	Distrust(device domaintypes.Device, fp domaintypes.Fingerprint) error
}

// DeviceListStore caches device lists and per-device activity dates.
type DeviceListStore interface {
	LoadCachedDeviceList(address domaintypes.Address) (domaintypes.CachedDeviceList, error)
	StoreCachedDeviceList(address domaintypes.Address, list domaintypes.CachedDeviceList) error

	LoadDefaultDeviceID(address domaintypes.Address) (domaintypes.DeviceID, bool, error)
	StoreDefaultDeviceID(address domaintypes.Address, id domaintypes.DeviceID) error

	LoadLastMessageReceived(device domaintypes.Device) (time.Time, bool, error)
	StoreLastMessageReceived(device domaintypes.Device, at time.Time) error
}

// Store is everything one local device persists.
type Store interface {
	IdentityStore
	PreKeyStore
	SignedPreKeyStore
	SessionStore
	TrustStore
	DeviceListStore
}
