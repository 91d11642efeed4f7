package interfaces

import (
	"context"
	"time"

	domaintypes "omemo/internal/domain/types"
)

// IdentityService creates, retrieves and inspects the local identity.
type IdentityService interface {
	IsFreshInstallation() (bool, error)
	GenerateIdentity() (domaintypes.IdentityKeyPair, domaintypes.Fingerprint, error)
	LoadIdentity() (domaintypes.IdentityKeyPair, error)
	Fingerprint() (domaintypes.Fingerprint, error)
	FingerprintOf(device domaintypes.Device) (domaintypes.Fingerprint, bool, error)
	Purge() error
}

// PreKeyService maintains the local pre-key pool and the published bundle.
type PreKeyService interface {
	Regenerate() (domaintypes.Fingerprint, error)
	ShouldRotate(now time.Time) (bool, error)
	RotateSignedPreKey(now time.Time) (domaintypes.SignedPreKeyID, error)
	PackBundle() (domaintypes.Bundle, error)
	Publish(ctx context.Context) (domaintypes.Bundle, error)
}

// SessionService owns the per-device ratchet sessions.
type SessionService interface {
	// Ensure returns the fingerprint of device's identity, building a session
	// from its published bundle when none exists.
	Ensure(ctx context.Context, device domaintypes.Device) (domaintypes.Fingerprint, error)
	EncryptKey(device domaintypes.Device, key []byte) (wrapped []byte, isPreKey bool, err error)
	DecryptKey(device domaintypes.Device, header domaintypes.KeyHeader) ([]byte, SessionInfo, error)
	Remove(device domaintypes.Device) error
}

// SessionInfo describes the session a key was unwrapped with.
type SessionInfo struct {
	Fingerprint    domaintypes.Fingerprint
	PreKeyConsumed bool
}

// TrustService records and answers trust decisions.
type TrustService interface {
	State(device domaintypes.Device, fp domaintypes.Fingerprint) (domaintypes.TrustState, error)
	IsDecided(device domaintypes.Device, fp domaintypes.Fingerprint) (bool, error)
	IsTrusted(device domaintypes.Device, fp domaintypes.Fingerprint) (bool, error)
	Trust(device domaintypes.Device, fp domaintypes.Fingerprint) error
	Distrust(device domaintypes.Device, fp domaintypes.Fingerprint) error
}

// DeviceListService keeps cached device lists in step with the published ones.
type DeviceListService interface {
	Refresh(ctx context.Context, address domaintypes.Address) (domaintypes.CachedDeviceList, error)
	ActiveDevices(ctx context.Context, address domaintypes.Address, now time.Time) ([]domaintypes.Device, error)
	AnnounceOwn(ctx context.Context) error
	MarkMessageReceived(device domaintypes.Device, at time.Time) error
}

// MessageService encrypts for and decrypts from whole accounts.
type MessageService interface {
	Encrypt(
		ctx context.Context,
		plaintext []byte,
		recipients ...domaintypes.Address,
	) (domaintypes.Envelope, []domaintypes.RecipientResult, error)
	Decrypt(
		ctx context.Context,
		sender domaintypes.Address,
		envelope domaintypes.Envelope,
	) (domaintypes.DecryptedMessage, bool, error)
	RatchetUpdate(ctx context.Context, device domaintypes.Device) (domaintypes.Envelope, error)
	Repair(ctx context.Context, device domaintypes.Device) (domaintypes.Envelope, error)
}
