package interfaces

import domaintypes "omemo/internal/domain/types"

// KeyUtil is the contract a ratchet backend fulfils. It is generic over the
// backend's own representations so that nothing outside the backend depends
// on how keys, sessions or bundles look:
//
//	IKP    identity key pair
//	IK     identity public key
//	PK     one-time pre-key
//	SPK    signed pre-key
//	SESS   session record
//	ADDR   native device address
//	ECPUB  elliptic-curve public key
//	BUNDLE one usable pre-key bundle
type KeyUtil[IKP, IK, PK, SPK, SESS, ADDR, ECPUB, BUNDLE any] interface {
	GenerateIdentityKeyPair() (IKP, error)
	IdentityKeyFromPair(pair IKP) IK

	// GeneratePreKeys returns count pre-keys with ids start, start+1, ...
	GeneratePreKeys(start domaintypes.OneTimePreKeyID, count int) (map[domaintypes.OneTimePreKeyID]PK, error)
	GenerateSignedPreKey(pair IKP, id domaintypes.SignedPreKeyID) (SPK, error)

	IdentityKeyPairToBytes(pair IKP) ([]byte, error)
	IdentityKeyPairFromBytes(b []byte) (IKP, error)
	IdentityKeyToBytes(key IK) []byte
	IdentityKeyFromBytes(b []byte) (IK, error)
	PreKeyToBytes(key PK) ([]byte, error)
	PreKeyFromBytes(b []byte) (PK, error)
	SignedPreKeyToBytes(key SPK) ([]byte, error)
	SignedPreKeyFromBytes(b []byte) (SPK, error)
	SessionToBytes(session SESS) ([]byte, error)
	SessionFromBytes(b []byte) (SESS, error)
	ECPublicKeyToBytes(key ECPUB) []byte
	ECPublicKeyFromBytes(b []byte) (ECPUB, error)

	Fingerprint(key IK) domaintypes.Fingerprint

	// PackBundle assembles the public bundle for publication.
	PackBundle(identity IK, signed SPK, preKeys map[domaintypes.OneTimePreKeyID]PK) domaintypes.Bundle
	// Bundles returns one backend bundle per usable pre-key of b.
	Bundles(b domaintypes.Bundle, device domaintypes.Device) (map[domaintypes.OneTimePreKeyID]BUNDLE, error)
	BundleFromWire(b domaintypes.Bundle, device domaintypes.Device, id domaintypes.OneTimePreKeyID) (BUNDLE, error)

	// InitiateSession builds a session towards the owner of bundle.
	InitiateSession(ours IKP, bundle BUNDLE) (SESS, error)
	// PreKeyIDs reads which of our pre-keys an incoming handshake references.
	PreKeyIDs(wrapped []byte) (domaintypes.SignedPreKeyID, domaintypes.OneTimePreKeyID, error)
	// AcceptSession builds the responder side of a session from an incoming
	// handshake and the local pre-keys it references. oneTime may be nil.
	AcceptSession(ours IKP, signed SPK, oneTime *PK, remote domaintypes.Device, wrapped []byte) (SESS, error)
	// MatchesBaseKey reports whether an incoming handshake belongs to session.
	MatchesBaseKey(session SESS, wrapped []byte) bool

	EncryptKey(session *SESS, key []byte) (wrapped []byte, isPreKey bool, err error)
	DecryptKey(session *SESS, wrapped []byte) ([]byte, error)
	RemoteIdentityKey(session SESS) IK

	Address(device domaintypes.Device) ADDR
	DeviceFromAddress(addr ADDR) (domaintypes.Device, error)
}
