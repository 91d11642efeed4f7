package types

// OneTimePreKey is a locally held one-time pre-key. It is removed from the
// pool once a remote device has used it to build a session.
type OneTimePreKey struct {
	ID      OneTimePreKeyID `json:"id"`
	Private X25519Private   `json:"priv"`
	Public  X25519Public    `json:"pub"`
}

// SignedPreKey is a locally held medium-term pre-key signed by the identity.
type SignedPreKey struct {
	ID         SignedPreKeyID `json:"id"`
	Private    X25519Private  `json:"priv"`
	Public     X25519Public   `json:"pub"`
	Signature  []byte         `json:"sig"`
	CreatedUTC int64          `json:"created_utc"`
}

// Bundle is the public key material a device publishes so that others can
// build sessions with it while it is offline. Keys travel as raw bytes; a
// malformed entry only invalidates itself.
type Bundle struct {
	IdentityKey           []byte                     `json:"identity_key"`
	SignedPreKeyID        SignedPreKeyID             `json:"signed_pre_key_id"`
	SignedPreKey          []byte                     `json:"signed_pre_key"`
	SignedPreKeySignature []byte                     `json:"signed_pre_key_signature"`
	PreKeys               map[OneTimePreKeyID][]byte `json:"pre_keys"`
}

// PreKeyBundle is one usable combination taken from a Bundle: the remote
// identity, its signed pre-key and exactly one of its one-time pre-keys.
type PreKeyBundle struct {
	Device                Device
	IdentityKey           IdentityKey
	SignedPreKeyID        SignedPreKeyID
	SignedPreKey          X25519Public
	SignedPreKeySignature []byte
	OneTimePreKeyID       OneTimePreKeyID
	OneTimePreKey         X25519Public
}
