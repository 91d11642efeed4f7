package types

// IdentityKey is the public half of a device identity: an Ed25519 key. The
// X25519 form used for key agreement is derived from it.
type IdentityKey = Ed25519Public

// IdentityKeyPair holds a device's long-term identity.
type IdentityKeyPair struct {
	Public  IdentityKey    `json:"public"`
	Private Ed25519Private `json:"private"`
}
