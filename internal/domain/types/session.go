package types

// SessionRecord is the ratchet session between the local device and one
// remote device. It is bound to both identity keys.
type SessionRecord struct {
	Remote         Device       `cbor:"1,keyasint"`
	RemoteIdentity IdentityKey  `cbor:"2,keyasint"`
	LocalIdentity  IdentityKey  `cbor:"3,keyasint"`
	State          RatchetState `cbor:"4,keyasint"`

	// BaseKey is the initiator's ephemeral key the session was built from.
	BaseKey X25519Public `cbor:"5,keyasint"`

	// Pending is attached to every outgoing key until the remote side has
	// answered, so that it can build the session on its end.
	Pending *PreKeyMessage `cbor:"6,keyasint,omitempty"`

	CreatedUTC int64 `cbor:"7,keyasint"`
}
