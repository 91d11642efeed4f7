package types

// PreKeyMessage carries the X3DH handshake parameters in the wrapped keys an
// initiator sends before the responder has answered.
type PreKeyMessage struct {
	IdentityKey     IdentityKey     `json:"identity_key" cbor:"1,keyasint"`
	EphemeralKey    X25519Public    `json:"ephemeral_key" cbor:"2,keyasint"`
	SignedPreKeyID  SignedPreKeyID  `json:"signed_pre_key_id" cbor:"3,keyasint"`
	OneTimePreKeyID OneTimePreKeyID `json:"one_time_pre_key_id,omitempty" cbor:"4,keyasint,omitempty"`
}

// KeyMessage is the content of KeyHeader.WrappedKey: one ratchet message,
// prefixed by the handshake parameters while the session is unacknowledged.
type KeyMessage struct {
	PreKey *PreKeyMessage `cbor:"1,keyasint,omitempty"`
	Header RatchetHeader  `cbor:"2,keyasint"`
	Cipher []byte         `cbor:"3,keyasint"`
}

// KeyHeader is the message key wrapped for one recipient device.
type KeyHeader struct {
	DeviceID        DeviceID `json:"rid"`
	WrappedKey      []byte   `json:"key"`
	IsPreKeyMessage bool     `json:"prekey,omitempty"`
}

// Envelope is one encrypted message as it travels between devices: a single
// body ciphertext and one wrapped key per recipient device. Key transport
// messages carry no body, and their wrapped keys hold the bare key.
type Envelope struct {
	SenderDeviceID DeviceID    `json:"sid"`
	Headers        []KeyHeader `json:"keys"`
	IV             []byte      `json:"iv"`
	Body           []byte      `json:"payload,omitempty"`
}

// DecryptedMessage is what a successful decryption yields.
type DecryptedMessage struct {
	Sender      Device      `json:"sender"`
	Plaintext   []byte      `json:"plaintext,omitempty"`
	Key         []byte      `json:"-"`
	Fingerprint Fingerprint `json:"fingerprint"`

	// PreKeyConsumed reports whether a one-time pre-key was used up.
	PreKeyConsumed bool `json:"-"`
	// PreKeyMessage reports whether the key arrived in a session handshake.
	PreKeyMessage bool `json:"-"`

	// Reply, when set, is to be delivered back to Sender: an empty message
	// completing the session Sender started, or a key transport over a
	// session rebuilt because Sender's message could not be read.
	Reply *Envelope `json:"reply,omitempty"`
}

// RecipientStatus is the outcome of adding one recipient device to a message.
type RecipientStatus int

const (
	// RecipientAdded means a wrapped key was added for the device.
	RecipientAdded RecipientStatus = iota
	// RecipientSkipped means the device is distrusted and was left out.
	RecipientSkipped
	// RecipientFailed means the device could not be added; Err says why.
	RecipientFailed
)

func (s RecipientStatus) String() string {
	switch s {
	case RecipientAdded:
		return "added"
	case RecipientSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// RecipientResult reports what happened to one recipient device.
type RecipientResult struct {
	Device      Device
	Status      RecipientStatus
	Fingerprint Fingerprint
	Err         error
}
