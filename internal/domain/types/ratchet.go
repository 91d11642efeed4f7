package types

// RatchetHeader is sent alongside every ratchet ciphertext.
type RatchetHeader struct {
	DiffieHellmanPublicKey []byte `json:"dh_pub" cbor:"1,keyasint"`
	PreviousChainLength    uint32 `json:"pn" cbor:"2,keyasint"`
	MessageIndex           uint32 `json:"n" cbor:"3,keyasint"`
}

// RatchetState contains all fields the Double Ratchet needs to track.
type RatchetState struct {
	RootKey                 []byte            `json:"root_key" cbor:"1,keyasint"`
	DiffieHellmanPrivate    X25519Private     `json:"dh_priv" cbor:"2,keyasint"`
	DiffieHellmanPublic     X25519Public      `json:"dh_pub" cbor:"3,keyasint"`
	PeerDiffieHellmanPublic X25519Public      `json:"peer_dh_pub" cbor:"4,keyasint"`
	SendChainKey            []byte            `json:"send_ck,omitempty" cbor:"5,keyasint,omitempty"`
	ReceiveChainKey         []byte            `json:"recv_ck,omitempty" cbor:"6,keyasint,omitempty"`
	SendMessageIndex        uint32            `json:"ns" cbor:"7,keyasint"`
	ReceiveMessageIndex     uint32            `json:"nr" cbor:"8,keyasint"`
	PreviousChainLength     uint32            `json:"pn" cbor:"9,keyasint"`
	SkippedKeys             map[string][]byte `json:"skipped_keys" cbor:"10,keyasint"`
}
