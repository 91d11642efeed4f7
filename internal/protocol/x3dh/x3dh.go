package x3dh

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"omemo/internal/crypto"
	"omemo/internal/domain"
	"omemo/internal/util/memzero"
)

const rootKeySize = 32

var kdfInfo = []byte("OMEMO X3DH")

// step is one Diffie-Hellman computation of the handshake.
type step struct {
	priv domain.X25519Private
	pub  domain.X25519Public
}

// InitiatorRoot derives the root key for the initiator and returns it with
// the ephemeral public key the responder needs.
//
// The bundle's one-time pre-key is mixed in when OneTimePreKeyID is non-zero.
func InitiatorRoot(
	identity domain.IdentityKeyPair,
	bundle domain.PreKeyBundle,
) (root []byte, ephemeral domain.X25519Public, err error) {
	if !VerifySPK(bundle.IdentityKey, bundle.SignedPreKey, bundle.SignedPreKeySignature) {
		return nil, ephemeral, domain.ErrInvalidSignature
	}
	peerIdentity, err := crypto.IdentityDHPublic(bundle.IdentityKey)
	if err != nil {
		return nil, ephemeral, err
	}
	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, ephemeral, err
	}
	defer memzero.Key(&ephPriv)

	ourIdentity := crypto.IdentityDHPrivate(identity.Private)
	defer memzero.Key(&ourIdentity)

	steps := []step{
		{ourIdentity, bundle.SignedPreKey}, // DH(IKA, SPKB)
		{ephPriv, peerIdentity},            // DH(EKA, IKB)
		{ephPriv, bundle.SignedPreKey},     // DH(EKA, SPKB)
	}
	if bundle.OneTimePreKeyID != 0 {
		steps = append(steps, step{ephPriv, bundle.OneTimePreKey}) // DH(EKA, OPKB)
	}

	root, err = agree(steps)
	return root, ephPub, err
}

// ResponderRoot recomputes the initiator's root key from the handshake in msg
// and the local pre-keys it references. oneTime is nil when msg carries no
// one-time pre-key.
func ResponderRoot(
	identity domain.IdentityKeyPair,
	signed domain.X25519Private,
	oneTime *domain.X25519Private,
	msg domain.PreKeyMessage,
) ([]byte, error) {
	if msg.OneTimePreKeyID != 0 && oneTime == nil {
		return nil, fmt.Errorf("x3dh: one-time pre-key %d required", msg.OneTimePreKeyID)
	}
	peerIdentity, err := crypto.IdentityDHPublic(msg.IdentityKey)
	if err != nil {
		return nil, err
	}
	ourIdentity := crypto.IdentityDHPrivate(identity.Private)
	defer memzero.Key(&ourIdentity)

	steps := []step{
		{signed, peerIdentity},          // DH(SPKB, IKA)
		{ourIdentity, msg.EphemeralKey}, // DH(IKB, EKA)
		{signed, msg.EphemeralKey},      // DH(SPKB, EKA)
	}
	if msg.OneTimePreKeyID != 0 {
		steps = append(steps, step{*oneTime, msg.EphemeralKey}) // DH(OPKB, EKA)
	}

	return agree(steps)
}

// VerifySPK checks the signed pre-key signature against the identity key.
func VerifySPK(identity domain.IdentityKey, spk domain.X25519Public, sig []byte) bool {
	return crypto.VerifyEd25519(identity, spk.Slice(), sig)
}

func agree(steps []step) ([]byte, error) {
	transcript := make([]byte, 0, 32*len(steps))
	for _, s := range steps {
		shared, err := crypto.DH(s.priv, s.pub)
		if err != nil {
			memzero.Zero(transcript)
			return nil, fmt.Errorf("x3dh: %w", err)
		}
		transcript = append(transcript, shared[:]...)
		memzero.Zero(shared[:])
	}
	return deriveRoot(transcript)
}

// deriveRoot runs HKDF-SHA256 over 0xFF*32 || transcript and wipes the transcript.
func deriveRoot(transcript []byte) ([]byte, error) {
	ikm := append(bytes.Repeat([]byte{0xff}, 32), transcript...)
	defer memzero.Zero(ikm)
	defer memzero.Zero(transcript)

	root := make([]byte, rootKeySize)
	r := hkdf.New(sha256.New, ikm, make([]byte, sha256.Size), kdfInfo)
	if _, err := io.ReadFull(r, root); err != nil {
		return nil, err
	}
	return root, nil
}
