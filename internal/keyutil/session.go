package keyutil

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"omemo/internal/domain"
	"omemo/internal/protocol/ratchet"
	"omemo/internal/protocol/x3dh"
	"omemo/internal/util/memzero"
)

var errNotPreKeyMessage = errors.New("keyutil: not a pre-key message")

// InitiateSession runs X3DH against bundle and seeds the sending chain.
// The returned session stays pending until the remote side answers.
func (u *Util) InitiateSession(ours domain.IdentityKeyPair, bundle domain.PreKeyBundle) (domain.SessionRecord, error) {
	root, ephemeral, err := x3dh.InitiatorRoot(ours, bundle)
	if err != nil {
		return domain.SessionRecord{}, err
	}
	defer memzero.Zero(root)

	state, err := ratchet.InitAsInitiator(root, bundle.SignedPreKey)
	if err != nil {
		return domain.SessionRecord{}, err
	}
	return domain.SessionRecord{
		Remote:         bundle.Device,
		RemoteIdentity: bundle.IdentityKey,
		LocalIdentity:  ours.Public,
		State:          state,
		BaseKey:        ephemeral,
		Pending: &domain.PreKeyMessage{
			IdentityKey:     ours.Public,
			EphemeralKey:    ephemeral,
			SignedPreKeyID:  bundle.SignedPreKeyID,
			OneTimePreKeyID: bundle.OneTimePreKeyID,
		},
		CreatedUTC: u.now().UTC().Unix(),
	}, nil
}

func (u *Util) PreKeyIDs(wrapped []byte) (domain.SignedPreKeyID, domain.OneTimePreKeyID, error) {
	km, err := decodeKeyMessage(wrapped)
	if err != nil {
		return 0, 0, err
	}
	if km.PreKey == nil {
		return 0, 0, errNotPreKeyMessage
	}
	return km.PreKey.SignedPreKeyID, km.PreKey.OneTimePreKeyID, nil
}

// AcceptSession builds the responder side of the session announced by
// wrapped. It does not decrypt wrapped; DecryptKey does that next.
func (u *Util) AcceptSession(
	ours domain.IdentityKeyPair,
	signed domain.SignedPreKey,
	oneTime *domain.OneTimePreKey,
	remote domain.Device,
	wrapped []byte,
) (domain.SessionRecord, error) {
	km, err := decodeKeyMessage(wrapped)
	if err != nil {
		return domain.SessionRecord{}, err
	}
	pm := km.PreKey
	if pm == nil {
		return domain.SessionRecord{}, errNotPreKeyMessage
	}
	if pm.SignedPreKeyID != signed.ID {
		return domain.SessionRecord{}, fmt.Errorf("%w: signed pre-key %d", domain.ErrNoSignedPreKey, pm.SignedPreKeyID)
	}

	var oneTimePriv *domain.X25519Private
	if pm.OneTimePreKeyID != 0 {
		if oneTime == nil || oneTime.ID != pm.OneTimePreKeyID {
			return domain.SessionRecord{}, fmt.Errorf("keyutil: one-time pre-key %d unavailable", pm.OneTimePreKeyID)
		}
		oneTimePriv = &oneTime.Private
	}

	sender, ok := domain.X25519PublicFromBytes(km.Header.DiffieHellmanPublicKey)
	if !ok {
		return domain.SessionRecord{}, domain.Corrupted(remote, "ratchet key", fmt.Errorf("length %d", len(km.Header.DiffieHellmanPublicKey)))
	}

	root, err := x3dh.ResponderRoot(ours, signed.Private, oneTimePriv, *pm)
	if err != nil {
		return domain.SessionRecord{}, err
	}
	defer memzero.Zero(root)

	state, err := ratchet.InitAsResponder(root, signed.Private, sender)
	if err != nil {
		return domain.SessionRecord{}, err
	}
	return domain.SessionRecord{
		Remote:         remote,
		RemoteIdentity: pm.IdentityKey,
		LocalIdentity:  ours.Public,
		State:          state,
		BaseKey:        pm.EphemeralKey,
		CreatedUTC:     u.now().UTC().Unix(),
	}, nil
}

// MatchesBaseKey reports whether wrapped is a handshake for session, i.e.
// a retransmission from the same initiator run.
func (u *Util) MatchesBaseKey(session domain.SessionRecord, wrapped []byte) bool {
	km, err := decodeKeyMessage(wrapped)
	if err != nil || km.PreKey == nil {
		return false
	}
	return km.PreKey.EphemeralKey == session.BaseKey &&
		km.PreKey.IdentityKey == session.RemoteIdentity
}

// EncryptKey ratchets the session forward and wraps key for its remote
// device. isPreKey is set while the session is still pending.
func (u *Util) EncryptKey(session *domain.SessionRecord, key []byte) ([]byte, bool, error) {
	ad := associatedData(session.LocalIdentity, session.RemoteIdentity)
	header, ct, err := ratchet.Encrypt(&session.State, ad, key)
	if err != nil {
		return nil, false, err
	}
	wrapped, err := ccbor.Marshal(domain.KeyMessage{
		PreKey: session.Pending,
		Header: header,
		Cipher: ct,
	})
	if err != nil {
		return nil, false, err
	}
	return wrapped, session.Pending != nil, nil
}

// DecryptKey unwraps a key sent over session. A plain message from the
// remote side proves it holds the session, so the pending handshake is
// dropped.
func (u *Util) DecryptKey(session *domain.SessionRecord, wrapped []byte) ([]byte, error) {
	km, err := decodeKeyMessage(wrapped)
	if err != nil {
		return nil, err
	}
	if km.PreKey != nil && km.PreKey.IdentityKey != session.RemoteIdentity {
		return nil, fmt.Errorf("%w: handshake identity differs from session", domain.ErrInvalidKey)
	}
	ad := associatedData(session.RemoteIdentity, session.LocalIdentity)
	key, err := ratchet.Decrypt(&session.State, ad, km.Header, km.Cipher)
	if err != nil {
		return nil, fmt.Errorf("keyutil: decrypt key from %s: %w", session.Remote, err)
	}
	if km.PreKey == nil {
		session.Pending = nil
	}
	return key, nil
}

func decodeKeyMessage(wrapped []byte) (domain.KeyMessage, error) {
	var km domain.KeyMessage
	if err := cbor.Unmarshal(wrapped, &km); err != nil {
		return km, domain.Corrupted(domain.Device{}, "key message", err)
	}
	return km, nil
}

// associatedData binds a wrapped key to the sender and recipient identities.
func associatedData(sender, recipient domain.IdentityKey) []byte {
	ad := make([]byte, 0, len(sender)+len(recipient))
	ad = append(ad, sender[:]...)
	return append(ad, recipient[:]...)
}
