package ratchet

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"omemo/internal/crypto"
	"omemo/internal/domain"
	"omemo/internal/util/memzero"
)

const (
	aeadKeySize  = 32
	nonceSize    = chacha20poly1305.NonceSize
	maxSkippedMK = 1000
)

var (
	ErrSkippedKeyNotFound = errors.New("ratchet: skipped message key not found")
	ErrTooManySkipped     = errors.New("ratchet: too many skipped messages")
	errChainUninitialised = errors.New("ratchet: chain key is uninitialised")
)

// InitAsInitiator seeds the sending chain from root using a fresh ratchet key
// and the peer's initial ratchet public key (its signed pre-key).
func InitAsInitiator(root []byte, peerRatchetPub domain.X25519Public) (domain.RatchetState, error) {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.RatchetState{}, err
	}
	dh, err := crypto.DH(priv, peerRatchetPub)
	if err != nil {
		return domain.RatchetState{}, err
	}
	newRK, sendCK := kdfRK(root, dh[:])
	memzero.Zero(dh[:])

	return domain.RatchetState{
		RootKey:                 newRK,
		DiffieHellmanPrivate:    priv,
		DiffieHellmanPublic:     pub,
		PeerDiffieHellmanPublic: peerRatchetPub,
		SendChainKey:            sendCK,
		SkippedKeys:             make(map[string][]byte),
	}, nil
}

// InitAsResponder seeds the receiving chain from root using our initial
// ratchet private key (the signed pre-key) and the sender's ratchet public key.
func InitAsResponder(root []byte, ourRatchetPriv domain.X25519Private, senderRatchetPub domain.X25519Public) (domain.RatchetState, error) {
	ourPub, err := crypto.PublicX25519(ourRatchetPriv)
	if err != nil {
		return domain.RatchetState{}, err
	}
	dh, err := crypto.DH(ourRatchetPriv, senderRatchetPub)
	if err != nil {
		return domain.RatchetState{}, err
	}
	newRK, recvCK := kdfRK(root, dh[:])
	memzero.Zero(dh[:])

	return domain.RatchetState{
		RootKey:                 newRK,
		DiffieHellmanPrivate:    ourRatchetPriv,
		DiffieHellmanPublic:     ourPub,
		PeerDiffieHellmanPublic: senderRatchetPub,
		ReceiveChainKey:         recvCK,
		SkippedKeys:             make(map[string][]byte),
	}, nil
}

// Encrypt produces a header and ciphertext, auto-stepping the DH ratchet on the first send after responding.
func Encrypt(st *domain.RatchetState, ad, plaintext []byte) (domain.RatchetHeader, []byte, error) {
	// If the sending chain is not yet initialised (responder's first send), perform a DH ratchet step.
	if len(st.SendChainKey) == 0 {
		newPriv, newPub, err := crypto.GenerateX25519()
		if err != nil {
			return domain.RatchetHeader{}, nil, err
		}
		dh, err := crypto.DH(newPriv, st.PeerDiffieHellmanPublic)
		if err != nil {
			return domain.RatchetHeader{}, nil, err
		}
		rk2, sendCK := kdfRK(st.RootKey, dh[:])
		memzero.Zero(dh[:])

		st.PreviousChainLength = st.SendMessageIndex
		st.SendMessageIndex = 0
		st.RootKey = rk2
		st.DiffieHellmanPrivate, st.DiffieHellmanPublic = newPriv, newPub
		st.SendChainKey = sendCK
	}

	mk, err := kdfCKSend(st)
	if err != nil {
		return domain.RatchetHeader{}, nil, err
	}
	h := domain.RatchetHeader{
		DiffieHellmanPublicKey: st.DiffieHellmanPublic.Slice(),
		PreviousChainLength:    st.PreviousChainLength,
		MessageIndex:           st.SendMessageIndex,
	}

	ct, err := seal(mk, h, ad, plaintext)
	memzero.Zero(mk)
	if err != nil {
		return domain.RatchetHeader{}, nil, err
	}
	st.SendMessageIndex++
	return h, ct, nil
}

// Decrypt handles skipped keys, does a DH ratchet step on new remote
// ratchet keys, then opens the message. The state may be modified even when
// an error is returned; callers persist it only on success.
func Decrypt(st *domain.RatchetState, ad []byte, header domain.RatchetHeader, ciphertext []byte) ([]byte, error) {
	if st.SkippedKeys == nil {
		st.SkippedKeys = make(map[string][]byte)
	}
	peer, ok := domain.X25519PublicFromBytes(header.DiffieHellmanPublicKey)
	if !ok {
		return nil, domain.ErrInvalidKey
	}

	// A key skipped earlier on any chain.
	keyID := skippedKeyID(peer, header.MessageIndex)
	if mk, ok := st.SkippedKeys[keyID]; ok {
		pt, err := open(mk, header, ad, ciphertext)
		if err != nil {
			return nil, err
		}
		delete(st.SkippedKeys, keyID)
		memzero.Zero(mk)
		return pt, nil
	}

	// New DH pub: finish the current receiving chain, then advance both chains.
	if peer != st.PeerDiffieHellmanPublic {
		if err := skipUntil(st, header.PreviousChainLength); err != nil {
			return nil, err
		}

		dh, err := crypto.DH(st.DiffieHellmanPrivate, peer)
		if err != nil {
			return nil, err
		}
		rk2, recvCK := kdfRK(st.RootKey, dh[:])
		memzero.Zero(dh[:])

		newPriv, newPub, err := crypto.GenerateX25519()
		if err != nil {
			return nil, err
		}
		dh2, err := crypto.DH(newPriv, peer)
		if err != nil {
			return nil, err
		}
		rk3, sendCK := kdfRK(rk2, dh2[:])
		memzero.Zero(dh2[:])

		st.PreviousChainLength = st.SendMessageIndex
		st.SendMessageIndex, st.ReceiveMessageIndex = 0, 0
		st.RootKey = rk3
		st.DiffieHellmanPrivate, st.DiffieHellmanPublic = newPriv, newPub
		st.PeerDiffieHellmanPublic = peer
		st.SendChainKey, st.ReceiveChainKey = sendCK, recvCK
	}

	if header.MessageIndex < st.ReceiveMessageIndex {
		return nil, ErrSkippedKeyNotFound
	}
	if err := skipUntil(st, header.MessageIndex); err != nil {
		return nil, err
	}
	mk, err := kdfCKRecv(st)
	if err != nil {
		return nil, err
	}
	pt, err := open(mk, header, ad, ciphertext)
	memzero.Zero(mk)
	if err != nil {
		return nil, err
	}
	st.ReceiveMessageIndex++
	return pt, nil
}

// --- helpers ---

func seal(mk []byte, header domain.RatchetHeader, ad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(mk[:aeadKeySize])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	binary.BigEndian.PutUint32(nonce[nonceSize-4:], header.MessageIndex)
	return aead.Seal(nil, nonce, plaintext, associatedData(ad, header)), nil
}

func open(mk []byte, header domain.RatchetHeader, ad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(mk[:aeadKeySize])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	binary.BigEndian.PutUint32(nonce[nonceSize-4:], header.MessageIndex)
	return aead.Open(nil, nonce, ciphertext, associatedData(ad, header))
}

func associatedData(ad []byte, h domain.RatchetHeader) []byte {
	out := make([]byte, 0, len(ad)+len(h.DiffieHellmanPublicKey)+8)
	out = append(out, ad...)
	out = append(out, h.DiffieHellmanPublicKey...)
	out = binary.BigEndian.AppendUint32(out, h.PreviousChainLength)
	out = binary.BigEndian.AppendUint32(out, h.MessageIndex)
	return out
}

// HKDF-based KDFs with labels.
func kdfRK(rk, dh []byte) (newRK, ck []byte) {
	r := hkdf.New(sha256.New, dh, rk, []byte("DR|rk"))
	newRK = make([]byte, 32)
	ck = make([]byte, 32)
	_, _ = io.ReadFull(r, newRK)
	_, _ = io.ReadFull(r, ck)
	return
}

func kdfCK(ck []byte) (nextCK, mk []byte) {
	r := hkdf.New(sha256.New, ck, nil, []byte("DR|ck"))
	nextCK = make([]byte, 32)
	mk = make([]byte, 32)
	_, _ = io.ReadFull(r, nextCK)
	_, _ = io.ReadFull(r, mk)
	return
}

func kdfCKSend(st *domain.RatchetState) ([]byte, error) {
	if len(st.SendChainKey) == 0 {
		return nil, errChainUninitialised
	}
	nextCK, mk := kdfCK(st.SendChainKey)
	st.SendChainKey = nextCK
	return mk, nil
}

func kdfCKRecv(st *domain.RatchetState) ([]byte, error) {
	if len(st.ReceiveChainKey) == 0 {
		return nil, errChainUninitialised
	}
	nextCK, mk := kdfCK(st.ReceiveChainKey)
	st.ReceiveChainKey = nextCK
	return mk, nil
}

func skippedKeyID(peer domain.X25519Public, n uint32) string {
	b := make([]byte, 32+4)
	copy(b, peer[:])
	binary.BigEndian.PutUint32(b[32:], n)
	return string(b)
}

// skipUntil derives and stores receive keys up to (excluding) n.
func skipUntil(st *domain.RatchetState, n uint32) error {
	if len(st.ReceiveChainKey) == 0 {
		return nil
	}
	if n > st.ReceiveMessageIndex && n-st.ReceiveMessageIndex > maxSkippedMK {
		return ErrTooManySkipped
	}
	for st.ReceiveMessageIndex < n {
		mk, err := kdfCKRecv(st)
		if err != nil {
			return err
		}
		if len(st.SkippedKeys) >= maxSkippedMK {
			for k := range st.SkippedKeys {
				delete(st.SkippedKeys, k)
				break
			}
		}
		st.SkippedKeys[skippedKeyID(st.PeerDiffieHellmanPublic, st.ReceiveMessageIndex)] = mk
		st.ReceiveMessageIndex++
	}
	return nil
}
