package x3dh_test

import (
	"bytes"
	"errors"
	"testing"

	"omemo/internal/crypto"
	"omemo/internal/domain"
	"omemo/internal/protocol/x3dh"
)

// makeIdentity creates a fresh identity key pair.
func makeIdentity(t *testing.T) domain.IdentityKeyPair {
	t.Helper()
	id, err := crypto.NewIdentityKeyPair()
	if err != nil {
		t.Fatalf("NewIdentityKeyPair: %v", err)
	}
	return id
}

// makeBundle returns bob's bundle plus the private halves of its pre-keys.
func makeBundle(t *testing.T, bob domain.IdentityKeyPair, withOneTime bool) (domain.PreKeyBundle, domain.X25519Private, domain.X25519Private) {
	t.Helper()
	signedPriv, signedPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	bundle := domain.PreKeyBundle{
		Device:                domain.Device{Address: "bob@example.org", ID: 7},
		IdentityKey:           bob.Public,
		SignedPreKeyID:        3,
		SignedPreKey:          signedPub,
		SignedPreKeySignature: crypto.SignEd25519(bob.Private, signedPub[:]),
	}
	var oneTimePriv domain.X25519Private
	if withOneTime {
		var oneTimePub domain.X25519Public
		oneTimePriv, oneTimePub, err = crypto.GenerateX25519()
		if err != nil {
			t.Fatalf("GenerateX25519 (opk): %v", err)
		}
		bundle.OneTimePreKeyID = 11
		bundle.OneTimePreKey = oneTimePub
	}
	return bundle, signedPriv, oneTimePriv
}

func TestInitiatorAndResponderRoot_NoOneTimePreKey(t *testing.T) {
	// Alice is initiator, Bob is responder.
	alice := makeIdentity(t)
	bob := makeIdentity(t)
	bundle, signedPriv, _ := makeBundle(t, bob, false)

	rootInitiator, ephemeral, err := x3dh.InitiatorRoot(alice, bundle)
	if err != nil {
		t.Fatalf("InitiatorRoot: %v", err)
	}

	// Alice's first key message would carry this.
	pm := domain.PreKeyMessage{
		IdentityKey:    alice.Public,
		EphemeralKey:   ephemeral,
		SignedPreKeyID: bundle.SignedPreKeyID,
	}
	rootResponder, err := x3dh.ResponderRoot(bob, signedPriv, nil, pm)
	if err != nil {
		t.Fatalf("ResponderRoot: %v", err)
	}
	if !bytes.Equal(rootInitiator, rootResponder) {
		t.Fatal("root keys differ (no OPK)")
	}
}

func TestInitiatorAndResponderRoot_WithOneTimePreKey(t *testing.T) {
	alice := makeIdentity(t)
	bob := makeIdentity(t)
	bundle, signedPriv, oneTimePriv := makeBundle(t, bob, true)

	rootInitiator, ephemeral, err := x3dh.InitiatorRoot(alice, bundle)
	if err != nil {
		t.Fatalf("InitiatorRoot: %v", err)
	}
	pm := domain.PreKeyMessage{
		IdentityKey:     alice.Public,
		EphemeralKey:    ephemeral,
		SignedPreKeyID:  bundle.SignedPreKeyID,
		OneTimePreKeyID: bundle.OneTimePreKeyID,
	}

	// Without the one-time pre-key the responder must refuse.
	if _, err := x3dh.ResponderRoot(bob, signedPriv, nil, pm); err == nil {
		t.Fatal("expected error without one-time pre-key")
	}

	rootResponder, err := x3dh.ResponderRoot(bob, signedPriv, &oneTimePriv, pm)
	if err != nil {
		t.Fatalf("ResponderRoot: %v", err)
	}
	if !bytes.Equal(rootInitiator, rootResponder) {
		t.Fatal("root keys differ (with OPK)")
	}
}

func TestInitiatorRoot_RejectsBadSignature(t *testing.T) {
	alice := makeIdentity(t)
	bob := makeIdentity(t)
	mallory := makeIdentity(t)
	bundle, _, _ := makeBundle(t, bob, true)

	// Signed by someone other than the bundle's identity.
	bundle.SignedPreKeySignature = crypto.SignEd25519(mallory.Private, bundle.SignedPreKey[:])

	_, _, err := x3dh.InitiatorRoot(alice, bundle)
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("want ErrInvalidSignature, got %v", err)
	}
}
