package ratchet_test

import (
	"bytes"
	"testing"

	"omemo/internal/crypto"
	"omemo/internal/domain"
	"omemo/internal/protocol/ratchet"
)

// makePair returns an initiator and responder seeded from the same root,
// with the responder's signed pre-key as its first ratchet key.
func makePair(t *testing.T) (a, b domain.RatchetState, first domain.RatchetHeader, firstCT []byte) {
	t.Helper()
	rk := bytes.Repeat([]byte{0x42}, 32)

	spkPriv, spkPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	a, err = ratchet.InitAsInitiator(rk, spkPub)
	if err != nil {
		t.Fatalf("InitAsInitiator: %v", err)
	}
	first, firstCT, err = ratchet.Encrypt(&a, nil, []byte("hi"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err = ratchet.InitAsResponder(rk, spkPriv, a.DiffieHellmanPublic)
	if err != nil {
		t.Fatalf("InitAsResponder: %v", err)
	}
	return a, b, first, firstCT
}

func mustDecrypt(t *testing.T, st *domain.RatchetState, h domain.RatchetHeader, ct []byte, want string) {
	t.Helper()
	pt, err := ratchet.Decrypt(st, nil, h, ct)
	if err != nil {
		t.Fatalf("Decrypt(%q): %v", want, err)
	}
	if string(pt) != want {
		t.Fatalf("got %q, want %q", pt, want)
	}
}

func TestDoubleRatchet_OneRoundTrip(t *testing.T) {
	a, b, h, ct := makePair(t)
	mustDecrypt(t, &b, h, ct, "hi")

	// Responder answers, which steps both ratchets.
	h2, ct2, err := ratchet.Encrypt(&b, nil, []byte("hello back"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	mustDecrypt(t, &a, h2, ct2, "hello back")

	h3, ct3, err := ratchet.Encrypt(&a, nil, []byte("third"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(h3.DiffieHellmanPublicKey, h.DiffieHellmanPublicKey) {
		t.Fatal("initiator ratchet key did not change after a reply")
	}
	mustDecrypt(t, &b, h3, ct3, "third")
}

func TestDoubleRatchet_OutOfOrder(t *testing.T) {
	a, b, h0, ct0 := makePair(t)

	h1, ct1, err := ratchet.Encrypt(&a, nil, []byte("one"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	h2, ct2, err := ratchet.Encrypt(&a, nil, []byte("two"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	mustDecrypt(t, &b, h2, ct2, "two")
	mustDecrypt(t, &b, h0, ct0, "hi")
	mustDecrypt(t, &b, h1, ct1, "one")

	// A replayed message has no key left.
	if _, err := ratchet.Decrypt(&b, nil, h1, ct1); err == nil {
		t.Fatal("expected replay to fail")
	}
}

func TestDoubleRatchet_AssociatedDataBinds(t *testing.T) {
	rk := bytes.Repeat([]byte{0x24}, 32)
	spkPriv, spkPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	a, err := ratchet.InitAsInitiator(rk, spkPub)
	if err != nil {
		t.Fatalf("InitAsInitiator: %v", err)
	}
	h, ct, err := ratchet.Encrypt(&a, []byte("ad-1"), []byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := ratchet.InitAsResponder(rk, spkPriv, a.DiffieHellmanPublic)
	if err != nil {
		t.Fatalf("InitAsResponder: %v", err)
	}
	if _, err := ratchet.Decrypt(&b, []byte("ad-2"), h, ct); err == nil {
		t.Fatal("expected decrypt with wrong associated data to fail")
	}
}
