package memzero

import (
	"bytes"
	"testing"

	"omemo/internal/domain"
)

func TestZero(t *testing.T) {
	b := bytes.Repeat([]byte{0xaa}, 48)
	Zero(b)
	if !bytes.Equal(b, make([]byte, 48)) {
		t.Fatalf("not wiped: %x", b)
	}
	Zero(nil)
}

func TestKey(t *testing.T) {
	var priv domain.X25519Private
	for i := range priv {
		priv[i] = byte(i + 1)
	}
	Key(&priv)
	if priv != (domain.X25519Private{}) {
		t.Fatalf("not wiped: %x", priv)
	}

	var sig domain.Ed25519Private
	sig[63] = 1
	Key(&sig)
	if sig != (domain.Ed25519Private{}) {
		t.Fatal("ed25519 key not wiped")
	}
}
