package domain_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"omemo/internal/domain"
)

func TestKeyFromBytes(t *testing.T) {
	raw := bytes.Repeat([]byte{0x5a}, domain.X25519KeySize)

	x, ok := domain.X25519PublicFromBytes(raw)
	require.True(t, ok)
	require.Equal(t, raw, x[:])
	_, ok = domain.X25519PublicFromBytes(raw[1:])
	require.False(t, ok)

	ed, ok := domain.Ed25519PublicFromBytes(raw[:domain.Ed25519PublicKeySize])
	require.True(t, ok)
	require.Equal(t, raw[:domain.Ed25519PublicKeySize], ed[:])
	_, ok = domain.Ed25519PublicFromBytes(append(raw, 0))
	require.False(t, ok)
}
