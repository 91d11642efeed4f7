package types

// Key sizes in bytes.
const (
	X25519KeySize         = 32
	Ed25519PublicKeySize  = 32
	Ed25519PrivateKeySize = 64
)

// X25519Public is a Curve25519 public key.
type X25519Public [X25519KeySize]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// X25519Private is a Curve25519 private key.
type X25519Private [X25519KeySize]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// Ed25519Public is an Ed25519 signing public key.
type Ed25519Public [Ed25519PublicKeySize]byte

// Slice returns the key as a []byte.
func (p Ed25519Public) Slice() []byte { return p[:] }

// Ed25519Private is an Ed25519 signing private key in crypto/ed25519 layout
// (seed followed by public key).
type Ed25519Private [Ed25519PrivateKeySize]byte

// Slice returns the key as a []byte.
func (k Ed25519Private) Slice() []byte { return k[:] }

// Seed returns the 32-byte seed the private key was derived from.
func (k Ed25519Private) Seed() []byte { return k[:32] }

// X25519PublicFromBytes copies b into a key, reporting false on a size mismatch.
func X25519PublicFromBytes(b []byte) (X25519Public, bool) {
	var out X25519Public
	if len(b) != X25519KeySize {
		return out, false
	}
	copy(out[:], b)
	return out, true
}

// Ed25519PublicFromBytes copies b into a key, reporting false on a size mismatch.
func Ed25519PublicFromBytes(b []byte) (Ed25519Public, bool) {
	var out Ed25519Public
	if len(b) != Ed25519PublicKeySize {
		return out, false
	}
	copy(out[:], b)
	return out, true
}
