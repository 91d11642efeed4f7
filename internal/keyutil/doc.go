// Package keyutil is the X25519 ratchet backend. It generates and serialises
// key material, parses published bundles and drives the X3DH handshake and
// the Double Ratchet for the session layer.
package keyutil
