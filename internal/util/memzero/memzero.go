// Package memzero wipes secrets from memory once they are no longer needed.
package memzero

import "runtime"

// Zero overwrites b with zeros.
func Zero(b []byte) {
	clear(b)
	runtime.KeepAlive(b)
}

// Key overwrites a fixed-size key, such as a private X25519 or Ed25519 key,
// in place.
func Key[K ~[32]byte | ~[64]byte](k *K) {
	var zero K
	*k = zero
	runtime.KeepAlive(k)
}
