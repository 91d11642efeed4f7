// Package prekey maintains the local pre-key pool: it regenerates the key
// material of a fresh installation, rotates the signed pre-key, tops up the
// one-time pre-keys and publishes the resulting bundle.
package prekey
