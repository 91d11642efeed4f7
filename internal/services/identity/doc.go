// Package identity creates, loads and inspects the local identity key pair.
//
// It enforces the passphrase policy used to seal the identity at rest and
// answers fingerprint questions about local and remote devices.
package identity
