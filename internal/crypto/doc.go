// Package crypto exposes the minimal primitives used by the module.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateX25519, DH)
//   - Ed25519 key generation, signing and verification (GenerateEd25519,
//     SignEd25519, VerifyEd25519)
//   - Mapping of an Ed25519 identity to its X25519 form (IdentityDHPrivate,
//     IdentityDHPublic)
//   - The AES-128-GCM message body cipher with a 16-byte IV whose tag is
//     carried next to the key rather than the ciphertext (SealBody, OpenBody)
//   - Identity fingerprints for display (Fingerprint)
//
// # Notes
//
// All functions return fixed-size array types defined in internal/domain to
// avoid accidental reallocations. Callers should treat returned secrets as
// sensitive and wipe them with memzero.Zero when practical.
package crypto
