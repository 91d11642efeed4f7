// Package x3dh implements the X3DH key agreement used to bootstrap a Double
// Ratchet session between two devices.
//
// # Overview
//
// X3DH lets an initiator derive a shared 32-byte root key with a responder
// who has published a pre-key bundle. Identity keys are Ed25519 keys; their
// X25519 forms take part in the agreement. A usable bundle contains:
//   - Identity key
//   - Signed pre-key (X25519) and its Ed25519 signature
//   - One selected one-time pre-key (X25519)
//
// # Flows
//
// Initiator:
//  1. Verify the signed pre-key signature.
//  2. Generate an ephemeral X25519 key pair.
//  3. Compute DH values (IKa·SPKb, EKa·IKb, EKa·SPKb[, EKa·OPKb]).
//  4. HKDF over the concatenated DH transcript to produce the root key.
//
// Responder:
//  1. Receive the PreKeyMessage (initiator IK, ephemeral EK, SPK id[, OPK id]).
//  2. Look up the SPK and, if referenced, the OPK.
//  3. Compute the symmetric DH set (SPKb·IKa, IKb·EKa, SPKb·EKa[, OPKb·EKa]).
//  4. HKDF the same transcript to the identical root key.
//
// # Errors
//
// domain.ErrInvalidSignature is returned when the SPK signature fails
// verification. Other errors wrap lower-level crypto failures.
package x3dh
