// Package store persists the key material and bookkeeping of one local
// device.
//
// Two implementations of domain.Store are provided:
//   - FileStore keeps one JSON file per entity type under
//     <home>/<address>/<device-id>/ and is composed of the per-entity file
//     stores (IdentityFileStore, PreKeyFileStore, SignedPreKeyFileStore,
//     SessionFileStore, TrustFileStore, DeviceListFileStore).
//   - BoltStore keeps everything in a bbolt database with one bucket per
//     local device and CBOR encoded values.
//
// In both, the identity key pair is sealed under a passphrase and every
// method is safe for concurrent use. I/O failures are reported wrapped in
// domain.ErrStorage.
package store
