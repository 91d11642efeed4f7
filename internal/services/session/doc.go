// Package session owns the ratchet sessions between the local device and
// remote devices.
//
// It builds sessions from published bundles, accepts the sessions remote
// devices build with our bundle, and wraps and unwraps message keys. Every
// operation on one remote device runs under that device's lock, reloads the
// session from the store and persists it only once the operation succeeded.
package session
