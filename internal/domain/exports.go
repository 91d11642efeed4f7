package domain

import (
	interfaces "omemo/internal/domain/interfaces"
	types "omemo/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Address          = types.Address
	DeviceID         = types.DeviceID
	Device           = types.Device
	Fingerprint      = types.Fingerprint
	SignedPreKeyID   = types.SignedPreKeyID
	OneTimePreKeyID  = types.OneTimePreKeyID
	TrustState       = types.TrustState
	IdentityKey      = types.IdentityKey
	IdentityKeyPair  = types.IdentityKeyPair
	OneTimePreKey    = types.OneTimePreKey
	SignedPreKey     = types.SignedPreKey
	Bundle           = types.Bundle
	PreKeyBundle     = types.PreKeyBundle
	PreKeyMessage    = types.PreKeyMessage
	KeyMessage       = types.KeyMessage
	KeyHeader        = types.KeyHeader
	Envelope         = types.Envelope
	DecryptedMessage = types.DecryptedMessage
	RecipientStatus  = types.RecipientStatus
	RecipientResult  = types.RecipientResult
	RatchetHeader    = types.RatchetHeader
	RatchetState     = types.RatchetState
	SessionRecord    = types.SessionRecord
	CachedDeviceList = types.CachedDeviceList
	X25519Public     = types.X25519Public
	X25519Private    = types.X25519Private
	Ed25519Public    = types.Ed25519Public
	Ed25519Private   = types.Ed25519Private
)

// Trust states, recipient outcomes and key sizes.
const (
	Undecided  = types.Undecided
	Trusted    = types.Trusted
	Distrusted = types.Distrusted

	RecipientAdded   = types.RecipientAdded
	RecipientSkipped = types.RecipientSkipped
	RecipientFailed  = types.RecipientFailed

	X25519KeySize         = types.X25519KeySize
	Ed25519PublicKeySize  = types.Ed25519PublicKeySize
	Ed25519PrivateKeySize = types.Ed25519PrivateKeySize
)

// Fixed-size key conversions.
var (
	X25519PublicFromBytes  = types.X25519PublicFromBytes
	Ed25519PublicFromBytes = types.Ed25519PublicFromBytes
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	IdentityStore     = interfaces.IdentityStore
	PreKeyStore       = interfaces.PreKeyStore
	SignedPreKeyStore = interfaces.SignedPreKeyStore
	SessionStore      = interfaces.SessionStore
	TrustStore        = interfaces.TrustStore
	DeviceListStore   = interfaces.DeviceListStore
	Store             = interfaces.Store
	PubSub            = interfaces.PubSub

	IdentityService   = interfaces.IdentityService
	PreKeyService     = interfaces.PreKeyService
	SessionService    = interfaces.SessionService
	SessionInfo       = interfaces.SessionInfo
	TrustService      = interfaces.TrustService
	DeviceListService = interfaces.DeviceListService
	MessageService    = interfaces.MessageService
)

// KeyUtil is the key utility contract instantiated with the X25519 backend's
// types. The native device address is the "address:id" string.
type KeyUtil = interfaces.KeyUtil[
	types.IdentityKeyPair,
	types.IdentityKey,
	types.OneTimePreKey,
	types.SignedPreKey,
	types.SessionRecord,
	string,
	types.X25519Public,
	types.PreKeyBundle,
]
