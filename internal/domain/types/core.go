package types

import (
	"strconv"
	"strings"
)

// Address is the bare address of an account, e.g. "juliet@capulet.lit".
type Address string

// String returns the string form of the address.
func (a Address) String() string { return string(a) }

// DeviceID identifies one device of an account.
type DeviceID uint32

// String returns the decimal form of the device id.
func (id DeviceID) String() string { return strconv.FormatUint(uint64(id), 10) }

// Device names a single device of a single account.
type Device struct {
	Address Address  `json:"address"`
	ID      DeviceID `json:"id"`
}

// String renders the device as "address:id".
func (d Device) String() string { return d.Address.String() + ":" + d.ID.String() }

// Fingerprint is the hex form of an identity key presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// Blocks splits the fingerprint into groups of eight characters.
func (f Fingerprint) Blocks() []string {
	s := string(f)
	out := make([]string, 0, (len(s)+7)/8)
	for len(s) > 8 {
		out = append(out, s[:8])
		s = s[8:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

// Pretty returns the blocks joined by single spaces.
func (f Fingerprint) Pretty() string { return strings.Join(f.Blocks(), " ") }

// SignedPreKeyID uniquely identifies a signed pre-key of one device.
type SignedPreKeyID uint32

// OneTimePreKeyID uniquely identifies a one-time pre-key of one device.
// Zero is never issued and means "no one-time pre-key".
type OneTimePreKeyID uint32

// TrustState is the user's decision about one (device, fingerprint) pair.
type TrustState int

const (
	Undecided TrustState = iota
	Trusted
	Distrusted
)

func (s TrustState) String() string {
	switch s {
	case Trusted:
		return "trusted"
	case Distrusted:
		return "distrusted"
	default:
		return "undecided"
	}
}
