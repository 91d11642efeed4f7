package keyutil

import (
	"bytes"
	"fmt"

	"omemo/internal/domain"
	"omemo/internal/instrument"
)

// PackBundle assembles the public part of the local key material.
func (u *Util) PackBundle(
	identity domain.IdentityKey,
	signed domain.SignedPreKey,
	preKeys map[domain.OneTimePreKeyID]domain.OneTimePreKey,
) domain.Bundle {
	b := domain.Bundle{
		IdentityKey:           bytes.Clone(identity[:]),
		SignedPreKeyID:        signed.ID,
		SignedPreKey:          bytes.Clone(signed.Public[:]),
		SignedPreKeySignature: bytes.Clone(signed.Signature),
		PreKeys:               make(map[domain.OneTimePreKeyID][]byte, len(preKeys)),
	}
	for id, pk := range preKeys {
		b.PreKeys[id] = bytes.Clone(pk.Public[:])
	}
	return b
}

// Bundles splits b into one usable bundle per one-time pre-key. Entries that
// do not parse are logged and left out; only a bundle without a single
// usable pre-key is an error.
func (u *Util) Bundles(b domain.Bundle, device domain.Device) (map[domain.OneTimePreKeyID]domain.PreKeyBundle, error) {
	base, err := u.bundleBase(b, device)
	if err != nil {
		return nil, err
	}
	out := make(map[domain.OneTimePreKeyID]domain.PreKeyBundle, len(b.PreKeys))
	for id, raw := range b.PreKeys {
		pub, ok := domain.X25519PublicFromBytes(raw)
		if !ok || id == 0 {
			u.log.Warningf("Skipping corrupted pre-key %d in bundle of %s", id, device)
			instrument.CorruptedBundleKey()
			continue
		}
		pb := base
		pb.OneTimePreKeyID = id
		pb.OneTimePreKey = pub
		out[id] = pb
	}
	if len(out) == 0 {
		return nil, domain.Corrupted(device, "bundle", fmt.Errorf("no usable pre-key among %d", len(b.PreKeys)))
	}
	return out, nil
}

// BundleFromWire picks the bundle for pre-key id out of b.
func (u *Util) BundleFromWire(b domain.Bundle, device domain.Device, id domain.OneTimePreKeyID) (domain.PreKeyBundle, error) {
	pb, err := u.bundleBase(b, device)
	if err != nil {
		return pb, err
	}
	raw, ok := b.PreKeys[id]
	if !ok {
		return pb, domain.Corrupted(device, fmt.Sprintf("pre-key %d", id), fmt.Errorf("not in bundle"))
	}
	pub, ok := domain.X25519PublicFromBytes(raw)
	if !ok || id == 0 {
		return pb, domain.Corrupted(device, fmt.Sprintf("pre-key %d", id), fmt.Errorf("length %d", len(raw)))
	}
	pb.OneTimePreKeyID = id
	pb.OneTimePreKey = pub
	return pb, nil
}

func (u *Util) bundleBase(b domain.Bundle, device domain.Device) (domain.PreKeyBundle, error) {
	var pb domain.PreKeyBundle
	identity, err := u.IdentityKeyFromBytes(b.IdentityKey)
	if err != nil {
		return pb, domain.Corrupted(device, "bundle identity key", err)
	}
	signed, ok := domain.X25519PublicFromBytes(b.SignedPreKey)
	if !ok {
		return pb, domain.Corrupted(device, "bundle signed pre-key", fmt.Errorf("length %d", len(b.SignedPreKey)))
	}
	return domain.PreKeyBundle{
		Device:                device,
		IdentityKey:           identity,
		SignedPreKeyID:        b.SignedPreKeyID,
		SignedPreKey:          signed,
		SignedPreKeySignature: bytes.Clone(b.SignedPreKeySignature),
	}, nil
}
