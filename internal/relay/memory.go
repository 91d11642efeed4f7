package relay

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"

	"omemo/internal/domain"
)

// ErrNotFound is returned for bundles nobody has published.
var ErrNotFound = errors.New("relay: not found")

type deviceList struct {
	ids     []domain.DeviceID
	version uint64
}

// Memory is an in-process PubSub. Every publication of a device list bumps
// its version token.
type Memory struct {
	mu      sync.RWMutex
	lists   map[domain.Address]deviceList
	bundles map[domain.Device]domain.Bundle
}

// NewMemory returns an empty Memory.
func NewMemory() *Memory {
	return &Memory{
		lists:   make(map[domain.Address]deviceList),
		bundles: make(map[domain.Device]domain.Bundle),
	}
}

// FetchDeviceList returns the published ids of address. An address that
// never published has no devices and an empty version.
func (m *Memory) FetchDeviceList(ctx context.Context, address domain.Address) ([]domain.DeviceID, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.lists[address]
	if !ok {
		return nil, "", nil
	}
	return slices.Clone(l.ids), strconv.FormatUint(l.version, 10), nil
}

func (m *Memory) FetchBundle(ctx context.Context, device domain.Device) (domain.Bundle, error) {
	if err := ctx.Err(); err != nil {
		return domain.Bundle{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bundles[device]
	if !ok {
		return domain.Bundle{}, ErrNotFound
	}
	return cloneBundle(b), nil
}

func (m *Memory) PublishDeviceList(ctx context.Context, address domain.Address, ids []domain.DeviceID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.lists[address]
	l.ids = slices.Clone(ids)
	l.version++
	m.lists[address] = l
	return nil
}

func (m *Memory) PublishBundle(ctx context.Context, device domain.Device, bundle domain.Bundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bundles[device] = cloneBundle(bundle)
	return nil
}

func cloneBundle(b domain.Bundle) domain.Bundle {
	out := b
	out.IdentityKey = slices.Clone(b.IdentityKey)
	out.SignedPreKey = slices.Clone(b.SignedPreKey)
	out.SignedPreKeySignature = slices.Clone(b.SignedPreKeySignature)
	out.PreKeys = make(map[domain.OneTimePreKeyID][]byte, len(b.PreKeys))
	for id, k := range b.PreKeys {
		out.PreKeys[id] = slices.Clone(k)
	}
	return out
}

var _ domain.PubSub = (*Memory)(nil)
