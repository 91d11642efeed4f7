package devicelist

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/op/go-logging.v1"

	"omemo/internal/domain"
)

// Cache is the device list service of one local device.
type Cache struct {
	own        domain.Device
	store      domain.DeviceListStore
	pubsub     domain.PubSub
	staleAfter time.Duration
	log        *logging.Logger
}

// New returns a Cache. A staleAfter of zero disables the staleness filter.
func New(
	own domain.Device,
	store domain.DeviceListStore,
	pubsub domain.PubSub,
	staleAfter time.Duration,
	log *logging.Logger,
) *Cache {
	return &Cache{own: own, store: store, pubsub: pubsub, staleAfter: staleAfter, log: log}
}

// Refresh fetches the published list of address and merges it into the
// cache. An unchanged version token leaves the cache as it is.
func (c *Cache) Refresh(ctx context.Context, address domain.Address) (domain.CachedDeviceList, error) {
	cached, err := c.store.LoadCachedDeviceList(address)
	if err != nil {
		return cached, err
	}
	ids, version, err := c.pubsub.FetchDeviceList(ctx, address)
	if err != nil {
		return cached, fmt.Errorf("devicelist: fetch %s: %w", address, err)
	}
	if version != "" && version == cached.Version {
		return cached, nil
	}
	merged := Merge(cached, ids)
	merged.Version = version
	if err := c.store.StoreCachedDeviceList(address, merged); err != nil {
		return cached, err
	}
	c.log.Debugf("Device list of %s: active %v, inactive %v", address, merged.Active, merged.Inactive)
	return merged, nil
}

// ActiveDevices refreshes the list of address and returns its active
// devices. With staleness enabled, devices whose last message is older than
// the threshold are left out; devices never heard from are kept.
func (c *Cache) ActiveDevices(ctx context.Context, address domain.Address, now time.Time) ([]domain.Device, error) {
	list, err := c.Refresh(ctx, address)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Device, 0, len(list.Active))
	for _, id := range list.Active {
		d := domain.Device{Address: address, ID: id}
		stale, err := c.isStale(d, now)
		if err != nil {
			return nil, err
		}
		if stale {
			c.log.Infof("Ignoring stale device %s", d)
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (c *Cache) isStale(d domain.Device, now time.Time) (bool, error) {
	if c.staleAfter <= 0 {
		return false, nil
	}
	last, ok, err := c.store.LoadLastMessageReceived(d)
	if err != nil || !ok {
		return false, err
	}
	return now.Sub(last) > c.staleAfter, nil
}

// AnnounceOwn makes sure the local device is on the active side of its
// account's published list.
func (c *Cache) AnnounceOwn(ctx context.Context) error {
	ids, _, err := c.pubsub.FetchDeviceList(ctx, c.own.Address)
	if err != nil {
		return fmt.Errorf("devicelist: fetch own list: %w", err)
	}
	list := domain.CachedDeviceList{Active: sortedSet(ids)}
	if !IsActive(list, c.own.ID) {
		ids = append(ids, c.own.ID)
		if err := c.pubsub.PublishDeviceList(ctx, c.own.Address, ids); err != nil {
			return fmt.Errorf("devicelist: publish own list: %w", err)
		}
		c.log.Noticef("Announced device %s", c.own)
	}
	_, err = c.Refresh(ctx, c.own.Address)
	return err
}

func (c *Cache) MarkMessageReceived(device domain.Device, at time.Time) error {
	return c.store.StoreLastMessageReceived(device, at)
}

// Compile-time assertion that Cache implements domain.DeviceListService.
var _ domain.DeviceListService = (*Cache)(nil)
