package store

import (
	"path/filepath"
	"sync"
	"time"

	"omemo/internal/domain"
)

const devicesFilename = "devices.json"

type deviceTable struct {
	Lists        map[domain.Address]domain.CachedDeviceList `json:"lists"`
	Defaults     map[domain.Address]domain.DeviceID         `json:"defaults"`
	LastReceived map[string]int64                           `json:"last_received"`
}

// DeviceListFileStore caches device lists and the date of the last message
// received from each device.
type DeviceListFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewDeviceListFileStore returns a DeviceListFileStore rooted at dir.
func NewDeviceListFileStore(dir string) *DeviceListFileStore {
	return &DeviceListFileStore{dir: dir}
}

func (s *DeviceListFileStore) load() (deviceTable, error) {
	t := deviceTable{}
	if err := readJSON(filepath.Join(s.dir, devicesFilename), &t); err != nil {
		return t, domain.StorageError("load device lists", err)
	}
	if t.Lists == nil {
		t.Lists = map[domain.Address]domain.CachedDeviceList{}
	}
	if t.Defaults == nil {
		t.Defaults = map[domain.Address]domain.DeviceID{}
	}
	if t.LastReceived == nil {
		t.LastReceived = map[string]int64{}
	}
	return t, nil
}

func (s *DeviceListFileStore) update(fn func(*deviceTable)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.load()
	if err != nil {
		return err
	}
	fn(&t)
	return domain.StorageError("store device lists", writeJSON(filepath.Join(s.dir, devicesFilename), t))
}

func (s *DeviceListFileStore) view() (deviceTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// LoadCachedDeviceList returns the cached list, empty when nothing is cached.
func (s *DeviceListFileStore) LoadCachedDeviceList(address domain.Address) (domain.CachedDeviceList, error) {
	t, err := s.view()
	if err != nil {
		return domain.CachedDeviceList{}, err
	}
	return t.Lists[address], nil
}

func (s *DeviceListFileStore) StoreCachedDeviceList(address domain.Address, list domain.CachedDeviceList) error {
	return s.update(func(t *deviceTable) { t.Lists[address] = list })
}

func (s *DeviceListFileStore) LoadDefaultDeviceID(address domain.Address) (domain.DeviceID, bool, error) {
	t, err := s.view()
	if err != nil {
		return 0, false, err
	}
	id, ok := t.Defaults[address]
	return id, ok, nil
}

func (s *DeviceListFileStore) StoreDefaultDeviceID(address domain.Address, id domain.DeviceID) error {
	return s.update(func(t *deviceTable) { t.Defaults[address] = id })
}

func (s *DeviceListFileStore) LoadLastMessageReceived(device domain.Device) (time.Time, bool, error) {
	t, err := s.view()
	if err != nil {
		return time.Time{}, false, err
	}
	unix, ok := t.LastReceived[device.String()]
	if !ok {
		return time.Time{}, false, nil
	}
	return time.Unix(unix, 0).UTC(), true, nil
}

func (s *DeviceListFileStore) StoreLastMessageReceived(device domain.Device, at time.Time) error {
	return s.update(func(t *deviceTable) { t.LastReceived[device.String()] = at.Unix() })
}
