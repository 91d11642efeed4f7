package devicelist

import (
	"slices"

	"omemo/internal/domain"
)

// Merge folds a freshly published list of active ids into list. Fresh ids
// are active. Ids that were known before but are missing from fresh become
// inactive; no id is ever dropped.
func Merge(list domain.CachedDeviceList, fresh []domain.DeviceID) domain.CachedDeviceList {
	active := sortedSet(fresh)
	var inactive []domain.DeviceID
	for _, id := range All(list) {
		if _, found := slices.BinarySearch(active, id); !found {
			inactive = append(inactive, id)
		}
	}
	return domain.CachedDeviceList{Active: active, Inactive: inactive, Version: list.Version}
}

// All returns the active and inactive ids of list, sorted and without
// duplicates.
func All(list domain.CachedDeviceList) []domain.DeviceID {
	all := make([]domain.DeviceID, 0, len(list.Active)+len(list.Inactive))
	all = append(all, list.Active...)
	all = append(all, list.Inactive...)
	return sortedSet(all)
}

// Contains reports whether id is known to list, active or not.
func Contains(list domain.CachedDeviceList, id domain.DeviceID) bool {
	return slices.Contains(list.Active, id) || slices.Contains(list.Inactive, id)
}

// IsActive reports whether id is on the active side of list.
func IsActive(list domain.CachedDeviceList, id domain.DeviceID) bool {
	return slices.Contains(list.Active, id)
}

func sortedSet(ids []domain.DeviceID) []domain.DeviceID {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
