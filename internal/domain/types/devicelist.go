package types

// CachedDeviceList is the locally cached view of one account's devices.
// Active and Inactive are sorted and disjoint. Version is the publication
// token of the list the cache was last merged with.
type CachedDeviceList struct {
	Active   []DeviceID `json:"active" cbor:"1,keyasint"`
	Inactive []DeviceID `json:"inactive" cbor:"2,keyasint"`
	Version  string     `json:"version,omitempty" cbor:"3,keyasint,omitempty"`
}
