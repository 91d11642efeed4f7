package interfaces

import (
	"context"

	domaintypes "omemo/internal/domain/types"
)

// PubSub is the key/value publication service device lists and bundles are
// exchanged through.
type PubSub interface {
	// FetchDeviceList returns the published device ids of address and an
	// opaque version token that changes whenever the list does.
	FetchDeviceList(ctx context.Context, address domaintypes.Address) ([]domaintypes.DeviceID, string, error)
	FetchBundle(ctx context.Context, device domaintypes.Device) (domaintypes.Bundle, error)

	PublishDeviceList(ctx context.Context, address domaintypes.Address, ids []domaintypes.DeviceID) error
	PublishBundle(ctx context.Context, device domaintypes.Device, bundle domaintypes.Bundle) error
}
