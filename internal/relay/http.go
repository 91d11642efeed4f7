package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"omemo/internal/domain"
	"omemo/internal/instrument"
)

// deviceListDoc is the JSON form of a published device list.
type deviceListDoc struct {
	Devices []domain.DeviceID `json:"devices"`
	Version string            `json:"version,omitempty"`
}

// HTTP is a PubSub client for a keyserver.
type HTTP struct {
	Base string
	HTTP *http.Client
}

// NewHTTP returns a client for the keyserver at base.
func NewHTTP(base string) *HTTP {
	return &HTTP{Base: strings.TrimRight(base, "/"), HTTP: http.DefaultClient}
}

func (c *HTTP) FetchDeviceList(ctx context.Context, address domain.Address) ([]domain.DeviceID, string, error) {
	instrument.KeyserverRequest("fetch_device_list")
	var doc deviceListDoc
	err := c.getJSON(ctx, devicesPath(address), &doc)
	if errors.Is(err, ErrNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	return doc.Devices, doc.Version, nil
}

func (c *HTTP) FetchBundle(ctx context.Context, device domain.Device) (domain.Bundle, error) {
	instrument.KeyserverRequest("fetch_bundle")
	var out domain.Bundle
	if err := c.getJSON(ctx, bundlePath(device), &out); err != nil {
		return domain.Bundle{}, err
	}
	return out, nil
}

func (c *HTTP) PublishDeviceList(ctx context.Context, address domain.Address, ids []domain.DeviceID) error {
	instrument.KeyserverRequest("publish_device_list")
	return c.put(ctx, devicesPath(address), deviceListDoc{Devices: ids})
}

func (c *HTTP) PublishBundle(ctx context.Context, device domain.Device, bundle domain.Bundle) error {
	instrument.KeyserverRequest("publish_bundle")
	return c.put(ctx, bundlePath(device), bundle)
}

func devicesPath(address domain.Address) string {
	return "/devices/" + url.PathEscape(address.String())
}

func bundlePath(device domain.Device) string {
	return "/bundles/" + url.PathEscape(device.Address.String()) + "/" + device.ID.String()
}

func (c *HTTP) put(ctx context.Context, path string, in any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.Base+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("relay put %s: %s", path, resp.Status)
	}
	return nil
}

func (c *HTTP) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("relay get %s: %w", path, ErrNotFound)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("relay get %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var _ domain.PubSub = (*HTTP)(nil)
