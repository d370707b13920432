// Package usb registers the usb:// scheme so device.Registry's longest-
// prefix-match dispatch has all three core-named transports available.
// Raw USB transport internals are an external collaborator per this core's
// scope (host OS driver stack, libusb, ...); this implementation reports
// device.KindNotFound unless a host application supplies its own backend by
// registering a replacement Transport under the same scheme.
package usb

import (
	"context"
	"fmt"
	"net/url"

	"github.com/printcore/pappl/device"
)

const Scheme = "usb"

type Transport struct {
	// Backend, when set, does the real work; nil means "not available on
	// this build".
	Backend func(ctx context.Context, uri string, options url.Values) (device.Device, error)
}

func New() *Transport { return &Transport{} }

func (*Transport) Scheme() string { return Scheme }

func (t *Transport) Open(ctx context.Context, uri string, options url.Values) (device.Device, error) {
	if t.Backend != nil {
		return t.Backend(ctx, uri, options)
	}
	return nil, &device.Error{
		Kind: device.KindNotFound,
		URI:  uri,
		Err:  fmt.Errorf("usb: no backend registered for this build"),
	}
}
