// Package file implements the file:// device transport: it writes the raw
// device-native stream to a regular file, for testing and for output-to-disk
// printer applications. Grounded on the teacher's job-file spooling idiom
// (create, write, remove), repurposed here as a device.Device rather than a
// spool-internal detail.
package file

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/printcore/pappl/device"
)

const Scheme = "file"

type Transport struct{}

func New() *Transport { return &Transport{} }

func (*Transport) Scheme() string { return Scheme }

func (*Transport) Open(ctx context.Context, uri string, options url.Values) (device.Device, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("file: %w", err)
	}
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	if options == nil {
		options = u.Query()
	}
	if ext := options.Get("ext"); ext != "" && path != "" {
		path = path + "." + ext
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, &device.Error{Kind: device.KindIO, URI: uri, Err: err}
	}
	return &deviceHandle{f: f}, nil
}

type deviceHandle struct {
	f *os.File
}

func (d *deviceHandle) Write(ctx context.Context, buf []byte) (int, error) {
	n, err := d.f.Write(buf)
	if err != nil {
		return n, &device.Error{Kind: device.KindIO, URI: d.f.Name(), Err: err}
	}
	return n, nil
}

func (d *deviceHandle) ReadStatus(ctx context.Context) (device.StateReasons, error) {
	return device.NewStateReasons(), nil
}

func (d *deviceHandle) Identify(ctx context.Context, actions []device.IdentifyAction, message string) error {
	return nil
}

func (d *deviceHandle) Close() error {
	return d.f.Close()
}
