// Package bt implements a bt://<name-or-mac> device transport over Bluetooth
// Low Energy, demonstrating that device.Registry accepts arbitrary
// implementation-registered schemes, not just the three named in the core
// contract (file, socket, usb). Grounded directly on the teacher's
// connectWithRetries/locateDevice/locateCharacteristics BLE plumbing, now
// exposed as a device.Transport instead of a hardcoded single-printer path.
package bt

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/printcore/pappl/device"
)

const Scheme = "bt"

// Well-known Nordic UART-style TX/RX characteristic UUIDs used by many
// cheap BLE printer modules; a host application can override these via the
// tx/rx query parameters on the device URI.
const (
	defaultTXChar = "0000ffe1-0000-1000-8000-00805f9b34fb"
	defaultRXChar = "0000ffe2-0000-1000-8000-00805f9b34fb"
)

type Transport struct {
	Adapter    *bluetooth.Adapter
	MaxRetries int
}

func New() *Transport {
	return &Transport{Adapter: bluetooth.DefaultAdapter, MaxRetries: 3}
}

func (*Transport) Scheme() string { return Scheme }

func (t *Transport) Open(ctx context.Context, uri string, options url.Values) (device.Device, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("bt: %w", err)
	}
	name := u.Host
	txUUID := options.Get("tx")
	if txUUID == "" {
		txUUID = defaultTXChar
	}
	rxUUID := options.Get("rx")
	if rxUUID == "" {
		rxUUID = defaultRXChar
	}

	if err := t.Adapter.Enable(); err != nil {
		return nil, &device.Error{Kind: device.KindIO, URI: uri, Err: fmt.Errorf("enable adapter: %w", err)}
	}

	found, err := t.locate(ctx, name)
	if err != nil {
		return nil, &device.Error{Kind: device.KindNotFound, URI: uri, Err: err}
	}

	var dev bluetooth.Device
	var lastErr error
	for attempt := 0; attempt < t.MaxRetries; attempt++ {
		dev, lastErr = t.Adapter.Connect(found.Address, bluetooth.ConnectionParams{})
		if lastErr == nil {
			break
		}
		slog.WarnContext(ctx, "bt: connect failed, retrying", "attempt", attempt+1, "error", lastErr)
		time.Sleep(time.Second)
	}
	if lastErr != nil {
		return nil, &device.Error{Kind: device.KindIO, URI: uri, Err: lastErr}
	}

	tx, rx, err := discoverCharacteristics(dev, txUUID, rxUUID)
	if err != nil {
		return nil, &device.Error{Kind: device.KindIO, URI: uri, Err: err}
	}

	return &deviceHandle{uri: uri, dev: dev, tx: tx, rx: rx}, nil
}

func (t *Transport) locate(ctx context.Context, name string) (bluetooth.ScanResult, error) {
	var found bluetooth.ScanResult
	var canceled bool
	err := t.Adapter.Scan(func(a *bluetooth.Adapter, sr bluetooth.ScanResult) {
		if ctx.Err() != nil {
			canceled = true
			a.StopScan()
			return
		}
		if sr.LocalName() == name || sr.Address.String() == name {
			found = sr
			a.StopScan()
		}
	})
	if err != nil {
		return found, fmt.Errorf("scan: %w", err)
	}
	if canceled {
		return found, ctx.Err()
	}
	return found, nil
}

func discoverCharacteristics(dev bluetooth.Device, txUUID, rxUUID string) (tx, rx bluetooth.DeviceCharacteristic, err error) {
	services, err := dev.DiscoverServices(nil)
	if err != nil {
		return tx, rx, fmt.Errorf("discover services: %w", err)
	}
	var txOK, rxOK bool
	for _, svc := range services {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return tx, rx, fmt.Errorf("discover characteristics: %w", err)
		}
		for _, c := range chars {
			switch c.UUID().String() {
			case txUUID:
				tx, txOK = c, true
			case rxUUID:
				rx, rxOK = c, true
			}
		}
	}
	if !txOK || !rxOK {
		return tx, rx, fmt.Errorf("required characteristics not found: tx=%s rx=%s", txUUID, rxUUID)
	}
	return tx, rx, nil
}

type deviceHandle struct {
	uri string
	dev bluetooth.Device
	tx  bluetooth.DeviceCharacteristic
	rx  bluetooth.DeviceCharacteristic
}

func (d *deviceHandle) Write(ctx context.Context, buf []byte) (int, error) {
	n, err := d.tx.WriteWithoutResponse(buf)
	if err != nil {
		return n, &device.Error{Kind: device.KindIO, URI: d.uri, Err: err}
	}
	return n, nil
}

func (d *deviceHandle) ReadStatus(ctx context.Context) (device.StateReasons, error) {
	return device.NewStateReasons(), nil
}

func (d *deviceHandle) Identify(ctx context.Context, actions []device.IdentifyAction, message string) error {
	_, err := d.rx.WriteWithoutResponse([]byte(message))
	return err
}

func (d *deviceHandle) Close() error {
	return d.dev.Disconnect()
}
