package state

import (
	"bytes"
	"path/filepath"
	"reflect"
	"testing"
)

func sample() System {
	return System{
		UUID: "urn:uuid:test", Hostname: "host.local", DNSSDName: "Test Printer",
		Location: "Lab 4", Organization: "Acme", OrgUnit: "R&D",
		NextPrinterID: 3, DefaultPrinterID: 1,
		Printers: []PrinterRecord{
			{
				ID: 1, Name: "office", DriverName: "pwg-raster", DeviceURI: "usb://Example/Printer",
				Location: "Room\t1", Organization: "Acme", OrgUnit: "Ops", NextJobID: 42,
				MediaReady: []Media{{SizeName: "na_letter_8.5x11in", XDim: 21590, YDim: 27940, Source: "main", Type: "stationery"}},
				Supplies:   []Supply{{Color: "black", Description: "toner", Level: 64, MaxCapacity: 100, Type: "toner"}},
			},
			{ID: 2, Name: "label\nmaker", DriverName: "pwg-raster", DeviceURI: "dnssd://Label%20Maker._ipp._tcp.local/", NextJobID: 1},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	want := sample()

	var buf bytes.Buffer
	if err := Save(&buf, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	assertEqual(t, want, got)
}

func TestSaveSaveIdempotent(t *testing.T) {
	want := sample()

	var buf1 bytes.Buffer
	if err := Save(&buf1, want); err != nil {
		t.Fatalf("Save 1: %v", err)
	}

	loaded, err := Load(bytes.NewReader(buf1.Bytes()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var buf2 bytes.Buffer
	if err := Save(&buf2, loaded); err != nil {
		t.Fatalf("Save 2: %v", err)
	}

	if !bytes.Equal(buf1.Bytes(), buf2.Bytes()) {
		t.Fatalf("save(load(save(s))) != save(s)\nfirst:\n%s\nsecond:\n%s", buf1.String(), buf2.String())
	}
}

func TestSaveFileLoadFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pappl.state")

	want := sample()
	if err := SaveFile(path, want); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	assertEqual(t, want, got)
}

func TestLoadFileMissingIsFreshStart(t *testing.T) {
	dir := t.TempDir()
	got, err := LoadFile(filepath.Join(dir, "does-not-exist.state"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !reflect.DeepEqual(got, System{}) {
		t.Fatalf("expected zero-value System, got %+v", got)
	}
}

func assertEqual(t *testing.T, want, got System) {
	t.Helper()
	if want.UUID != got.UUID || want.Hostname != got.Hostname || want.DNSSDName != got.DNSSDName ||
		want.Location != got.Location || want.Organization != got.Organization || want.OrgUnit != got.OrgUnit ||
		want.NextPrinterID != got.NextPrinterID || want.DefaultPrinterID != got.DefaultPrinterID {
		t.Fatalf("system identity mismatch:\nwant %+v\ngot  %+v", want, got)
	}
	if len(want.Printers) != len(got.Printers) {
		t.Fatalf("printer count mismatch: want %d got %d", len(want.Printers), len(got.Printers))
	}
	for i := range want.Printers {
		wp, gp := want.Printers[i], got.Printers[i]
		if wp.ID != gp.ID || wp.Name != gp.Name || wp.DriverName != gp.DriverName || wp.DeviceURI != gp.DeviceURI ||
			wp.Location != gp.Location || wp.Organization != gp.Organization || wp.OrgUnit != gp.OrgUnit ||
			wp.NextJobID != gp.NextJobID {
			t.Fatalf("printer %d mismatch:\nwant %+v\ngot  %+v", i, wp, gp)
		}
		if len(wp.MediaReady) != len(gp.MediaReady) {
			t.Fatalf("printer %d media count mismatch: want %d got %d", i, len(wp.MediaReady), len(gp.MediaReady))
		}
		for j := range wp.MediaReady {
			if wp.MediaReady[j] != gp.MediaReady[j] {
				t.Fatalf("printer %d media %d mismatch:\nwant %+v\ngot  %+v", i, j, wp.MediaReady[j], gp.MediaReady[j])
			}
		}
		if len(wp.Supplies) != len(gp.Supplies) {
			t.Fatalf("printer %d supply count mismatch: want %d got %d", i, len(wp.Supplies), len(gp.Supplies))
		}
		for j := range wp.Supplies {
			if wp.Supplies[j] != gp.Supplies[j] {
				t.Fatalf("printer %d supply %d mismatch:\nwant %+v\ngot  %+v", i, j, wp.Supplies[j], gp.Supplies[j])
			}
		}
	}
}
