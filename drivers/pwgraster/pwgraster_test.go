package pwgraster

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"testing"

	"github.com/printcore/pappl/attr"
	"github.com/printcore/pappl/job"
)

// fakeDevice records every row written to it.
type fakeDevice struct {
	rows [][]byte
}

func (d *fakeDevice) Write(ctx context.Context, buf []byte) (int, error) {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	d.rows = append(d.rows, cp)
	return len(buf), nil
}

func (d *fakeDevice) Close() error { return nil }

// encodeOnePageGrayscale builds a minimal single-page PWG-Raster v2 stream:
// sync word, one page header, width*height bytes of 8-bit-per-pixel
// grayscale data (BitsPerPixel=8, ColorSpace=0).
func encodeOnePageGrayscale(t *testing.T, width, height int, fill byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString(syncWordV2)

	hdr := make([]byte, pageHeaderSize)
	hdr[372] = 8 // BitsPerColor
	hdr[373] = 8 // BitsPerPixel
	hdr[376] = 0 // ColorSpace: grayscale
	binary.BigEndian.PutUint32(hdr[380:], uint32(width))
	binary.BigEndian.PutUint32(hdr[384:], uint32(height))
	buf.Write(hdr)

	row := bytes.Repeat([]byte{fill}, width)
	for y := 0; y < height; y++ {
		buf.Write(row)
	}
	return buf.Bytes()
}

func TestDecodeRasterPagesSinglePage(t *testing.T) {
	data := encodeOnePageGrayscale(t, 16, 4, 0x20)
	r := bufio.NewReader(bytes.NewReader(data[len(syncWordV2):]))
	pages, err := decodeRasterPages(r)
	if err != nil {
		t.Fatalf("decodeRasterPages: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	b := pages[0].Bounds()
	if b.Dx() != 16 || b.Dy() != 4 {
		t.Fatalf("unexpected page bounds: %v", b)
	}
}

func TestPrintStreamsRowsToDevice(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/page.ras"
	data := encodeOnePageGrayscale(t, 8, 2, 0x10) // dark pixels throughout
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write test document: %v", err)
	}

	j := job.New(1, 1, "tester", "test job", attr.New(), "image/pwg-raster")
	j.DocumentPath = path

	dev := &fakeDevice{}
	d := Driver{}
	ok, err := d.Print(context.Background(), j, dev)
	if err != nil {
		t.Fatalf("Print: %v", err)
	}
	if !ok {
		t.Fatalf("Print reported failure")
	}
	if len(dev.rows) == 0 {
		t.Fatalf("expected at least one row written to the device")
	}
	if j.ImpressionsCompleted != 1 {
		t.Fatalf("expected 1 impression completed, got %d", j.ImpressionsCompleted)
	}
}
