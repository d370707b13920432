package device_test

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printcore/pappl/device"
	"github.com/printcore/pappl/device/transport/file"
)

func TestRegistryOpensFileSchemeAmongOthers(t *testing.T) {
	reg := device.NewRegistry()
	reg.Register(file.New())
	reg.Register(fakeTransport{scheme: "usb"})
	reg.Register(fakeTransport{scheme: "usb-quirk"})

	dir := t.TempDir()
	dev, err := reg.Open(context.Background(), "file://"+filepath.Join(dir, "out.bin"), nil)
	require.NoError(t, err)
	defer dev.Close()

	_, err = dev.Write(context.Background(), []byte("hello"))
	require.NoError(t, err)
}

func TestRegistryUnknownSchemeIsNotFound(t *testing.T) {
	reg := device.NewRegistry()
	_, err := reg.Open(context.Background(), "ipp://nowhere", nil)
	require.Error(t, err)
	derr, ok := err.(*device.Error)
	require.True(t, ok)
	assert.Equal(t, device.KindNotFound, derr.Kind)
}

func TestFileTransportWritesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job")

	tr := file.New()
	dev, err := tr.Open(context.Background(), "file://"+path+"?ext=pwg", nil)
	require.NoError(t, err)

	_, err = dev.Write(context.Background(), []byte("raster-data"))
	require.NoError(t, err)
	require.NoError(t, dev.Close())

	got, err := os.ReadFile(path + ".pwg")
	require.NoError(t, err)
	assert.Equal(t, "raster-data", string(got))
}

type fakeTransport struct{ scheme string }

func (f fakeTransport) Scheme() string { return f.scheme }
func (f fakeTransport) Open(ctx context.Context, uri string, options url.Values) (device.Device, error) {
	return nil, nil
}
