package system

import (
	"bytes"
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/OpenPrinting/goipp"

	"github.com/printcore/pappl/device"
	"github.com/printcore/pappl/job"
	"github.com/printcore/pappl/printer"
)

// fakeDevice/fakeTransport/fakeDriver mirror printer_test.go's harness so
// Dispatch can be exercised against a printer driven end-to-end without
// real hardware.

type fakeDevice struct{ written [][]byte }

func (d *fakeDevice) Write(ctx context.Context, buf []byte) (int, error) {
	d.written = append(d.written, append([]byte(nil), buf...))
	return len(buf), nil
}
func (d *fakeDevice) ReadStatus(ctx context.Context) (device.StateReasons, error) {
	return device.StateReasons{}, nil
}
func (d *fakeDevice) Identify(ctx context.Context, actions []device.IdentifyAction, message string) error {
	return nil
}
func (d *fakeDevice) Close() error { return nil }

type fakeTransport struct {
	scheme string
	dev    *fakeDevice
}

func (t *fakeTransport) Scheme() string { return t.scheme }
func (t *fakeTransport) Open(ctx context.Context, uri string, options url.Values) (device.Device, error) {
	return t.dev, nil
}

type fakeDriver struct{ printed []int }

func (d *fakeDriver) Print(ctx context.Context, j *job.Job, dev job.Device) (bool, error) {
	d.printed = append(d.printed, j.ID)
	_, err := dev.Write(ctx, []byte("page"))
	return err == nil, err
}

func newTestSystem(t *testing.T) (*System, *printer.Printer) {
	t.Helper()
	sys, err := New(0, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sys.SpoolDir = t.TempDir()

	registry := device.NewRegistry()
	registry.Register(&fakeTransport{scheme: "test", dev: &fakeDevice{}})
	sys.Devices = registry

	data := printer.DriverData{
		Name:           "pwg_common-300dpi-600dpi-srgb_8",
		ColorSupported: []string{"auto", "monochrome"},
		SidesSupported: []string{"one-sided"},
		MediaSupported: []string{"na_letter_8.5x11in"},
		Driver:         &fakeDriver{},
	}
	p := sys.AddPrinter("test-printer", "test://device", data)
	return sys, p
}

func printerURIFor(id int) string {
	return "ipp://localhost/printers/" + itoa(id)
}

func itoa(id int) string {
	if id == 0 {
		return "0"
	}
	digits := ""
	for id > 0 {
		digits = string(rune('0'+id%10)) + digits
		id /= 10
	}
	return digits
}

func opAttr(name string, tag goipp.Tag, v goipp.Value) goipp.Attribute {
	return goipp.Attribute{Name: name, Values: goipp.Values{{T: tag, V: v}}}
}

// printJobMessage builds a Print-Job request targeting printerID, with extra
// job-template attributes merged into the job group.
func printJobMessage(printerID int, jobAttrs ...goipp.Attribute) *goipp.Message {
	msg := &goipp.Message{
		Version:   goipp.DefaultVersion,
		Code:      goipp.Code(goipp.OpPrintJob),
		RequestID: 1,
		Operation: goipp.Attributes{
			opAttr("printer-uri", goipp.TagURI, goipp.String(printerURIFor(printerID))),
			opAttr("document-format", goipp.TagMimeType, goipp.String("image/pwg-raster")),
		},
		Job: goipp.Attributes(jobAttrs),
	}
	return msg
}

func findInGroup(attrs goipp.Attributes, name string) *goipp.Attribute {
	for i := range attrs {
		if attrs[i].Name == name {
			return &attrs[i]
		}
	}
	return nil
}

func findInGroups(groups goipp.Groups, tag goipp.Tag, name string) *goipp.Attribute {
	for _, g := range groups {
		if g.Tag != tag {
			continue
		}
		if a := findInGroup(g.Attrs, name); a != nil {
			return a
		}
	}
	return nil
}

// TestPrintJobHappyPath exercises spec §8 scenario 1: a valid Print-Job
// reaches successful-ok, job-id 1, and eventually job-state=completed with
// printer-impressions-completed incrementing.
func TestPrintJobHappyPath(t *testing.T) {
	sys, p := newTestSystem(t)

	msg := printJobMessage(p.ID,
		opAttr("copies", goipp.TagInteger, goipp.Integer(1)),
		opAttr("media", goipp.TagKeyword, goipp.String("na_letter_8.5x11in")),
	)
	req := Request{Message: msg, User: "alice", Body: bytes.NewReader([]byte("RaS2"))}

	resp := sys.Dispatch(context.Background(), req)
	if goipp.Status(resp.Code) != goipp.StatusOk {
		t.Fatalf("expected successful-ok, got %v", goipp.Status(resp.Code))
	}

	jobID := findInGroup(resp.Job, "job-id")
	if jobID == nil {
		t.Fatal("response missing job-id")
	}
	if v, ok := jobID.Values[0].V.(goipp.Integer); !ok || int(v) != 1 {
		t.Fatalf("expected job-id 1, got %+v", jobID.Values)
	}

	deadline := time.Now().Add(2 * time.Second)
	j, _ := p.FindJob(1)
	for time.Now().Before(deadline) && j.State() != job.StateCompleted {
		time.Sleep(5 * time.Millisecond)
	}
	if j.State() != job.StateCompleted {
		t.Fatalf("expected job to complete, got %v", j.State())
	}
	if p.ImpressionsCompleted() != 1 {
		t.Fatalf("expected 1 impression completed, got %d", p.ImpressionsCompleted())
	}
}

// TestPrintJobRejectsUnsupportedCopies exercises spec §8 scenario 2: copies
// outside 1-999 fails admission with
// client-error-attributes-or-values-not-supported and echoes the offending
// attribute back in the unsupported-attributes group.
func TestPrintJobRejectsUnsupportedCopies(t *testing.T) {
	sys, p := newTestSystem(t)

	msg := printJobMessage(p.ID, opAttr("copies", goipp.TagInteger, goipp.Integer(1000)))
	req := Request{Message: msg, User: "alice", Body: bytes.NewReader([]byte("RaS2"))}

	resp := sys.Dispatch(context.Background(), req)
	if goipp.Status(resp.Code) != goipp.StatusErrorAttributesOrValues {
		t.Fatalf("expected client-error-attributes-or-values-not-supported, got %v", goipp.Status(resp.Code))
	}

	un := findInGroups(resp.Groups, goipp.TagUnsupportedGroup, "copies")
	if un == nil {
		t.Fatal("expected copies in unsupported-attributes group")
	}
	if v, ok := un.Values[0].V.(goipp.Integer); !ok || int(v) != 1000 {
		t.Fatalf("expected echoed value 1000, got %+v", un.Values)
	}
}

// TestPrintJobRequiresBody covers §4.D's "Reject with client-error-bad-request
// if no body present" rule.
func TestPrintJobRequiresBody(t *testing.T) {
	sys, p := newTestSystem(t)

	msg := printJobMessage(p.ID, opAttr("copies", goipp.TagInteger, goipp.Integer(1)))
	req := Request{Message: msg, User: "alice"}

	resp := sys.Dispatch(context.Background(), req)
	if goipp.Status(resp.Code) != goipp.StatusErrorBadRequest {
		t.Fatalf("expected client-error-bad-request, got %v", goipp.Status(resp.Code))
	}
}

// TestCreateJobRejectsBody covers the "extra body after a Create-Job" rule.
func TestCreateJobRejectsBody(t *testing.T) {
	sys, p := newTestSystem(t)

	msg := &goipp.Message{
		Version:   goipp.DefaultVersion,
		Code:      goipp.Code(goipp.OpCreateJob),
		RequestID: 1,
		Operation: goipp.Attributes{
			opAttr("printer-uri", goipp.TagURI, goipp.String(printerURIFor(p.ID))),
		},
	}
	req := Request{Message: msg, User: "alice", Body: bytes.NewReader([]byte("unexpected"))}

	resp := sys.Dispatch(context.Background(), req)
	if goipp.Status(resp.Code) != goipp.StatusErrorBadRequest {
		t.Fatalf("expected client-error-bad-request, got %v", goipp.Status(resp.Code))
	}
}
