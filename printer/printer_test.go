package printer

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/OpenPrinting/goipp"

	"github.com/printcore/pappl/attr"
	"github.com/printcore/pappl/device"
	"github.com/printcore/pappl/job"
)

// fakeDevice is a minimal device.Device used to drive the printer through a
// full job lifecycle without touching real hardware.
type fakeDevice struct {
	written [][]byte
}

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

// fakeDriver records every job it was asked to print and always succeeds.
type fakeDriver struct {
	printed []int
}

func (d *fakeDriver) Print(ctx context.Context, j *job.Job, dev job.Device) (bool, error) {
	d.printed = append(d.printed, j.ID)
	_, err := dev.Write(ctx, []byte("page"))
	return err == nil, err
}

func newTestPrinter(t *testing.T) (*Printer, *fakeDriver) {
	t.Helper()
	registry := device.NewRegistry()
	registry.Register(&fakeTransport{scheme: "test", dev: &fakeDevice{}})

	drv := &fakeDriver{}
	data := DriverData{
		Name:           "test-driver",
		ColorSupported: []string{"auto", "monochrome"},
		SidesSupported: []string{"one-sided"},
		MediaSupported: []string{"na_letter_8.5x11in"},
		Driver:         drv,
	}
	p := New(1, "test-printer", "test://device", data, registry, nil)
	return p, drv
}

func TestCreateJobAdmitsValidAttributes(t *testing.T) {
	p, _ := newTestPrinter(t)

	attrs := attr.New()
	j, unsupported := p.CreateJob("alice", "doc", attrs, "application/pdf")
	if len(unsupported) != 0 {
		t.Fatalf("unexpected unsupported attributes: %+v", unsupported)
	}
	if j == nil {
		t.Fatal("expected a job")
	}
	if j.State() != job.StatePending {
		t.Fatalf("expected pending state, got %v", j.State())
	}
	if got := len(p.ActiveJobs()); got != 1 {
		t.Fatalf("expected 1 active job, got %d", got)
	}
}

func TestCreateJobRejectsUnsupportedMedia(t *testing.T) {
	p, _ := newTestPrinter(t)

	attrs := attr.New()
	attrs.Add(goipp.TagKeyword, "media", goipp.String("na_legal_8.5x14in"))

	_, unsupported := p.CreateJob("alice", "doc", attrs, "application/pdf")
	if len(unsupported) == 0 {
		t.Fatal("expected media to be rejected as unsupported")
	}
}

func TestPipelineProcessesAdmittedJob(t *testing.T) {
	p, drv := newTestPrinter(t)

	attrs := attr.New()
	j, unsupported := p.CreateJob("alice", "doc", attrs, "application/pdf")
	if len(unsupported) != 0 {
		t.Fatalf("unexpected unsupported: %+v", unsupported)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.StartPipeline(ctx)
	p.WakePipeline()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if j.State() == job.StateCompleted {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if j.State() != job.StateCompleted {
		t.Fatalf("expected job to complete, got state %v", j.State())
	}
	if len(drv.printed) != 1 || drv.printed[0] != j.ID {
		t.Fatalf("expected driver to print job %d, got %v", j.ID, drv.printed)
	}
	if got := len(p.CompletedJobs()); got != 1 {
		t.Fatalf("expected 1 completed job, got %d", got)
	}
	if got := len(p.ActiveJobs()); got != 0 {
		t.Fatalf("expected 0 active jobs after completion, got %d", got)
	}
}

func TestPauseResumeState(t *testing.T) {
	p, _ := newTestPrinter(t)
	if p.State() != StateIdle {
		t.Fatalf("expected idle, got %v", p.State())
	}
	p.Pause()
	if p.State() != StateStopped {
		t.Fatalf("expected stopped after pause, got %v", p.State())
	}
	p.Resume()
	if p.State() != StateIdle {
		t.Fatalf("expected idle after resume, got %v", p.State())
	}
}

func TestSetAttributesOnlyOverwritesNonEmpty(t *testing.T) {
	p, _ := newTestPrinter(t)
	p.SetAttributes("Lab 1", "Acme", "Ops")
	p.SetAttributes("", "Widgets", "")
	if p.Location != "Lab 1" || p.Organization != "Widgets" || p.OrgUnit != "Ops" {
		t.Fatalf("unexpected attributes after partial update: %+v", p)
	}
}
