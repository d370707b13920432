// Package system implements the System object: the process-wide singleton
// holding identity/operational state, the printer table, and the request
// dispatcher. Unlike the original C implementation, the System here is
// passed explicitly to every operation rather than held as a global,
// per the design notes.
package system

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/printcore/pappl/device"
	"github.com/printcore/pappl/printer"
)

// SoftwareVersion is one entry of System.SoftwareVersions.
type SoftwareVersion struct {
	Name    string
	Version string
	Major, Minor, Patch, Build int
}

// MaxSoftwareVersions resolves the §3 Open Question on the cap for
// System.SoftwareVersions: 16 entries.
const MaxSoftwareVersions = 16

// TLSOption mirrors printer.TLSOption at the system level (off/optional/
// required), resolved once at startup from CLI flags.
type TLSOption = printer.TLSOption

const (
	TLSOff      = printer.TLSOff
	TLSOptional = printer.TLSOptional
	TLSRequired = printer.TLSRequired
)

var geoRe = regexp.MustCompile(`^geo:[+-]?\d+(\.\d+)?,[+-]?\d+(\.\d+)?(,[+-]?\d+(\.\d+)?)?$`)

// System is the process-wide singleton. All mutable fields are guarded by
// mu; running turns SetUUID into a no-op.
type System struct {
	mu sync.RWMutex

	UUID     uuid.UUID
	DNSSDName string
	Hostname string

	geoLocation  string
	location     string
	organization string
	orgUnit      string
	contactName, contactEmail, contactTelephone string
	adminGroup, printGroup string
	softwareVersions []SoftwareVersion

	LogLevel   string
	Port       int
	TLS        TLSOption
	MaxLogSize int64
	SpoolDir   string

	runCtx    context.Context
	runCancel context.CancelFunc

	printers         map[int]*printer.Printer
	nextPrinterID    int
	defaultPrinterID int

	running         bool
	shutdownDeadline time.Time

	Devices *device.Registry
	Logger  *slog.Logger

	saveCallback func()
	opCallback   OperationCallback
}

// OperationCallback lets a host application handle IPP operations the core
// does not recognize, instead of replying server-error-operation-not-supported.
type OperationCallback func(op uint16, sys *System, target *printer.Printer) (handled bool, err error)

// New constructs a fresh System. port must be <= 65535 (invariant 5).
func New(port int, logger *slog.Logger) (*System, error) {
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("system: invalid port %d", port)
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &System{
		UUID:          uuid.New(),
		Port:          port,
		printers:      make(map[int]*printer.Printer),
		nextPrinterID: 1,
		Devices:       device.NewRegistry(),
		Logger:        logger,
		runCtx:        ctx,
		runCancel:     cancel,
	}, nil
}

// Stop cancels every printer's processing-worker goroutine, started the
// first time each printer was added. Intended for a clean process exit.
func (s *System) Stop() {
	s.mu.RLock()
	cancel := s.runCancel
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// OnSave registers the host application's persistence callback.
func (s *System) OnSave(fn func()) { s.saveCallback = fn }

// OnOperation registers the custom operation callback.
func (s *System) OnOperation(fn OperationCallback) { s.opCallback = fn }

func (s *System) scheduleSave() {
	if s.saveCallback != nil {
		s.saveCallback()
	}
}

// MarkRunning freezes SetUUID, the one identity setter that is only
// effective pre-listen.
func (s *System) MarkRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
}

func (s *System) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// SetUUID is a no-op once running; it always returns the effective value.
func (s *System) SetUUID(id uuid.UUID) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		s.UUID = id
	}
	return s.UUID
}

// SetGeoLocation validates the geo: grammar (invariant 7); an invalid value
// leaves the previous one in place.
func (s *System) SetGeoLocation(geo string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if geoRe.MatchString(geo) {
		s.geoLocation = geo
	}
	return s.geoLocation
}

func (s *System) GeoLocation() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.geoLocation
}

func (s *System) SetLocation(v string) { s.mu.Lock(); s.location = v; s.mu.Unlock() }
func (s *System) Location() string     { s.mu.RLock(); defer s.mu.RUnlock(); return s.location }

func (s *System) SetOrganization(v string) { s.mu.Lock(); s.organization = v; s.mu.Unlock() }
func (s *System) Organization() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.organization
}

// SetAuthGroups sets the admin/print group names. A non-empty name turns on
// the matching authorization check in authorize, which then only requires
// an HTTP basic-auth user name; the user's membership in the named group is
// not checked.
func (s *System) SetAuthGroups(admin, print string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adminGroup, s.printGroup = admin, print
}

func (s *System) SetContact(name, email, tel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contactName, s.contactEmail, s.contactTelephone = name, email, tel
}

func (s *System) Contact() (name, email, tel string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contactName, s.contactEmail, s.contactTelephone
}

// AddSoftwareVersion appends a version entry, dropping the oldest once
// MaxSoftwareVersions is exceeded.
func (s *System) AddSoftwareVersion(v SoftwareVersion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.softwareVersions = append(s.softwareVersions, v)
	if len(s.softwareVersions) > MaxSoftwareVersions {
		s.softwareVersions = s.softwareVersions[len(s.softwareVersions)-MaxSoftwareVersions:]
	}
}

func (s *System) SoftwareVersions() []SoftwareVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SoftwareVersion, len(s.softwareVersions))
	copy(out, s.softwareVersions)
	return out
}

// --- printer table -----------------------------------------------------

// AddPrinter allocates the next printer id, registers the new printer under
// it, starts its processing worker, and invokes the save callback.
func (s *System) AddPrinter(name, deviceURI string, data printer.DriverData) *printer.Printer {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextPrinterID
	s.nextPrinterID++

	p := printer.New(id, name, deviceURI, data, s.Devices, s.Logger)
	p.OnSave(s.scheduleSave)
	p.StartPipeline(s.runCtx)
	s.printers[id] = p
	if s.defaultPrinterID == 0 {
		s.defaultPrinterID = id
	}
	s.scheduleSave()
	return p
}

// DeletePrinter removes printer id from the table (id is frozen, never
// reused) and cancels its active jobs.
func (s *System) DeletePrinter(ctx context.Context, id int) error {
	s.mu.Lock()
	p, ok := s.printers[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("system: no such printer %d", id)
	}
	delete(s.printers, id)
	if s.defaultPrinterID == id {
		s.defaultPrinterID = 0
		for pid := range s.printers {
			if s.defaultPrinterID == 0 || pid < s.defaultPrinterID {
				s.defaultPrinterID = pid
			}
		}
	}
	s.mu.Unlock()

	p.CancelJobs(ctx)
	s.scheduleSave()
	return nil
}

// Printer looks up a printer by id.
func (s *System) Printer(id int) (*printer.Printer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.printers[id]
	return p, ok
}

// DefaultPrinter returns the default printer, if any is configured.
func (s *System) DefaultPrinter() (*printer.Printer, bool) {
	s.mu.RLock()
	id := s.defaultPrinterID
	s.mu.RUnlock()
	if id == 0 {
		return nil, false
	}
	return s.Printer(id)
}

// Printers returns a snapshot of all printers, ordered by id.
func (s *System) Printers() []*printer.Printer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*printer.Printer, 0, len(s.printers))
	for _, p := range s.printers {
		out = append(out, p)
	}
	sortPrinters(out)
	return out
}

func sortPrinters(ps []*printer.Printer) {
	for i := 1; i < len(ps); i++ {
		for j := i; j > 0 && ps[j].ID < ps[j-1].ID; j-- {
			ps[j], ps[j-1] = ps[j-1], ps[j]
		}
	}
}

// NextPrinterID returns the id that will be allocated to the next printer.
func (s *System) NextPrinterID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextPrinterID
}

// DefaultPrinterID returns the raw default printer id (0 if none set).
func (s *System) DefaultPrinterID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultPrinterID
}

// RestoreCounters sets next_printer_id/default_printer_id from persisted
// state, called before any AddPrinter so ids are never reused across a
// restart.
func (s *System) RestoreCounters(nextPrinterID, defaultPrinterID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if nextPrinterID > s.nextPrinterID {
		s.nextPrinterID = nextPrinterID
	}
	s.defaultPrinterID = defaultPrinterID
}

// SinglePrinterConfigured reports whether exactly one printer is
// configured, used by the "/" and "/ipp/print" default-printer routing
// rule.
func (s *System) SinglePrinterConfigured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.printers) == 1
}

// --- shutdown lifecycle -------------------------------------------------

// RequestShutdown sets the shutdown deadline, making the system stop
// accepting new jobs.
func (s *System) RequestShutdown(grace time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdownDeadline.IsZero() {
		s.shutdownDeadline = time.Now().Add(grace)
	}
}

// ShuttingDown reports whether a shutdown deadline is set (drives
// printer-is-accepting-jobs and admission's not-accepting-jobs error).
func (s *System) ShuttingDown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.shutdownDeadline.IsZero()
}

// ShutdownDeadline returns the deadline, or the zero time if not shutting
// down.
func (s *System) ShutdownDeadline() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shutdownDeadline
}
