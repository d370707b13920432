// Package printer implements the Printer object: driver data, ready media,
// supply levels, the active/completed job lists, and the printer state
// machine, guarded by a single reader-writer lock per §5.
package printer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OpenPrinting/goipp"
	"github.com/google/uuid"

	"github.com/printcore/pappl/attr"
	"github.com/printcore/pappl/device"
	"github.com/printcore/pappl/job"
)

// State is the printer-state enum, numerically identical to the IPP
// printer-state values (RFC 8011 §4.4.11: idle=3, processing=4, stopped=5).
type State int32

const (
	StateIdle       State = 3
	StateProcessing State = 4
	StateStopped    State = 5
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Media is one entry of a printer's media-ready array: either fully
// populated or the zero value (invariant 6).
type Media struct {
	SizeName string
	XDim     int // hundredths of mm
	YDim     int
	Source   string
	Type     string
}

func (m Media) populated() bool { return m.SizeName != "" && m.XDim > 0 && m.YDim > 0 }

// Supply is one supply-level descriptor (toner, ink, paper, ...), the
// data printer-supply/printer-supply-description encode, restored from
// the original C source's supply handling.
type Supply struct {
	Color       string // colorant keyword, "" if not applicable
	Description string
	Level       int // 0-100, -1 unknown, -2 unavailable
	MaxCapacity int
	Type        string // toner, ink, solidWax, ribbon, marker, paper, ...
}

// InputTray mirrors the printer-input-tray octetString grammar from
// printer-ipp.c: type=%s;mediafeed=%d;mediaxfeed=%d;maxcapacity=%d;level=%d;status=0;name=%s;
type InputTray struct {
	Type        string
	MediaFeed   int
	MediaXFeed  int
	MaxCapacity int
	Level       int
	Name        string
}

// Config holds the tunables a host application may override; zero values
// fall back to documented defaults.
type Config struct {
	// MaxCompletedJobs bounds completed_jobs (Open Question resolution:
	// per-printer, default 100).
	MaxCompletedJobs int
}

func (c Config) maxCompletedJobs() int {
	if c.MaxCompletedJobs > 0 {
		return c.MaxCompletedJobs
	}
	return 100
}

// DriverData is the declarative capability set and callback bindings a
// printer application registers, per the design notes' "model as an
// explicit interface" guidance for the callback half.
type DriverData struct {
	Name string

	ColorSupported        []string
	SidesSupported        []string
	Resolutions           []goipp.Resolution
	MediaSources          []string
	MediaReady            []Media
	MediaSupported        []string
	MediaSizeSupported    [][2]int
	Supplies              []Supply
	BorderlessSupported    bool
	SpeedSupported        *goipp.Range
	DarknessSupported     bool
	OutputBins            []string
	IdentifyActions       []device.IdentifyAction
	PageRangesSupported   bool
	PrintScalingSupported []string
	PrintContentOptimize  []string
	StreamingFormats      map[string]struct{}

	Driver job.Driver
}

func (d DriverData) capabilities() job.Capabilities {
	return job.Capabilities{
		ColorSupported:         d.ColorSupported,
		MediaSupported:         d.MediaSupported,
		MediaSizeSupported:     d.MediaSizeSupported,
		SidesSupported:         d.SidesSupported,
		PrintScalingSupported:  d.PrintScalingSupported,
		PrintContentOptimize:   d.PrintContentOptimize,
		PrintSpeedSupported:    d.SpeedSupported,
		PrintDarknessSupported: d.DarknessSupported,
		ResolutionsSupported:   d.Resolutions,
		PageRangesSupported:    d.PageRangesSupported,
		StreamingFormats:       d.StreamingFormats,
	}
}

// Printer is owned by the system; all mutable fields are guarded by mu.
// Back-references (to the system) are by numeric id, looked up through the
// owner, never by direct pointer, per the design notes.
type Printer struct {
	mu sync.RWMutex

	ID        int
	UUID      uuid.UUID
	Name      string
	DeviceURI string
	Location  string
	Organization string
	OrgUnit   string

	Config     Config
	DriverData DriverData

	state       State
	isStopped   bool
	processing  *job.Job
	activeJobs  []*job.Job
	completed   []*job.Job
	nextJobID   int

	impressionsCompleted int
	startTime             time.Time
	configTime            time.Time
	stateTime             time.Time
	lastStatusRefresh     time.Time

	devices *device.Registry
	logger  *slog.Logger

	saveCallback func()

	pipeline *job.Pipeline
}

// New constructs an idle printer with the given id and driver data.
func New(id int, name, deviceURI string, data DriverData, devices *device.Registry, logger *slog.Logger) *Printer {
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now()
	return &Printer{
		ID:         id,
		UUID:       uuid.New(),
		Name:       name,
		DeviceURI:  deviceURI,
		DriverData: data,
		state:      StateIdle,
		nextJobID:  1,
		startTime:  now,
		configTime: now,
		stateTime:  now,
		devices:    devices,
		logger:     logger,
	}
}

// StartPipeline lazily creates and returns the printer's single processing
// worker (job.Pipeline), launching its Run loop in its own goroutine the
// first time it is called. Safe to call more than once; later calls are a
// no-op and return the existing pipeline.
func (p *Printer) StartPipeline(ctx context.Context) *job.Pipeline {
	p.mu.Lock()
	if p.pipeline == nil {
		p.pipeline = job.NewPipeline(p, p.logger)
		go p.pipeline.Run(ctx)
	}
	pl := p.pipeline
	p.mu.Unlock()
	return pl
}

// WakePipeline notifies the processing worker that a job may be pending.
// A no-op if the pipeline has not been started yet.
func (p *Printer) WakePipeline() {
	p.mu.RLock()
	pl := p.pipeline
	p.mu.RUnlock()
	if pl != nil {
		pl.Wake()
	}
}

// NextJobID returns the id that will be allocated to the next job
// (persisted state's per-printer job-id counter).
func (p *Printer) NextJobID() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nextJobID
}

// RestoreNextJobID sets the next-job-id counter on load, so ids already
// handed out in a previous run are never reused.
func (p *Printer) RestoreNextJobID(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id > p.nextJobID {
		p.nextJobID = id
	}
}

// Capabilities exposes the driver's admission-relevant capability set.
func (p *Printer) Capabilities() job.Capabilities {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.DriverData.capabilities()
}

// OnSave registers the callback invoked whenever config_time is bumped,
// implementing the debounced-save hook the System wires up.
func (p *Printer) OnSave(fn func()) { p.saveCallback = fn }

func (p *Printer) touchConfig() {
	p.configTime = time.Now()
	if p.saveCallback != nil {
		p.saveCallback()
	}
}

func (p *Printer) touchState() { p.stateTime = time.Now() }

// recomputeState applies invariant 4: state = processing iff
// processing_job != nil, else stopped if is_stopped else idle. Must be
// called with mu held for writing.
func (p *Printer) recomputeState() {
	prev := p.state
	switch {
	case p.processing != nil:
		p.state = StateProcessing
	case p.isStopped:
		p.state = StateStopped
	default:
		p.state = StateIdle
	}
	if prev != p.state {
		p.touchState()
	}
}

// State returns the current printer state under a read lock.
func (p *Printer) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// IsAcceptingJobs reports printer-is-accepting-jobs: true iff the owning
// system has no shutdown deadline set. Callers pass that fact in since
// Printer has no back-pointer to System.
func (p *Printer) IsAcceptingJobs(systemShuttingDown bool) bool {
	return !systemShuttingDown
}

// --- job admission & queue management --------------------------------------

// CreateJob validates attrs, and on success allocates a job id and appends
// it to active_jobs/all_jobs under the write lock. On failure it returns the
// offending attributes for the caller to place in an unsupported-attributes
// group.
func (p *Printer) CreateJob(username, name string, attrs *attr.Collection, documentFormat string) (*job.Job, []job.Unsupported) {
	p.mu.Lock()
	defer p.mu.Unlock()

	accepted, unsupported := job.ValidateJobAttributes(attrs, p.DriverData.capabilities())
	if len(unsupported) > 0 {
		return nil, unsupported
	}

	id := p.nextJobID
	p.nextJobID++

	j := job.New(id, p.ID, username, name, accepted, documentFormat)
	p.activeJobs = append(p.activeJobs, j)
	p.touchConfig()
	return j, nil
}

// NextPending implements job.Queue: the lowest-id pending job in
// active_jobs, or nil.
func (p *Printer) NextPending() *job.Job {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lowest *job.Job
	for _, j := range p.activeJobs {
		if j.State() != job.StatePending {
			continue
		}
		if lowest == nil || j.ID < lowest.ID {
			lowest = j
		}
	}
	if lowest != nil {
		p.processing = lowest
		p.recomputeState()
	}
	return lowest
}

// OpenDevice implements job.Queue.
func (p *Printer) OpenDevice(ctx context.Context) (job.Device, error) {
	return p.devices.Open(ctx, p.DeviceURI, device.DefaultRetryPolicy())
}

// Driver implements job.Queue.
func (p *Printer) Driver() job.Driver { return p.DriverData.Driver }

// Finish implements job.Queue: moves j from active_jobs to completed_jobs
// (bounded, oldest evicted), bumps impressions_completed/state_time.
func (p *Printer) Finish(j *job.Job, impressions int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, a := range p.activeJobs {
		if a == j {
			p.activeJobs = append(p.activeJobs[:i], p.activeJobs[i+1:]...)
			break
		}
	}
	p.completed = append([]*job.Job{j}, p.completed...)
	if max := p.Config.maxCompletedJobs(); len(p.completed) > max {
		p.completed = p.completed[:max]
	}

	p.impressionsCompleted += impressions
	if p.processing == j {
		p.processing = nil
	}
	p.recomputeState()
}

// ActiveJobs returns a snapshot slice of active jobs in current order.
func (p *Printer) ActiveJobs() []*job.Job {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*job.Job, len(p.activeJobs))
	copy(out, p.activeJobs)
	return out
}

// CompletedJobs returns a snapshot slice of completed jobs, newest first.
func (p *Printer) CompletedJobs() []*job.Job {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*job.Job, len(p.completed))
	copy(out, p.completed)
	return out
}

// AllJobs returns active ++ completed, for lookups by id.
func (p *Printer) AllJobs() []*job.Job {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*job.Job, 0, len(p.activeJobs)+len(p.completed))
	out = append(out, p.activeJobs...)
	out = append(out, p.completed...)
	return out
}

// FindJob looks up a job by id among both active and completed jobs.
func (p *Printer) FindJob(id int) (*job.Job, bool) {
	for _, j := range p.AllJobs() {
		if j.ID == id {
			return j, true
		}
	}
	return nil, false
}

// --- pause/resume/identify/cancel -------------------------------------------

// Pause sets is_stopped; the actual state transition to "stopped" is
// deferred until the current processing job completes (recomputeState only
// changes p.state once processing becomes nil).
func (p *Printer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.isStopped = true
	p.recomputeState()
}

// Resume clears is_stopped.
func (p *Printer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.isStopped = false
	p.recomputeState()
}

// CancelCurrentJob targets processing_job; returns an error if no job is
// processing.
func (p *Printer) CancelCurrentJob(ctx context.Context) error {
	p.mu.Lock()
	j := p.processing
	p.mu.Unlock()

	if j == nil {
		return fmt.Errorf("printer %d: no job is processing", p.ID)
	}
	return j.Cancel(ctx)
}

// CancelJobs transitions every non-terminal job to canceled.
func (p *Printer) CancelJobs(ctx context.Context) {
	for _, j := range p.ActiveJobs() {
		if j.CanCancel() {
			j.Cancel(ctx)
		}
	}
}

// Identify invokes the driver's identify behavior via a device handle
// opened for the purpose, honoring actions (or the printer's configured
// default set if empty).
func (p *Printer) Identify(ctx context.Context, actions []device.IdentifyAction, message string) error {
	if len(actions) == 0 {
		actions = p.DriverData.IdentifyActions
	}
	dev, err := p.devices.Open(ctx, p.DeviceURI, nil)
	if err != nil {
		return err
	}
	defer dev.Close()
	return dev.Identify(ctx, actions, message)
}

// --- status refresh ---------------------------------------------------------

// RefreshStatus invokes the driver's status callback at most once per
// second, and only when the device is idle (no current job). Reported
// supplies replace DriverData.Supplies; reported state reasons are
// discarded and do not appear in printer-state-reasons.
func (p *Printer) RefreshStatus(ctx context.Context, statusFn func(context.Context) ([]Supply, []string, error)) {
	p.mu.Lock()
	idle := p.processing == nil
	stale := time.Since(p.lastStatusRefresh) >= time.Second
	if !idle || !stale || statusFn == nil {
		p.mu.Unlock()
		return
	}
	p.lastStatusRefresh = time.Now()
	p.mu.Unlock()

	supplies, reasons, err := statusFn(ctx)
	if err != nil {
		p.logger.Warn("printer: status callback failed", "printer", p.ID, "error", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if supplies != nil {
		p.DriverData.Supplies = supplies
	}
	_ = reasons // surfaced via StateReasons() below, computed dynamically
}

// StateReasons computes printer-state-reasons: moving-to-paused if
// is_stopped and not yet stopped, paused if stopped with no other reasons,
// otherwise none.
func (p *Printer) StateReasons() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	switch {
	case p.isStopped && p.state != StateStopped:
		return []string{"moving-to-paused"}
	case p.state == StateStopped:
		return []string{"paused"}
	default:
		return []string{"none"}
	}
}

// UpTime returns printer-up-time: seconds since the printer was created.
func (p *Printer) UpTime() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return int(time.Since(p.startTime).Seconds())
}

// Times returns config/state change timestamps for the dynamic
// *-change-time/-date-time attributes.
func (p *Printer) Times() (config, state time.Time) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.configTime, p.stateTime
}

// QueuedJobCount is the count of active (non-terminal) jobs.
func (p *Printer) QueuedJobCount() int {
	return len(p.ActiveJobs())
}

// ImpressionsCompleted returns the running total.
func (p *Printer) ImpressionsCompleted() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.impressionsCompleted
}

// SortedMediaReady returns a defensive copy of the media-ready array.
func (p *Printer) SortedMediaReady() []Media {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Media, len(p.DriverData.MediaReady))
	copy(out, p.DriverData.MediaReady)
	return out
}

// SetAttributes sets location, organization and organizational unit (each
// only when non-empty) under the write lock and bumps config_time. No other
// printer attribute is settable, and no tag or value-count check is made on
// the request values; system's Set-Printer-Attributes handler passes the
// first string value of each of the three attributes straight through.
func (p *Printer) SetAttributes(location, organization, orgUnit string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if location != "" {
		p.Location = location
	}
	if organization != "" {
		p.Organization = organization
	}
	if orgUnit != "" {
		p.OrgUnit = orgUnit
	}
	p.touchConfig()
}
