// Package job implements the per-job state machine, document intake,
// admission validation, and driver-callback invocation pipeline.
//
// A Job is owned by exactly one printer; printer is never referenced
// directly here (only by its accessors passed in at call time) to keep the
// owner chain System → Printer → Job a one-way lookup rather than a pointer
// cycle, per the design notes.
package job

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/OpenPrinting/goipp"
	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/printcore/pappl/attr"
)

// State is the job-state enum, numerically identical to the IPP job-state
// values (RFC 8011 §5.3.7) so that ordering comparisons like "state <
// canceled" read naturally and map directly onto the wire value.
type State int32

const (
	StatePending    State = 3
	StateHeld       State = 4
	StateProcessing State = 5
	StateStopped    State = 6
	StateCanceled   State = 7
	StateAborted    State = 8
	StateCompleted  State = 9
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateHeld:
		return "held"
	case StateProcessing:
		return "processing"
	case StateStopped:
		return "stopped"
	case StateCanceled:
		return "canceled"
	case StateAborted:
		return "aborted"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// IsActive reports whether a job in this state belongs in a printer's
// active_jobs list: state < canceled and >= pending (invariant 2).
func (s State) IsActive() bool { return s >= StatePending && s < StateCanceled }

// IsTerminal reports whether the state is one of the three terminal states.
func (s State) IsTerminal() bool {
	return s == StateCanceled || s == StateAborted || s == StateCompleted
}

// Reason names one member of printer-state-reasons-shaped job-state-reasons
// keyword set (job-incoming, job-data-insufficient, job-canceled-by-user,
// processing-to-stop-point, ...).
type Reason string

const (
	ReasonNone                  Reason = "none"
	ReasonJobIncoming           Reason = "job-incoming"
	ReasonJobDataInsufficient   Reason = "job-data-insufficient"
	ReasonDocumentFormatError   Reason = "document-format-error"
	ReasonProcessingToStopPoint Reason = "processing-to-stop-point"
	ReasonJobCanceledByUser     Reason = "job-canceled-by-user"
	ReasonJobCompletedSuccess   Reason = "job-completed-successfully"
	ReasonAbortedBySystem       Reason = "aborted-by-system"
	ReasonPrinterStopped        Reason = "printer-stopped"
)

// Events driving the job's state machine, named after the IPP/operator
// action that fires them.
const (
	evtHold    = "hold"
	evtRelease = "release"
	evtProcess = "process"
	evtStop    = "stop"
	evtResume  = "resume"
	evtComplete = "complete"
	evtAbort   = "abort"
	evtCancel  = "cancel"
)

var events = []fsm.EventDesc{
	{Name: evtHold, Src: []string{StatePending.String()}, Dst: StateHeld.String()},
	{Name: evtRelease, Src: []string{StateHeld.String()}, Dst: StatePending.String()},
	{Name: evtProcess, Src: []string{StatePending.String()}, Dst: StateProcessing.String()},
	{Name: evtStop, Src: []string{StateProcessing.String()}, Dst: StateStopped.String()},
	{Name: evtResume, Src: []string{StateStopped.String()}, Dst: StateProcessing.String()},
	{Name: evtComplete, Src: []string{StateProcessing.String()}, Dst: StateCompleted.String()},
	{Name: evtAbort, Src: []string{StateProcessing.String(), StateStopped.String()}, Dst: StateAborted.String()},
	{
		Name: evtCancel,
		Src: []string{
			StatePending.String(), StateHeld.String(),
			StateProcessing.String(), StateStopped.String(),
		},
		Dst: StateCanceled.String(),
	},
}

// Job is one print job, owned by a printer. Its fields are mutated only
// under the owning printer's write lock; Job itself holds no lock.
type Job struct {
	ID       int
	PrinterID int
	UUID     uuid.UUID

	Username string
	Name     string

	// Attributes is the subset of submitted job-template attributes
	// pertinent to processing (copies, media-col, print-color-mode,
	// orientation-requested, print-quality, print-scaling, sides,
	// print-darkness, print-speed, page-ranges, ...).
	Attributes *attr.Collection

	DocumentFormat string
	DocumentPath   string

	StateReasons map[Reason]struct{}

	Created   time.Time
	Processed time.Time
	Completed time.Time

	ImpressionsRequested int
	ImpressionsCompleted int

	// canceling is polled cooperatively by driver callbacks between page
	// boundaries; no signals, no forced unwinding.
	canceling atomic.Bool

	sm *fsm.FSM
}

// New constructs a job in the pending state with job-incoming as its sole
// reason, ready to be appended to a printer's active_jobs/all_jobs.
func New(id, printerID int, username, name string, attrs *attr.Collection, format string) *Job {
	j := &Job{
		ID:             id,
		PrinterID:      printerID,
		UUID:           uuid.New(),
		Username:       username,
		Name:           name,
		Attributes:     attrs,
		DocumentFormat: format,
		StateReasons:   map[Reason]struct{}{ReasonJobIncoming: {}},
		Created:        time.Now(),
	}
	j.sm = fsm.NewFSM(StatePending.String(), events, fsm.Callbacks{
		"enter_state": func(ctx context.Context, e *fsm.Event) {
			j.onEnter(State(stateFromName(e.Dst)))
		},
	})
	return j
}

func stateFromName(name string) int32 {
	switch name {
	case "pending":
		return int32(StatePending)
	case "held":
		return int32(StateHeld)
	case "processing":
		return int32(StateProcessing)
	case "stopped":
		return int32(StateStopped)
	case "canceled":
		return int32(StateCanceled)
	case "aborted":
		return int32(StateAborted)
	case "completed":
		return int32(StateCompleted)
	default:
		return int32(StatePending)
	}
}

func (j *Job) onEnter(s State) {
	switch s {
	case StateProcessing:
		j.Processed = time.Now()
		delete(j.StateReasons, ReasonJobIncoming)
	case StateCompleted:
		j.Completed = time.Now()
		j.setReason(ReasonJobCompletedSuccess)
	case StateCanceled:
		j.Completed = time.Now()
		j.setReason(ReasonJobCanceledByUser)
	case StateAborted:
		j.Completed = time.Now()
		j.setReason(ReasonAbortedBySystem)
	}
}

func (j *Job) setReason(r Reason) {
	j.StateReasons = map[Reason]struct{}{r: {}}
}

// State returns the job's current state.
func (j *Job) State() State {
	return State(stateFromName(j.sm.Current()))
}

// Reasons returns the current state-reason keywords, sorted.
func (j *Job) Reasons() []string {
	out := make([]string, 0, len(j.StateReasons))
	for r := range j.StateReasons {
		out = append(out, string(r))
	}
	sort.Strings(out)
	return out
}

func (j *Job) fire(ctx context.Context, event string) error {
	if err := j.sm.Event(ctx, event); err != nil {
		return fmt.Errorf("job %d: %s: %w", j.ID, event, err)
	}
	return nil
}

// Hold transitions pending→held (operator or job-hold-until action).
func (j *Job) Hold(ctx context.Context) error { return j.fire(ctx, evtHold) }

// Release transitions held→pending.
func (j *Job) Release(ctx context.Context) error { return j.fire(ctx, evtRelease) }

// StartProcessing transitions pending→processing; called by the printer's
// processing worker when it selects this job.
func (j *Job) StartProcessing(ctx context.Context) error { return j.fire(ctx, evtProcess) }

// Stop transitions processing→stopped (driver requested a pause, e.g. out
// of media) without being a cancel.
func (j *Job) Stop(ctx context.Context) error { return j.fire(ctx, evtStop) }

// Resume transitions stopped→processing.
func (j *Job) Resume(ctx context.Context) error { return j.fire(ctx, evtResume) }

// Complete transitions processing→completed.
func (j *Job) Complete(ctx context.Context) error { return j.fire(ctx, evtComplete) }

// Abort transitions processing or stopped→aborted (driver callback failure).
func (j *Job) Abort(ctx context.Context) error { return j.fire(ctx, evtAbort) }

// Cancel transitions any non-terminal state→canceled.
func (j *Job) Cancel(ctx context.Context) error {
	j.canceling.Store(true)
	return j.fire(ctx, evtCancel)
}

// RequestCancel sets the cooperative cancel flag without forcing an
// immediate state transition; the processing worker observes it, and the
// driver callback is expected to poll it between page boundaries.
func (j *Job) RequestCancel() { j.canceling.Store(true) }

// Canceling reports whether a cancel has been requested for this job.
func (j *Job) Canceling() bool { return j.canceling.Load() }

// CanTransition reports whether event would currently succeed, without
// attempting it (used by Cancel-Current-Job/-Jobs to decide "not-possible"
// versus dispatching the transition).
func (j *Job) CanTransition(event string) bool {
	return j.sm.Can(event)
}

// CanCancel reports whether Cancel would currently succeed.
func (j *Job) CanCancel() bool { return j.sm.Can(evtCancel) }

// ToAttributes renders the job's reportable attributes (job-id, job-uri,
// job-state, job-printer-uri, job-name, job-originating-user-name,
// job-impressions-completed, job-state-reasons) into dest, honoring filter.
func (j *Job) ToAttributes(dest *attr.Collection, filter attr.RequestedAttributes) {
	add := func(tag goipp.Tag, name string, values ...attr.Value) {
		if filter.Matches(name) {
			dest.Set(tag, name, values...)
		}
	}
	add(goipp.TagInteger, "job-id", goipp.Integer(j.ID))
	add(goipp.TagURI, "job-uri", goipp.String(fmt.Sprintf("ipp://localhost/printers/%d/jobs/%d", j.PrinterID, j.ID)))
	add(goipp.TagEnum, "job-state", goipp.Integer(j.State()))
	add(goipp.TagURI, "job-printer-uri", goipp.String(fmt.Sprintf("ipp://localhost/printers/%d", j.PrinterID)))
	add(goipp.TagName, "job-name", goipp.String(j.Name))
	add(goipp.TagName, "job-originating-user-name", goipp.String(j.Username))
	add(goipp.TagInteger, "job-impressions-completed", goipp.Integer(j.ImpressionsCompleted))

	reasons := j.Reasons()
	vals := make([]attr.Value, 0, len(reasons))
	for _, r := range reasons {
		vals = append(vals, goipp.String(r))
	}
	if len(vals) == 0 {
		vals = append(vals, goipp.String(string(ReasonNone)))
	}
	if filter.Matches("job-state-reasons") {
		dest.Set(goipp.TagKeyword, "job-state-reasons", vals...)
	}
}
