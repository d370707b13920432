package job

import (
	"context"
	"log/slog"
)

// Driver is the capability set a printer application registers for its
// printer's print/status/identify hook points (design notes: "model as an
// explicit interface, not raw function pointers").
//
// Print is invoked with no owning lock held; it receives only what it needs
// (the job and an open device handle) and must poll canceling between page
// boundaries to honor cooperative cancellation.
type Driver interface {
	Print(ctx context.Context, j *Job, dev Device) (ok bool, err error)
}

// Device is the minimal surface job.Pipeline needs from device.Device,
// declared locally so this package does not import device and create a
// needless dependency edge; every device.Device satisfies it.
type Device interface {
	Write(ctx context.Context, buf []byte) (int, error)
	Close() error
}

// Queue is the ordered view of one printer's jobs that the pipeline reads:
// a live insertion-ordered set (active_jobs) plus a capped retained history
// (completed_jobs). Printer provides the concrete implementation; Pipeline
// only needs these four operations to run the processing loop.
type Queue interface {
	// NextPending returns the lowest-id pending job, or nil if none.
	NextPending() *Job
	// OpenDevice opens the printer's configured device for one job run.
	OpenDevice(ctx context.Context) (Device, error)
	// Driver returns the printer's driver callback set.
	Driver() Driver
	// Finish records a job's terminal transition: moves it from
	// active_jobs to completed_jobs (bounded, oldest evicted) and bumps
	// impressions_completed/state_time.
	Finish(j *Job, impressions int)
}

// Pipeline runs the single per-printer processing loop (design: "one
// processing worker per printer ... parked between jobs on a condition
// variable guarded by the printer lock" — implemented here as a goroutine
// parked on a channel instead of a raw condvar, the idiomatic Go
// equivalent).
type Pipeline struct {
	q      Queue
	wake   chan struct{}
	done   chan struct{}
	logger *slog.Logger
}

func NewPipeline(q Queue, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{q: q, wake: make(chan struct{}, 1), done: make(chan struct{}), logger: logger}
}

// Wake notifies the pipeline that a new job may be pending. Safe to call
// any number of times; the channel is buffered so a burst of admissions
// coalesces into one wake.
func (p *Pipeline) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Stop asks Run's loop to exit once the current job (if any) finishes.
func (p *Pipeline) Stop() { close(p.done) }

// Run drains pending jobs in id order until Stop is called. It is meant to
// be launched once per printer in its own goroutine.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-p.done:
			return
		default:
		}

		j := p.q.NextPending()
		if j == nil {
			select {
			case <-p.wake:
				continue
			case <-p.done:
				return
			case <-ctx.Done():
				return
			}
		}

		p.runOne(ctx, j)
	}
}

func (p *Pipeline) runOne(ctx context.Context, j *Job) {
	if err := j.StartProcessing(ctx); err != nil {
		p.logger.Error("job: failed to enter processing", "job", j.ID, "error", err)
		return
	}

	dev, err := p.q.OpenDevice(ctx)
	if err != nil {
		p.logger.Error("job: failed to open device", "job", j.ID, "error", err)
		j.Abort(ctx)
		p.q.Finish(j, j.ImpressionsCompleted)
		return
	}
	defer dev.Close()

	ok, err := p.q.Driver().Print(ctx, j, dev)
	if err != nil {
		p.logger.Warn("job: driver print callback returned an error", "job", j.ID, "error", err)
	}

	switch {
	case j.Canceling():
		j.Cancel(ctx)
	case ok:
		j.Complete(ctx)
		j.ImpressionsCompleted = j.ImpressionsRequested
		if j.ImpressionsCompleted == 0 {
			j.ImpressionsCompleted = 1
		}
	default:
		j.Abort(ctx)
	}

	p.q.Finish(j, j.ImpressionsCompleted)
}
