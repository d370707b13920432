// Package device provides the uniform open/write/status/identify/close
// interface over pluggable transports that driver callbacks use to talk to
// real hardware. Transports are selected by the URI scheme, matched by
// longest registered prefix, and may be supplied by the core (file, socket,
// usb, bt) or registered by a host application under a custom scheme.
package device

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
)

// Kind classifies a device error so callers can react programmatically
// without parsing message text.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindIO
	KindTimeout
	KindPermission
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not-found"
	case KindIO:
		return "io"
	case KindTimeout:
		return "timeout"
	case KindPermission:
		return "permission"
	default:
		return "unknown"
	}
}

// Error is the error type every transport and the registry return.
type Error struct {
	Kind Kind
	URI  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("device %s: %s", e.URI, e.Kind)
	}
	return fmt.Sprintf("device %s: %s: %v", e.URI, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, uri string, err error) error {
	return &Error{Kind: kind, URI: uri, Err: err}
}

// StateReasons is the bitset of printer-state-reasons keywords a device's
// status callback may report (media-empty, media-jam, cover-open, ...).
// Represented as a set of keyword strings rather than a numeric bitset
// because the IPP wire form is itself a keyword list.
type StateReasons map[string]struct{}

func NewStateReasons(reasons ...string) StateReasons {
	sr := make(StateReasons, len(reasons))
	for _, r := range reasons {
		sr[r] = struct{}{}
	}
	return sr
}

func (sr StateReasons) Strings() []string {
	out := make([]string, 0, len(sr))
	for r := range sr {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// IdentifyAction names one of the actions a printer can take in response to
// Identify-Printer (display, flash, sound, speak).
type IdentifyAction string

const (
	IdentifyDisplay IdentifyAction = "display"
	IdentifyFlash   IdentifyAction = "flash"
	IdentifySound   IdentifyAction = "sound"
	IdentifySpeak   IdentifyAction = "speak"
)

// Device is the open handle a driver callback uses to talk to hardware. It
// is not safe for concurrent use by more than one goroutine at a time; the
// job pipeline guarantees at most one processing task per printer holds a
// device open.
type Device interface {
	// Write sends buf to the device, returning the number of bytes
	// accepted.
	Write(ctx context.Context, buf []byte) (int, error)
	// ReadStatus reports the current device-reported state reasons.
	ReadStatus(ctx context.Context) (StateReasons, error)
	// Identify asks the device to perform one or more identify actions,
	// optionally speaking/displaying message.
	Identify(ctx context.Context, actions []IdentifyAction, message string) error
	// Close releases the underlying transport (socket, file handle,
	// USB/BLE connection, ...).
	Close() error
}

// Transport opens a Device for a URI whose scheme it has been registered
// against.
type Transport interface {
	// Scheme returns the URI scheme this transport handles, e.g. "socket".
	Scheme() string
	// Open connects to the device addressed by uri. options are the
	// parsed query parameters from the URI.
	Open(ctx context.Context, uri string, options url.Values) (Device, error)
}

// Registry dispatches Open calls to the Transport registered for a URI's
// scheme, selected by longest-prefix match against registered schemes (so a
// more specific registration such as "usb-quirk" wins over a plain "usb").
type Registry struct {
	mu         sync.RWMutex
	transports map[string]Transport
}

func NewRegistry() *Registry {
	return &Registry{transports: make(map[string]Transport)}
}

// Register adds (or replaces) the transport for its own Scheme().
func (r *Registry) Register(t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[t.Scheme()] = t
}

func (r *Registry) lookup(scheme string) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, ok := r.transports[scheme]; ok {
		return t, true
	}
	var best Transport
	bestLen := -1
	for s, t := range r.transports {
		if strings.HasPrefix(scheme, s) && len(s) > bestLen {
			best, bestLen = t, len(s)
		}
	}
	return best, best != nil
}

// RetryPolicy configures Open's backoff retry of transient connection
// failures (KindIO/KindTimeout). A nil *RetryPolicy disables retry.
type RetryPolicy struct {
	MaxElapsed   func() backoff.BackOff
}

// DefaultRetryPolicy retries with exponential backoff capped at 30s total.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{MaxElapsed: func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = 30 * time.Second
		return b
	}}
}

// Open parses uri, finds the registered transport for its scheme, and opens
// it, retrying transient failures per policy (nil disables retry).
func (r *Registry) Open(ctx context.Context, uri string, policy *RetryPolicy) (Device, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, newError(KindNotFound, uri, err)
	}
	t, ok := r.lookup(u.Scheme)
	if !ok {
		return nil, newError(KindNotFound, uri, fmt.Errorf("no transport registered for scheme %q", u.Scheme))
	}

	if policy == nil {
		return t.Open(ctx, uri, u.Query())
	}

	var dev Device
	operation := func() error {
		d, err := t.Open(ctx, uri, u.Query())
		if err != nil {
			if derr, ok := err.(*Error); ok && (derr.Kind == KindNotFound || derr.Kind == KindPermission) {
				return backoff.Permanent(err)
			}
			return err
		}
		dev = d
		return nil
	}
	if err := backoff.Retry(operation, policy.MaxElapsed()); err != nil {
		return nil, err
	}
	return dev, nil
}
