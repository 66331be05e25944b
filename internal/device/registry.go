// Package device arbitrates exclusive ownership of audio devices.
//
// A microphone or a speaker can only serve one conversation at a time. When
// a second controller acquires a device that is already held, the previous
// owner is preempted: its preempt callback runs and it is expected to cancel
// whatever it was doing with the device. Contention is logged and counted,
// never silently ignored.
package device

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrWong99/saathi/internal/observe"
)

// Well-known device identifiers for the local console.
const (
	ConsoleMic     = "console:mic"
	ConsoleSpeaker = "console:speaker"
)

// Registry tracks the current owner of each device.
//
// All methods are safe for concurrent use.
type Registry struct {
	metrics *observe.Metrics

	mu      sync.Mutex
	holders map[string]*Lease
}

// Option is a functional option for [NewRegistry].
type Option func(*Registry)

// WithMetrics records contention on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{holders: make(map[string]*Lease)}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Lease is one owner's hold on a device.
type Lease struct {
	reg     *Registry
	device  string
	owner   string
	preempt func()
}

// Device returns the device identifier.
func (l *Lease) Device() string { return l.device }

// Owner returns the owner identifier.
func (l *Lease) Owner() string { return l.owner }

// Acquire makes owner the holder of device and returns the lease. If a
// different owner held the device, its preempt callback is invoked after the
// registry lock is released. Re-acquiring by the current owner replaces the
// lease without preemption. preempt may be nil.
func (r *Registry) Acquire(device, owner string, preempt func()) *Lease {
	l := &Lease{reg: r, device: device, owner: owner, preempt: preempt}

	r.mu.Lock()
	prev := r.holders[device]
	r.holders[device] = l
	r.mu.Unlock()

	if prev != nil && prev.owner != owner {
		slog.Warn("device contention, preempting previous owner",
			"device", device,
			"previous_owner", prev.owner,
			"owner", owner,
		)
		r.metrics.RecordDeviceContention(context.Background(), device)
		if prev.preempt != nil {
			prev.preempt()
		}
	}
	return l
}

// Release gives up the lease. It is a no-op when the lease has already been
// released or superseded. Safe to call on a nil lease.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	r := l.reg
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.holders[l.device] == l {
		delete(r.holders, l.device)
	}
}

// Held reports whether l is still the device's current lease. It is false
// once the lease was released or another owner acquired the device.
func (l *Lease) Held() bool {
	if l == nil {
		return false
	}
	r := l.reg
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.holders[l.device] == l
}

// Holder returns the current owner of device, or "" when it is free.
func (r *Registry) Holder(device string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l := r.holders[device]; l != nil {
		return l.owner
	}
	return ""
}
