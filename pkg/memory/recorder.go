package memory

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/saathi/pkg/types"
)

const defaultQueueSize = 64

// Recorder copies finalized turns into a [MessageStore] on its own
// goroutine. Turn never blocks; when the queue is full the turn is dropped,
// logged and counted.
type Recorder struct {
	store   MessageStore
	queue   chan Record
	dropped metric.Int64Counter
}

// RecorderOption is a functional option for [NewRecorder].
type RecorderOption func(*Recorder)

// WithDropCounter counts dropped turns on c.
func WithDropCounter(c metric.Int64Counter) RecorderOption {
	return func(r *Recorder) { r.dropped = c }
}

// NewRecorder returns a Recorder writing to store. Call Run to start it.
func NewRecorder(store MessageStore, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, queue: make(chan Record, defaultQueueSize), dropped: noop.Int64Counter{}}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Turn queues t for session. It reports whether the turn was queued.
func (r *Recorder) Turn(session string, t types.Turn) bool {
	rec := Record{Session: session, User: SpeakerFor(t.Role), Text: t.Text, Timestamp: time.Now()}
	select {
	case r.queue <- rec:
		return true
	default:
		slog.Warn("message recorder queue full, dropping turn", "session", session, "sequence", t.Sequence)
		r.dropped.Add(context.Background(), 1)
		return false
	}
}

// Run writes queued records until ctx is cancelled, then flushes what is
// already queued with a short grace period.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case rec := <-r.queue:
			r.write(ctx, rec)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			for {
				select {
				case rec := <-r.queue:
					r.write(flushCtx, rec)
				default:
					return nil
				}
			}
		}
	}
}

func (r *Recorder) write(ctx context.Context, rec Record) {
	if _, err := r.store.Append(ctx, rec); err != nil {
		slog.Warn("failed to record message", "session", rec.Session, "err", err)
	}
}
