// Package stream delivers a computed evidence bundle as an ordered sequence
// of events: one summary event per bullet followed by exactly one complete
// event. Streaming never changes which bullets are produced or their order.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bimmerbailey/evident/internal/evidence"
	"github.com/bimmerbailey/evident/internal/rejection"
)

// Phase names an event on the wire.
type Phase string

const (
	PhaseSummary  Phase = "summary"
	PhaseComplete Phase = "complete"
	PhaseError    Phase = "error"
)

// Event is one atomic unit of stream output.
type Event struct {
	Phase  Phase            `json:"phase"`
	Bullet *evidence.Bullet `json:"bullet,omitempty"`
	Stats  *evidence.Stats  `json:"evidence_stats,omitempty"`
	Error  *rejection.Error `json:"error,omitempty"`
}

// Sink receives events in order. Send must write the whole event or fail.
type Sink interface {
	Send(Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) error

// Send implements Sink.
func (f SinkFunc) Send(e Event) error { return f(e) }

// ErrAlreadyEmitted is returned when an Emitter is used twice.
var ErrAlreadyEmitted = errors.New("stream already emitted")

type state int

const (
	stateIdle state = iota
	stateSummary
	stateComplete
	stateAborted
)

// Emitter replays a bundle through a Sink. It moves from idle through
// summary to complete and cannot be reused.
type Emitter struct {
	sink  Sink
	delay time.Duration

	mu    sync.Mutex
	state state
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithDelay pauses between events.
func WithDelay(d time.Duration) Option {
	return func(e *Emitter) {
		if d > 0 {
			e.delay = d
		}
	}
}

// NewEmitter creates an Emitter writing to sink.
func NewEmitter(sink Sink, opts ...Option) *Emitter {
	e := &Emitter{sink: sink}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Emitter) begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateIdle {
		return ErrAlreadyEmitted
	}
	e.state = stateSummary
	return nil
}

func (e *Emitter) finish(s state) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Emit sends one summary event per bullet and then the complete event.
// If ctx is canceled, emission stops after the event in flight and the
// complete event is not sent.
func (e *Emitter) Emit(ctx context.Context, b *evidence.Bundle) error {
	if err := e.begin(); err != nil {
		return err
	}

	for i := range b.Bullets {
		if i > 0 {
			if err := e.pause(ctx); err != nil {
				e.finish(stateAborted)
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			e.finish(stateAborted)
			return err
		}
		if err := e.sink.Send(Event{Phase: PhaseSummary, Bullet: &b.Bullets[i]}); err != nil {
			e.finish(stateAborted)
			return fmt.Errorf("send summary event %d: %w", i, err)
		}
	}

	if len(b.Bullets) > 0 {
		if err := e.pause(ctx); err != nil {
			e.finish(stateAborted)
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		e.finish(stateAborted)
		return err
	}
	stats := b.Stats
	if err := e.sink.Send(Event{Phase: PhaseComplete, Stats: &stats}); err != nil {
		e.finish(stateAborted)
		return fmt.Errorf("send complete event: %w", err)
	}
	e.finish(stateComplete)
	return nil
}

// Reject sends a single error event in place of the whole stream. It is
// only valid before any summary event.
func (e *Emitter) Reject(rej *rejection.Error) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.finish(stateAborted)
	if err := e.sink.Send(Event{Phase: PhaseError, Error: rej}); err != nil {
		return fmt.Errorf("send error event: %w", err)
	}
	return nil
}

func (e *Emitter) pause(ctx context.Context) error {
	if e.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(e.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
