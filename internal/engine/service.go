package engine

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/h1v3-io/seatwatch/internal/probe"
	"github.com/h1v3-io/seatwatch/pkg/protocol"
)

// Snapshot returns a consistent copy of the engine state.
func (e *Engine) Snapshot() protocol.Snapshot {
	return protocol.Snapshot{
		Running:   e.Running(),
		Criteria:  e.registry.Criteria(),
		Events:    e.registry.Snapshot(),
		Handovers: e.handovers.List(),
		RecentLog: e.logs.Lines(e.opts.LogLines),
	}
}

// Events returns all tracked events in discovery order.
func (e *Engine) Events() []protocol.Event {
	return e.registry.Snapshot()
}

// Event returns one event.
func (e *Engine) Event(id string) (protocol.Event, error) {
	return e.registry.Get(id)
}

// Criteria returns the current search criteria.
func (e *Engine) Criteria() protocol.SearchCriteria {
	return e.registry.Criteria()
}

// UpdateCriteria replaces the search criteria used from the next discovery
// phase on and returns the normalized value.
func (e *Engine) UpdateCriteria(c protocol.SearchCriteria) protocol.SearchCriteria {
	return e.registry.SetCriteria(c)
}

// Activate starts monitoring a pending event. A quantity <= 0 uses the
// criteria ticket count.
func (e *Engine) Activate(id string, quantity, maxPrice int) (protocol.Event, error) {
	if quantity <= 0 {
		quantity = e.registry.Criteria().TicketCount
	}
	return e.registry.Activate(id, quantity, maxPrice)
}

// Probe refreshes categories for id in the background. Lookup errors and
// already-booked events are reported synchronously; probe failures only
// reach the log.
func (e *Engine) Probe(ctx context.Context, id string) error {
	ev, err := e.registry.Get(id)
	if err != nil {
		return err
	}
	if ev.Status == protocol.EventBooked {
		return fmt.Errorf("%s: %w", id, probe.ErrEventBooked)
	}

	e.mu.Lock()
	if e.probing[id] {
		e.mu.Unlock()
		return fmt.Errorf("%s: %w", id, ErrProbeInFlight)
	}
	e.probing[id] = true
	e.probes.Add(1)
	e.mu.Unlock()

	// Callers are usually request handlers; the probe outlives them and is
	// bounded by the prober timeout instead.
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer e.probes.Done()
		defer func() {
			e.mu.Lock()
			delete(e.probing, id)
			e.mu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("probe panic recovered", "event", id, "panic", r, "stack", string(debug.Stack()))
			}
		}()

		// Queued probes wait for a free session slot.
		if err := e.slots.Acquire(ctx, 1); err != nil {
			return
		}
		defer e.slots.Release(1)

		cats, err := e.prober.Probe(ctx, id)
		if err != nil {
			e.logger.Warn("probe failed", "event", id, "error", err)
			return
		}
		e.logger.Info("probe complete", "event", id, "categories", len(cats))
	}()
	return nil
}

// ProbeNow refreshes categories for id and waits for the result.
func (e *Engine) ProbeNow(ctx context.Context, id string) ([]protocol.Category, error) {
	return e.prober.Probe(ctx, id)
}
