// Package monitor polls active events for an open booking control and hands
// control to the operator once a booking has started.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/h1v3-io/seatwatch/internal/handover"
	"github.com/h1v3-io/seatwatch/internal/platform"
	"github.com/h1v3-io/seatwatch/internal/site"
	"github.com/h1v3-io/seatwatch/pkg/protocol"
)

// Outcome is the result of one monitoring attempt.
type Outcome int

const (
	NoAction Outcome = iota
	BookingAttempted
	Booked
	Failed
)

func (o Outcome) String() string {
	switch o {
	case NoAction:
		return "no_action"
	case BookingAttempted:
		return "booking_attempted"
	case Booked:
		return "booked"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Registry is the subset of the watchlist the monitor reads and mutates.
type Registry interface {
	Get(id string) (protocol.Event, error)
	MarkBooked(id string) (protocol.Event, error)
}

// Monitor runs booking attempts for active events.
type Monitor struct {
	Registry Registry
	Notifier handover.Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

// MonitorOnce checks ev once using adapter. NoAction is the normal result
// while bookings are closed. Failed leaves the event active for the next
// cycle. The handover notice is sent only when the event moves to booked.
// ev may be stale; its status is re-read before the site is touched.
func (m *Monitor) MonitorOnce(ctx context.Context, ev protocol.Event, adapter site.Adapter) Outcome {
	log := m.logger().With("event", ev.ID, "source", ev.Source)
	if ev.Status != protocol.EventActive {
		return NoAction
	}
	cur, err := m.Registry.Get(ev.ID)
	if err != nil {
		log.Warn("monitor: event lookup failed", "error", err)
		return NoAction
	}
	if cur.Status != protocol.EventActive {
		log.Debug("monitor: event no longer active", "status", cur.Status)
		return NoAction
	}
	ev = cur
	plat, ok := platform.Lookup(ev.Source)
	if !ok {
		log.Error("monitor: unknown source")
		return Failed
	}
	if adapter == nil {
		log.Error("monitor: no site session", "error", site.ErrAdapterUnavailable)
		return Failed
	}

	if err := adapter.Navigate(ctx, ev.URL); err != nil {
		log.Warn("monitor: navigate failed", "url", ev.URL, "error", err)
		return Failed
	}
	ctrl, err := adapter.FindControl(ctx, plat.Book)
	if err != nil {
		log.Warn("monitor: control lookup failed", "error", err)
		return Failed
	}
	if ctrl == nil {
		log.Debug("monitor: booking not open")
		return NoAction
	}
	enabled, err := ctrl.IsEnabled(ctx)
	if err != nil {
		log.Warn("monitor: control state unreadable", "control", ctrl.Label(), "error", err)
		return Failed
	}
	if !enabled {
		log.Debug("monitor: booking control disabled", "control", ctrl.Label())
		return NoAction
	}
	if err := ctrl.Click(ctx); err != nil {
		log.Warn("monitor: click failed", "control", ctrl.Label(), "error", err)
		return Failed
	}
	log.Info("monitor: booking started", "control", ctrl.Label())

	m.selectQuantity(ctx, log, adapter, plat, ev)

	booked, err := m.Registry.MarkBooked(ev.ID)
	if err != nil {
		// Another actor already finished this event; the handover belongs to it.
		log.Warn("monitor: mark booked failed", "error", err)
		return BookingAttempted
	}
	if m.Notifier != nil {
		m.Notifier.Notify(ctx, handover.Notice{Kind: handover.KindHandover, Event: booked, At: m.now()})
	}
	return Booked
}

// selectQuantity picks the ticket count and proceeds where the platform has
// such a step. Every failure here is logged only; the operator completes
// the booking by hand either way.
func (m *Monitor) selectQuantity(ctx context.Context, log *slog.Logger, adapter site.Adapter, plat platform.Platform, ev protocol.Event) {
	if plat.Quantity.Selector == "" || ev.Monitor == nil || ev.Monitor.Quantity <= 0 {
		return
	}
	steps := []site.ControlRule{plat.QuantityRule(ev.Monitor.Quantity), plat.Proceed}
	for _, rule := range steps {
		if len(rule.Labels) == 0 {
			continue
		}
		ctrl, err := adapter.FindControl(ctx, rule)
		if err != nil || ctrl == nil {
			log.Info("monitor: quantity step skipped", "labels", rule.Labels, "error", errOrMissing(err))
			return
		}
		if err := ctrl.Click(ctx); err != nil {
			log.Info("monitor: quantity step failed", "control", ctrl.Label(), "error", err)
			return
		}
	}
	log.Info("monitor: quantity selected", "quantity", ev.Monitor.Quantity)
}

var errControlMissing = errors.New("control not found")

func errOrMissing(err error) error {
	if err != nil {
		return err
	}
	return errControlMissing
}

func (m *Monitor) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func (m *Monitor) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}
