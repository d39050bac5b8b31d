// Package handover delivers operator notices: the one-shot "manual action
// required" signal when a booking opens, and optional discovery alerts.
package handover

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/h1v3-io/seatwatch/internal/connector"
	"github.com/h1v3-io/seatwatch/pkg/protocol"
)

// Kind distinguishes notice types.
type Kind string

const (
	KindHandover   Kind = "handover"
	KindDiscovered Kind = "discovered"
)

// Notice is a message for the operator about one event.
type Notice struct {
	Kind  Kind
	Event protocol.Event
	At    time.Time
}

// Title returns a short headline for the notice.
func (n Notice) Title() string {
	switch n.Kind {
	case KindHandover:
		return "ACTION REQUIRED"
	case KindDiscovered:
		return "Found match"
	default:
		return string(n.Kind)
	}
}

// Markdown renders the notice body.
func (n Notice) Markdown() string {
	var b strings.Builder
	switch n.Kind {
	case KindHandover:
		fmt.Fprintf(&b, "**%s**: tickets are open for *%s*.\n", n.Title(), n.Event.Title)
		b.WriteString("Please select seats and pay.\n")
		if m := n.Event.Monitor; m != nil {
			fmt.Fprintf(&b, "Quantity: %d", m.Quantity)
			if m.MaxPrice > 0 {
				fmt.Fprintf(&b, ", max price: %d", m.MaxPrice)
			}
			b.WriteString("\n")
		}
	default:
		fmt.Fprintf(&b, "**%s**: *%s* (%s)\n", n.Title(), n.Event.Title, n.Event.Source)
	}
	fmt.Fprintf(&b, "[Open event page](%s)", n.Event.URL)
	return b.String()
}

// Notifier delivers notices.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice) error

func (f NotifierFunc) Notify(ctx context.Context, n Notice) error { return f(ctx, n) }

// Fanout sends each notice to every notifier. Delivery failures are logged,
// never returned, so a broken channel cannot affect monitoring.
type Fanout struct {
	mu        sync.RWMutex
	notifiers []Notifier
	logger    *slog.Logger
}

// NewFanout creates an empty fan-out.
func NewFanout(logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{logger: logger}
}

// Add registers a notifier.
func (f *Fanout) Add(n Notifier) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifiers = append(f.notifiers, n)
}

// Len returns the number of registered notifiers.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.notifiers)
}

func (f *Fanout) Notify(ctx context.Context, n Notice) error {
	f.mu.RLock()
	targets := append([]Notifier(nil), f.notifiers...)
	f.mu.RUnlock()

	if n.Kind == KindHandover {
		f.logger.Warn("ACTION REQUIRED: select seats and pay", "event", n.Event.ID, "title", n.Event.Title, "url", n.Event.URL)
	} else {
		f.logger.Info("notice", "kind", n.Kind, "event", n.Event.ID, "title", n.Event.Title)
	}
	for _, t := range targets {
		if err := t.Notify(ctx, n); err != nil {
			f.logger.Error("notice delivery failed", "kind", n.Kind, "event", n.Event.ID, "error", err)
		}
	}
	return nil
}

// ConnectorNotifier sends notices through a messaging connector.
type ConnectorNotifier struct {
	Conn   connector.Connector
	ChatID string
	// Kinds limits which notices are sent; empty sends all.
	Kinds []Kind
}

func (c *ConnectorNotifier) Notify(ctx context.Context, n Notice) error {
	if len(c.Kinds) > 0 && !containsKind(c.Kinds, n.Kind) {
		return nil
	}
	if err := c.Conn.Send(ctx, connector.OutboundMessage{ChatID: c.ChatID, Content: n.Markdown()}); err != nil {
		return fmt.Errorf("%s: %w", c.Conn.Name(), err)
	}
	return nil
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, v := range kinds {
		if v == k {
			return true
		}
	}
	return false
}

// Recorder keeps handover records in memory for snapshots.
type Recorder struct {
	mu      sync.Mutex
	records []protocol.Handover
}

func (r *Recorder) Notify(_ context.Context, n Notice) error {
	if n.Kind != KindHandover {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, protocol.Handover{
		EventID: n.Event.ID,
		Title:   n.Event.Title,
		URL:     n.Event.URL,
		Source:  n.Event.Source,
		At:      n.At,
	})
	return nil
}

// List returns recorded handovers, oldest first.
func (r *Recorder) List() []protocol.Handover {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.Handover, len(r.records))
	copy(out, r.records)
	return out
}
