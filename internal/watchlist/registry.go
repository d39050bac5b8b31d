// Package watchlist is the shared store of tracked events. Every mutation of
// event data goes through the Registry.
package watchlist

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/h1v3-io/seatwatch/pkg/protocol"
)

// Journal receives a copy of each event after it changes. It is called
// outside the registry lock, one change at a time, in mutation order.
type Journal interface {
	Record(ev protocol.Event, change protocol.EventChange) error
}

// Candidate is a matched listing about to be registered.
type Candidate struct {
	Title  string
	URL    string
	Source protocol.Source
}

// Registry holds events keyed by ID with a URL index for deduplication.
type Registry struct {
	mu       sync.RWMutex
	events   map[string]*protocol.Event
	byURL    map[string]string // url → id
	order    []string          // insertion order
	criteria protocol.SearchCriteria
	journal  Journal
	logger   *slog.Logger
	now      func() time.Time

	pending  []pendingChange // queued for the journal, guarded by mu
	flushing bool
}

type pendingChange struct {
	ev     protocol.Event
	change protocol.EventChange
}

// New creates an empty registry. journal may be nil.
func New(journal Journal, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		events:   make(map[string]*protocol.Event),
		byURL:    make(map[string]string),
		criteria: protocol.SearchCriteria{}.Normalized(),
		journal:  journal,
		logger:   logger,
		now:      time.Now,
	}
}

// UpsertIfNew registers c unless an event with the same URL exists.
// It returns the stored event and whether it was created by this call.
func (r *Registry) UpsertIfNew(c Candidate) (protocol.Event, bool, error) {
	if c.Title == "" || c.URL == "" {
		return protocol.Event{}, false, ErrInvalidCandidate
	}

	r.mu.Lock()
	if id, ok := r.byURL[c.URL]; ok {
		existing := r.events[id].Clone()
		r.mu.Unlock()
		return existing, false, nil
	}
	now := r.now()
	ev := &protocol.Event{
		ID:           generateID(now),
		Title:        c.Title,
		URL:          c.URL,
		Source:       c.Source,
		Status:       protocol.EventPending,
		Venue:        protocol.UnknownField,
		Date:         protocol.UnknownField,
		Categories:   []protocol.Category{},
		DiscoveredAt: now,
	}
	r.events[ev.ID] = ev
	r.byURL[ev.URL] = ev.ID
	r.order = append(r.order, ev.ID)
	out := ev.Clone()
	r.enqueue(out, protocol.ChangeDiscovered)
	r.mu.Unlock()

	r.logger.Info("event discovered", "event", out.ID, "source", out.Source, "title", out.Title)
	r.flush()
	return out, true, nil
}

// Get returns a copy of the event with the given ID.
func (r *Registry) Get(id string) (protocol.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.events[id]
	if !ok {
		return protocol.Event{}, fmt.Errorf("watchlist: %q: %w", id, ErrNotFound)
	}
	return ev.Clone(), nil
}

// UpdateCategories replaces the event's categories. It is a no-op for
// booked events.
func (r *Registry) UpdateCategories(id string, cats []protocol.Category) error {
	r.mu.Lock()
	ev, ok := r.events[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("watchlist: update categories %q: %w", id, ErrNotFound)
	}
	if ev.Status == protocol.EventBooked {
		r.mu.Unlock()
		r.logger.Debug("event booked, categories left unchanged", "event", id)
		return nil
	}
	replaced := make([]protocol.Category, len(cats))
	copy(replaced, cats)
	ev.Categories = replaced
	now := r.now()
	ev.ProbedAt = &now
	out := ev.Clone()
	r.enqueue(out, protocol.ChangeCategories)
	r.mu.Unlock()

	r.logger.Info("categories updated", "event", id, "count", len(cats))
	r.flush()
	return nil
}

// Activate moves a pending event to active with the given monitor settings.
// Events that are not pending fail with ErrInvalidTransition whatever the
// arguments.
func (r *Registry) Activate(id string, quantity, maxPrice int) (protocol.Event, error) {
	r.mu.Lock()
	ev, ok := r.events[id]
	if !ok {
		r.mu.Unlock()
		return protocol.Event{}, fmt.Errorf("watchlist: activate %q: %w", id, ErrNotFound)
	}
	if ev.Status != protocol.EventPending {
		status := ev.Status
		r.mu.Unlock()
		return protocol.Event{}, fmt.Errorf("watchlist: activate %q from %s: %w", id, status, ErrInvalidTransition)
	}
	if quantity <= 0 {
		r.mu.Unlock()
		return protocol.Event{}, fmt.Errorf("watchlist: activate %q: %w: %d", id, ErrInvalidQuantity, quantity)
	}
	if maxPrice < 0 {
		r.mu.Unlock()
		return protocol.Event{}, fmt.Errorf("watchlist: activate %q: %w: %d", id, ErrInvalidPrice, maxPrice)
	}
	ev.Status = protocol.EventActive
	ev.Monitor = &protocol.MonitorConfig{Quantity: quantity, MaxPrice: maxPrice}
	out := ev.Clone()
	r.enqueue(out, protocol.ChangeActivated)
	r.mu.Unlock()

	r.logger.Info("event activated", "event", id, "title", out.Title, "quantity", quantity, "max_price", maxPrice)
	r.flush()
	return out, nil
}

// MarkBooked moves an active event to booked. Only one caller can succeed
// for a given event.
func (r *Registry) MarkBooked(id string) (protocol.Event, error) {
	r.mu.Lock()
	ev, ok := r.events[id]
	if !ok {
		r.mu.Unlock()
		return protocol.Event{}, fmt.Errorf("watchlist: mark booked %q: %w", id, ErrNotFound)
	}
	if ev.Status != protocol.EventActive {
		status := ev.Status
		r.mu.Unlock()
		return protocol.Event{}, fmt.Errorf("watchlist: mark booked %q from %s: %w", id, status, ErrInvalidTransition)
	}
	ev.Status = protocol.EventBooked
	now := r.now()
	ev.BookedAt = &now
	out := ev.Clone()
	r.enqueue(out, protocol.ChangeBooked)
	r.mu.Unlock()

	r.logger.Info("event booked", "event", id, "title", out.Title)
	r.flush()
	return out, nil
}

// ListActive returns copies of all active events in discovery order.
func (r *Registry) ListActive() []protocol.Event {
	return r.list(func(ev *protocol.Event) bool { return ev.Status == protocol.EventActive })
}

// Snapshot returns copies of all events in discovery order.
func (r *Registry) Snapshot() []protocol.Event {
	return r.list(nil)
}

// Len returns the number of tracked events.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Registry) list(keep func(*protocol.Event) bool) []protocol.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Event, 0, len(r.order))
	for _, id := range r.order {
		ev := r.events[id]
		if keep != nil && !keep(ev) {
			continue
		}
		out = append(out, ev.Clone())
	}
	return out
}

// enqueue queues a journal write. r.mu must be held.
func (r *Registry) enqueue(ev protocol.Event, change protocol.EventChange) {
	if r.journal == nil {
		return
	}
	r.pending = append(r.pending, pendingChange{ev: ev, change: change})
}

// flush writes queued changes in the order they were made. Only one
// goroutine writes at a time; a caller that finds a writer active leaves
// its changes to that writer.
func (r *Registry) flush() {
	r.mu.Lock()
	if r.flushing || len(r.pending) == 0 {
		r.mu.Unlock()
		return
	}
	r.flushing = true
	for len(r.pending) > 0 {
		batch := r.pending
		r.pending = nil
		r.mu.Unlock()
		for _, p := range batch {
			r.record(p.ev, p.change)
		}
		r.mu.Lock()
	}
	r.flushing = false
	r.mu.Unlock()
}

func (r *Registry) record(ev protocol.Event, change protocol.EventChange) {
	if err := r.journal.Record(ev, change); err != nil {
		r.logger.Warn("journal record failed", "event", ev.ID, "change", change, "error", err)
	}
}

// Criteria returns the current search criteria.
func (r *Registry) Criteria() protocol.SearchCriteria {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.criteria
}

// SetCriteria replaces the search criteria. Events already discovered are
// not re-filtered.
func (r *Registry) SetCriteria(c protocol.SearchCriteria) protocol.SearchCriteria {
	c = c.Normalized()
	r.mu.Lock()
	r.criteria = c
	r.mu.Unlock()
	r.logger.Info("search criteria updated", "match", c.MatchText, "venue", c.Venue, "date", c.Date, "tickets", c.TicketCount)
	return c
}
