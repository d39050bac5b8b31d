package protocol

import "time"

// Source identifies a known ticketing platform.
type Source string

const (
	SourceBookMyShow Source = "bookmyshow"
	SourceInsider    Source = "insider"
)

// EventStatus represents the lifecycle state of a tracked event.
// Transitions only move forward: pending → active → booked.
type EventStatus string

const (
	EventPending EventStatus = "pending"
	EventActive  EventStatus = "active"
	EventBooked  EventStatus = "booked"
)

// UnknownField is the placeholder for venue/date values not yet scraped.
const UnknownField = "unknown"

// Category is one price tier on an event page.
type Category struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

// MonitorConfig is attached to an event once the operator activates it.
type MonitorConfig struct {
	Quantity int `json:"quantity"`
	MaxPrice int `json:"max_price,omitempty"`
}

// Event is one tracked ticket listing. URL is the natural key.
type Event struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	URL          string         `json:"url"`
	Source       Source         `json:"source"`
	Status       EventStatus    `json:"status"`
	Venue        string         `json:"venue"`
	Date         string         `json:"date"`
	Categories   []Category     `json:"categories"`
	Monitor      *MonitorConfig `json:"monitor_config,omitempty"`
	DiscoveredAt time.Time      `json:"discovered_at"`
	ProbedAt     *time.Time     `json:"probed_at,omitempty"`
	BookedAt     *time.Time     `json:"booked_at,omitempty"`
}

// Clone returns a deep copy that shares no mutable state with e.
func (e Event) Clone() Event {
	out := e
	out.Categories = make([]Category, len(e.Categories))
	copy(out.Categories, e.Categories)
	if e.Monitor != nil {
		m := *e.Monitor
		out.Monitor = &m
	}
	if e.ProbedAt != nil {
		t := *e.ProbedAt
		out.ProbedAt = &t
	}
	if e.BookedAt != nil {
		t := *e.BookedAt
		out.BookedAt = &t
	}
	return out
}

// EventChange names a registry mutation, used by journals and notifiers.
type EventChange string

const (
	ChangeDiscovered EventChange = "discovered"
	ChangeCategories EventChange = "categories"
	ChangeActivated  EventChange = "activated"
	ChangeBooked     EventChange = "booked"
)
