package protocol

import "time"

// Handover records the moment an event needed manual operator action.
type Handover struct {
	EventID string    `json:"event_id"`
	Title   string    `json:"title"`
	URL     string    `json:"url"`
	Source  Source    `json:"source"`
	At      time.Time `json:"at"`
}

// Snapshot is the Control Surface view of the engine.
type Snapshot struct {
	Running   bool           `json:"running"`
	Criteria  SearchCriteria `json:"criteria"`
	Events    []Event        `json:"events"`
	Handovers []Handover     `json:"handovers"`
	RecentLog []string       `json:"recent_log"`
}
