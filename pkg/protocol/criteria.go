package protocol

import "strings"

// DefaultTicketCount is used when criteria omit a ticket count.
const DefaultTicketCount = 2

// SearchCriteria is the operator-supplied discovery filter.
// Date and Time are informational; only MatchText and Venue filter.
type SearchCriteria struct {
	MatchText   string `json:"match" yaml:"match"`
	Venue       string `json:"venue,omitempty" yaml:"venue"`
	Date        string `json:"date,omitempty" yaml:"date"`
	Time        string `json:"time,omitempty" yaml:"time"`
	TicketCount int    `json:"tickets,omitempty" yaml:"tickets"`
}

// Normalized trims whitespace and fills in the default ticket count.
func (c SearchCriteria) Normalized() SearchCriteria {
	c.MatchText = strings.TrimSpace(c.MatchText)
	c.Venue = strings.TrimSpace(c.Venue)
	c.Date = strings.TrimSpace(c.Date)
	c.Time = strings.TrimSpace(c.Time)
	if c.TicketCount <= 0 {
		c.TicketCount = DefaultTicketCount
	}
	return c
}
