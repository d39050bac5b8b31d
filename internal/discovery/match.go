package discovery

import (
	"strings"

	"github.com/h1v3-io/seatwatch/pkg/protocol"
)

// Matches reports whether a candidate title satisfies c. MatchText must be a
// case-insensitive substring of title; a non-empty Venue must be too. Venue
// is matched against the title because it is not known at discovery time.
func Matches(title string, c protocol.SearchCriteria) bool {
	match := strings.TrimSpace(c.MatchText)
	if match == "" {
		return false
	}
	lower := strings.ToLower(title)
	if !strings.Contains(lower, strings.ToLower(match)) {
		return false
	}
	if venue := strings.TrimSpace(c.Venue); venue != "" {
		return strings.Contains(lower, strings.ToLower(venue))
	}
	return true
}
