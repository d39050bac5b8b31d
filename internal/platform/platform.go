// Package platform holds the closed set of supported ticketing platforms and
// the per-platform rules used by discovery, probing and monitoring.
package platform

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/h1v3-io/seatwatch/internal/site"
	"github.com/h1v3-io/seatwatch/pkg/protocol"
)

// Platform carries everything that differs between ticketing sites.
type Platform struct {
	Source     protocol.Source
	Name       string
	HomeURL    string
	ListingURL string
	// CandidateSelector picks candidate links on the listing page.
	CandidateSelector string
	// Book finds the control that starts a booking.
	Book site.ControlRule
	// Quantity finds the ticket-count control after booking starts. Label
	// and selector placeholders "{n}" are replaced with the requested quantity. A zero
	// Selector means the platform has no quantity step.
	Quantity site.ControlRule
	// Proceed confirms the quantity step.
	Proceed    site.ControlRule
	Categories site.CategoryRule
	// SampleCategories is demonstration data, never real availability.
	SampleCategories []protocol.Category

	acceptLink func(u *url.URL) bool
}

// AcceptLink reports whether href looks like an event page on this platform.
func (p Platform) AcceptLink(href string) bool {
	u, err := url.Parse(href)
	if err != nil || u.Host == "" {
		return false
	}
	if p.acceptLink == nil {
		return true
	}
	return p.acceptLink(u)
}

// QuantityRule returns the quantity control rule for n tickets.
func (p Platform) QuantityRule(n int) site.ControlRule {
	num := strconv.Itoa(n)
	r := site.ControlRule{Selector: strings.ReplaceAll(p.Quantity.Selector, "{n}", num), Exact: p.Quantity.Exact}
	for _, l := range p.Quantity.Labels {
		r.Labels = append(r.Labels, strings.ReplaceAll(l, "{n}", num))
	}
	return r
}

var registry = map[protocol.Source]Platform{
	protocol.SourceBookMyShow: {
		Source:            protocol.SourceBookMyShow,
		Name:              "BookMyShow",
		HomeURL:           "https://in.bookmyshow.com",
		ListingURL:        "https://in.bookmyshow.com/explore/sports",
		CandidateSelector: "a[href]",
		Book:              site.ControlRule{Selector: "button", Labels: []string{"Book"}},
		Quantity:          site.ControlRule{Selector: "#pop_{n}, li", Labels: []string{"{n}"}, Exact: true},
		Proceed:           site.ControlRule{Selector: "#proceed-qty, button", Labels: []string{"Proceed", "Select Seats"}},
		Categories:        site.CategoryRule{Currency: "₹"},
		SampleCategories: []protocol.Category{
			{Name: "General Stand", Price: "₹800"},
			{Name: "Pavilion East", Price: "₹2500"},
			{Name: "VIP Box", Price: "₹5000"},
		},
		acceptLink: func(u *url.URL) bool {
			if !strings.HasSuffix(u.Hostname(), "bookmyshow.com") {
				return false
			}
			return strings.Contains(u.Path, "/sports/") && !strings.Contains(u.Path, "/explore/")
		},
	},
	protocol.SourceInsider: {
		Source:            protocol.SourceInsider,
		Name:              "Paytm Insider",
		HomeURL:           "https://insider.in",
		ListingURL:        "https://insider.in/all-sports-events",
		CandidateSelector: "a[href]",
		Book:              site.ControlRule{Selector: "button, a", Labels: []string{"Buy Now", "Register"}},
		Categories:        site.CategoryRule{Currency: "₹"},
		SampleCategories: []protocol.Category{
			{Name: "Early Bird", Price: "₹499"},
			{Name: "Phase 1", Price: "₹999"},
		},
		acceptLink: func(u *url.URL) bool {
			return strings.Contains(u.Path, "/event/")
		},
	},
}

// order fixes the scan order across platforms.
var order = []protocol.Source{protocol.SourceBookMyShow, protocol.SourceInsider}

// Lookup returns the platform for src.
func Lookup(src protocol.Source) (Platform, bool) {
	p, ok := registry[src]
	return p, ok
}

// All returns every supported platform in scan order.
func All() []Platform {
	out := make([]Platform, 0, len(order))
	for _, src := range order {
		out = append(out, registry[src])
	}
	return out
}

// Select returns the platforms named in sources, in scan order. An empty
// list selects all platforms. Unknown names are returned separately.
func Select(sources []string) (selected []Platform, unknown []string) {
	if len(sources) == 0 {
		return All(), nil
	}
	want := make(map[protocol.Source]bool, len(sources))
	for _, s := range sources {
		src := protocol.Source(strings.ToLower(strings.TrimSpace(s)))
		if _, ok := registry[src]; !ok {
			unknown = append(unknown, s)
			continue
		}
		want[src] = true
	}
	for _, src := range order {
		if want[src] {
			selected = append(selected, registry[src])
		}
	}
	return selected, unknown
}
