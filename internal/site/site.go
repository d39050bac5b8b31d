// Package site defines the Site Adapter contract: one Adapter instance models
// one browsing session against a ticketing platform.
package site

import (
	"context"
	"errors"
	"iter"

	"github.com/h1v3-io/seatwatch/pkg/protocol"
)

var (
	// ErrTransientIO marks a navigation or interaction failure that is
	// expected to clear on a later attempt.
	ErrTransientIO = errors.New("transient I/O failure")
	// ErrExtraction marks a single malformed candidate (no title or link).
	ErrExtraction = errors.New("candidate extraction failed")
	// ErrAdapterUnavailable means a session could not be created or reached.
	ErrAdapterUnavailable = errors.New("site adapter unavailable")
	// ErrUnsupported means the adapter lacks the requested capability.
	ErrUnsupported = errors.New("operation not supported by adapter")
)

// Candidate is a raw (title, link) pair found on a listing page.
type Candidate struct {
	Text string
	Href string
}

// ControlRule describes how to locate a platform control: elements matching
// Selector whose label contains any of Labels (case-insensitive). With
// Exact set, the trimmed label must equal one of Labels instead.
type ControlRule struct {
	Selector string
	Labels   []string
	Exact    bool
}

// Control is an interactive element on the current page.
type Control interface {
	Label() string
	IsEnabled(ctx context.Context) (bool, error)
	Click(ctx context.Context) error
}

// Adapter is a browsing session. Implementations are not safe for concurrent
// use; callers serialize access or use separate instances.
type Adapter interface {
	// Navigate loads url as the current page.
	Navigate(ctx context.Context, url string) error
	// Candidates returns a lazy sequence of at most limit candidates from the
	// current page matching selectorHint. A per-item error is an extraction
	// failure for that item only.
	Candidates(ctx context.Context, selectorHint string, limit int) (iter.Seq2[Candidate, error], error)
	// FindControl returns the first control on the current page satisfying
	// rule, or nil if there is none.
	FindControl(ctx context.Context, rule ControlRule) (Control, error)
	// PageURL returns the current page location.
	PageURL() string
	// Close releases the session.
	Close() error
}

// CategoryReader is implemented by adapters able to read price tiers from
// the current page.
type CategoryReader interface {
	ReadCategories(ctx context.Context, rule CategoryRule) ([]protocol.Category, error)
}

// CategoryRule describes how categories are recognised in page text.
type CategoryRule struct {
	// Currency is the price prefix to look for, e.g. "₹".
	Currency string
}

// Factory creates a fresh, isolated session.
type Factory func(ctx context.Context) (Adapter, error)
