// Package discovery finds new events on listing pages and registers them.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/h1v3-io/seatwatch/internal/platform"
	"github.com/h1v3-io/seatwatch/internal/site"
	"github.com/h1v3-io/seatwatch/internal/watchlist"
	"github.com/h1v3-io/seatwatch/pkg/protocol"
)

// DefaultCandidateLimit caps candidates read per listing page.
const DefaultCandidateLimit = 200

// Registry is the subset of the watchlist the scanner writes to.
type Registry interface {
	UpsertIfNew(c watchlist.Candidate) (protocol.Event, bool, error)
}

// Target pairs a platform with the session used to browse it.
type Target struct {
	Platform platform.Platform
	Adapter  site.Adapter
}

// Result aggregates one scan across all targets.
type Result struct {
	Scanned int // candidates read
	Matched int
	New     int
	Skipped int // extraction failures and rejected links
	Failed  int // targets whose listing could not be read
}

// Scanner pulls candidates from each target and registers matches.
type Scanner struct {
	Registry Registry
	Limit    int
	Logger   *slog.Logger
	// OnNew is called for each newly registered event. May be nil.
	OnNew func(ctx context.Context, ev protocol.Event)
}

// Scan runs discovery across targets in order. A failure on one target is
// logged and the next target is still scanned.
func (s *Scanner) Scan(ctx context.Context, targets []Target, criteria protocol.SearchCriteria) Result {
	return s.ScanUntil(ctx, nil, targets, criteria)
}

// ScanUntil is Scan that also checks stop before each target. The target
// being read when stop closes is finished first.
func (s *Scanner) ScanUntil(ctx context.Context, stop <-chan struct{}, targets []Target, criteria protocol.SearchCriteria) Result {
	logger := s.logger()
	var res Result
	if strings.TrimSpace(criteria.MatchText) == "" {
		logger.Debug("no match text, discovery skipped")
		return res
	}

	for i, t := range targets {
		if halted(ctx, stop) {
			logger.Info("discovery interrupted", "remaining", len(targets)-i)
			break
		}
		if err := s.scanTarget(ctx, t, criteria, &res); err != nil {
			res.Failed++
			logger.Warn("discovery failed", "platform", t.Platform.Name, "error", err)
		}
	}
	logger.Info("discovery complete", "scanned", res.Scanned, "matched", res.Matched, "new", res.New, "skipped", res.Skipped, "failed", res.Failed)
	return res
}

func (s *Scanner) scanTarget(ctx context.Context, t Target, criteria protocol.SearchCriteria, res *Result) error {
	if t.Adapter == nil {
		return fmt.Errorf("discovery: %s: %w", t.Platform.Name, site.ErrAdapterUnavailable)
	}
	if err := t.Adapter.Navigate(ctx, t.Platform.ListingURL); err != nil {
		return fmt.Errorf("discovery: navigate %s: %w", t.Platform.ListingURL, err)
	}

	limit := s.Limit
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	seq, err := t.Adapter.Candidates(ctx, t.Platform.CandidateSelector, limit)
	if err != nil {
		return fmt.Errorf("discovery: candidates %s: %w", t.Platform.Name, err)
	}

	found := 0
	for c, err := range seq {
		res.Scanned++
		if err != nil || c.Text == "" || c.Href == "" {
			res.Skipped++
			continue
		}
		if !t.Platform.AcceptLink(c.Href) {
			res.Skipped++
			continue
		}
		title := strings.TrimSpace(c.Text)
		if !Matches(title, criteria) {
			continue
		}
		res.Matched++

		ev, isNew, err := s.Registry.UpsertIfNew(watchlist.Candidate{
			Title:  title,
			URL:    c.Href,
			Source: t.Platform.Source,
		})
		if err != nil {
			if errors.Is(err, watchlist.ErrInvalidCandidate) {
				res.Skipped++
				continue
			}
			return err
		}
		if isNew {
			res.New++
			found++
			if s.OnNew != nil {
				s.OnNew(ctx, ev)
			}
		}
	}
	s.logger().Debug("platform scanned", "platform", t.Platform.Name, "new", found)
	return nil
}

func halted(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (s *Scanner) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
