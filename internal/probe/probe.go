// Package probe refreshes price categories for a single event using an
// isolated session, so it never disturbs the monitor loop's navigation.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/h1v3-io/seatwatch/internal/platform"
	"github.com/h1v3-io/seatwatch/internal/site"
	"github.com/h1v3-io/seatwatch/pkg/protocol"
)

// DefaultTimeout bounds a single probe, including session startup.
const DefaultTimeout = 45 * time.Second

// ErrEventBooked is returned when probing an event that is already booked.
var ErrEventBooked = errors.New("event already booked")

// Registry is the subset of the watchlist the prober needs.
type Registry interface {
	Get(id string) (protocol.Event, error)
	UpdateCategories(id string, cats []protocol.Category) error
}

// Prober fetches current categories for events.
type Prober struct {
	Registry Registry
	Factory  site.Factory
	Timeout  time.Duration
	// UseSamples falls back to the platform's sample categories when the
	// adapter cannot read categories. Sample data is not real availability.
	UseSamples bool
	Logger     *slog.Logger
}

// Probe refreshes categories for event id. On any failure the event's
// previous categories are left untouched.
func (p *Prober) Probe(ctx context.Context, id string) ([]protocol.Category, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ev, err := p.Registry.Get(id)
	if err != nil {
		return nil, err
	}
	if ev.Status == protocol.EventBooked {
		return nil, fmt.Errorf("probe: %s: %w", id, ErrEventBooked)
	}
	plat, ok := platform.Lookup(ev.Source)
	if !ok {
		return nil, fmt.Errorf("probe: %s: unknown source %q", id, ev.Source)
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Info("checking availability", "event", id, "title", ev.Title)
	cats, err := p.fetch(ctx, ev, plat)
	if err != nil {
		logger.Warn("availability check failed", "event", id, "error", err)
		return nil, err
	}

	if err := p.Registry.UpdateCategories(id, cats); err != nil {
		return nil, err
	}
	logger.Info("availability updated", "event", id, "categories", len(cats))
	return cats, nil
}

func (p *Prober) fetch(ctx context.Context, ev protocol.Event, plat platform.Platform) ([]protocol.Category, error) {
	if p.Factory == nil {
		return nil, fmt.Errorf("probe: no session factory: %w", site.ErrAdapterUnavailable)
	}
	adapter, err := p.Factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("probe: open session: %w: %w", site.ErrAdapterUnavailable, err)
	}
	defer adapter.Close()

	if err := adapter.Navigate(ctx, ev.URL); err != nil {
		return nil, fmt.Errorf("probe: navigate %s: %w", ev.URL, err)
	}

	var cats []protocol.Category
	reader, ok := adapter.(site.CategoryReader)
	if ok {
		cats, err = reader.ReadCategories(ctx, plat.Categories)
	} else {
		err = site.ErrUnsupported
	}

	if err != nil {
		if p.UseSamples && (errors.Is(err, site.ErrUnsupported) || errors.Is(err, site.ErrExtraction)) {
			return cloneCategories(plat.SampleCategories), nil
		}
		return nil, fmt.Errorf("probe: read categories: %w", err)
	}
	if len(cats) == 0 {
		if p.UseSamples {
			return cloneCategories(plat.SampleCategories), nil
		}
		return nil, fmt.Errorf("probe: no categories on %s: %w", ev.URL, site.ErrExtraction)
	}
	return cats, nil
}

func cloneCategories(in []protocol.Category) []protocol.Category {
	out := make([]protocol.Category, len(in))
	copy(out, in)
	return out
}
