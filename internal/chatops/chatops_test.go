package chatops

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/h1v3-io/seatwatch/internal/connector"
	"github.com/h1v3-io/seatwatch/internal/watchlist"
	"github.com/h1v3-io/seatwatch/pkg/protocol"
)

type fakeService struct {
	running  bool
	events   []protocol.Event
	criteria protocol.SearchCriteria
	probed   []string
	activate func(id string, q, p int) (protocol.Event, error)
}

func (f *fakeService) Snapshot() protocol.Snapshot {
	return protocol.Snapshot{Running: f.running, Criteria: f.criteria, Events: f.events}
}

func (f *fakeService) Start(context.Context) bool {
	if f.running {
		return false
	}
	f.running = true
	return true
}

func (f *fakeService) Stop() bool {
	if !f.running {
		return false
	}
	f.running = false
	return true
}

func (f *fakeService) Activate(id string, q, p int) (protocol.Event, error) {
	return f.activate(id, q, p)
}

func (f *fakeService) Probe(_ context.Context, id string) error {
	if id == "missing" {
		return fmt.Errorf("watchlist: %q: %w", id, watchlist.ErrNotFound)
	}
	f.probed = append(f.probed, id)
	return nil
}

func (f *fakeService) Criteria() protocol.SearchCriteria { return f.criteria }

func (f *fakeService) UpdateCriteria(c protocol.SearchCriteria) protocol.SearchCriteria {
	f.criteria = c.Normalized()
	return f.criteria
}

func newInterp() (*Interpreter, *fakeService) {
	svc := &fakeService{
		criteria: protocol.SearchCriteria{MatchText: "Cricket", TicketCount: 2},
		events: []protocol.Event{
			{ID: "evt_1", Title: "IPL Final", Status: protocol.EventPending},
			{ID: "evt_2", Title: "Ranji Trophy", Status: protocol.EventActive,
				Categories: []protocol.Category{{Name: "General", Price: "₹800"}}},
		},
	}
	return New(context.Background(), svc, nil), svc
}

func TestStartStop(t *testing.T) {
	in, svc := newInterp()
	ctx := context.Background()

	if got := in.Handle(ctx, "/start"); got != "Watcher started." {
		t.Errorf("/start = %q", got)
	}
	if got := in.Handle(ctx, "/start@seatwatch_bot"); !strings.Contains(got, "already running") {
		t.Errorf("second /start = %q", got)
	}
	if got := in.Handle(ctx, "/stop"); !strings.Contains(got, "Stopping") {
		t.Errorf("/stop = %q", got)
	}
	if got := in.Handle(ctx, "/stop"); !strings.Contains(got, "not running") {
		t.Errorf("second /stop = %q", got)
	}
	if svc.running {
		t.Error("service still running")
	}
}

func TestStatus(t *testing.T) {
	in, _ := newInterp()
	got := in.Handle(context.Background(), "/status")
	for _, want := range []string{"stopped", `"Cricket"`, "1 pending, 1 active, 0 booked"} {
		if !strings.Contains(got, want) {
			t.Errorf("status missing %q:\n%s", want, got)
		}
	}
}

func TestEvents(t *testing.T) {
	in, _ := newInterp()
	ctx := context.Background()

	all := in.Handle(ctx, "/events")
	if !strings.Contains(all, "evt_1") || !strings.Contains(all, "evt_2") || !strings.Contains(all, "General ₹800") {
		t.Errorf("/events = %q", all)
	}
	active := in.Handle(ctx, "/events active")
	if strings.Contains(active, "evt_1") || !strings.Contains(active, "evt_2") {
		t.Errorf("/events active = %q", active)
	}
	if got := in.Handle(ctx, "/events booked"); got != "No events." {
		t.Errorf("/events booked = %q", got)
	}
	if got := in.Handle(ctx, "/events soon"); !strings.HasPrefix(got, "Usage") {
		t.Errorf("/events soon = %q", got)
	}
}

func TestActivate(t *testing.T) {
	in, svc := newInterp()
	var gotQ, gotP int
	svc.activate = func(id string, q, p int) (protocol.Event, error) {
		if id != "evt_1" {
			return protocol.Event{}, fmt.Errorf("watchlist: activate %q: %w", id, watchlist.ErrNotFound)
		}
		gotQ, gotP = q, p
		if q == 0 {
			q = 2
		}
		return protocol.Event{ID: id, Title: "IPL Final", Monitor: &protocol.MonitorConfig{Quantity: q, MaxPrice: p}}, nil
	}
	ctx := context.Background()

	if got := in.Handle(ctx, "/activate evt_1 3 5000"); got != "Monitoring IPL Final for 3 ticket(s) up to 5000." {
		t.Errorf("reply = %q", got)
	}
	if gotQ != 3 || gotP != 5000 {
		t.Errorf("args = %d, %d", gotQ, gotP)
	}
	if got := in.Handle(ctx, "/activate evt_1"); got != "Monitoring IPL Final for 2 ticket(s)." {
		t.Errorf("default reply = %q", got)
	}
	if got := in.Handle(ctx, "/activate evt_9"); got != "Activate failed: no such event" {
		t.Errorf("missing reply = %q", got)
	}
	if got := in.Handle(ctx, "/activate evt_1 two"); !strings.Contains(got, "Not a number") {
		t.Errorf("bad number reply = %q", got)
	}
	if got := in.Handle(ctx, "/activate"); !strings.HasPrefix(got, "Usage") {
		t.Errorf("usage reply = %q", got)
	}
}

func TestProbe(t *testing.T) {
	in, svc := newInterp()
	ctx := context.Background()
	if got := in.Handle(ctx, "/probe evt_1"); !strings.Contains(got, "evt_1") {
		t.Errorf("reply = %q", got)
	}
	if len(svc.probed) != 1 {
		t.Errorf("probed = %v", svc.probed)
	}
	if got := in.Handle(ctx, "/probe missing"); got != "Probe failed: no such event" {
		t.Errorf("missing reply = %q", got)
	}
}

func TestSearchAndVenue(t *testing.T) {
	in, svc := newInterp()
	ctx := context.Background()

	if got := in.Handle(ctx, "/search"); !strings.Contains(got, `"Cricket"`) {
		t.Errorf("/search = %q", got)
	}
	in.Handle(ctx, "/search IPL Final")
	if svc.criteria.MatchText != "IPL Final" || svc.criteria.TicketCount != 2 {
		t.Errorf("criteria = %+v", svc.criteria)
	}
	got := in.Handle(ctx, "/venue Chepauk")
	if svc.criteria.Venue != "Chepauk" || !strings.Contains(got, `at "Chepauk"`) {
		t.Errorf("venue reply = %q, criteria = %+v", got, svc.criteria)
	}
	in.Handle(ctx, "/venue any")
	if svc.criteria.Venue != "" {
		t.Errorf("venue not cleared: %q", svc.criteria.Venue)
	}
}

func TestUnknownAndHelp(t *testing.T) {
	in, _ := newInterp()
	ctx := context.Background()
	if got := in.Handle(ctx, "/book"); !strings.Contains(got, "Unknown command /book") {
		t.Errorf("unknown = %q", got)
	}
	if got := in.Handle(ctx, "/help"); !strings.Contains(got, "/activate <id>") {
		t.Errorf("help = %q", got)
	}
	if got := in.Handle(ctx, "   "); got != "" {
		t.Errorf("blank = %q", got)
	}
	if got := in.Handle(ctx, "hello"); !strings.Contains(got, "/help") {
		t.Errorf("plain text = %q", got)
	}
}

func TestInbound(t *testing.T) {
	in, _ := newInterp()
	reply, err := in.Inbound(context.Background(), connector.InboundMessage{Channel: "telegram", ChatID: "1", Content: "/status"})
	if err != nil || !strings.Contains(reply, "Watcher is") {
		t.Errorf("Inbound = %q, %v", reply, err)
	}
}
