package watchlist

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/h1v3-io/seatwatch/pkg/protocol"
)

type recordedChange struct {
	id     string
	change protocol.EventChange
}

type memJournal struct {
	mu      sync.Mutex
	changes []recordedChange
	fail    bool
}

func (j *memJournal) Record(ev protocol.Event, change protocol.EventChange) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail {
		return errors.New("disk full")
	}
	j.changes = append(j.changes, recordedChange{id: ev.ID, change: change})
	return nil
}

func candidate(url string) Candidate {
	return Candidate{Title: "IPL Final - Mumbai", URL: url, Source: protocol.SourceBookMyShow}
}

func mustUpsert(t *testing.T, r *Registry, url string) protocol.Event {
	t.Helper()
	ev, isNew, err := r.UpsertIfNew(candidate(url))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !isNew {
		t.Fatalf("expected %s to be new", url)
	}
	return ev
}

func TestUpsertIfNew(t *testing.T) {
	r := New(nil, nil)

	ev, isNew, err := r.UpsertIfNew(candidate("https://a/x"))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !isNew {
		t.Fatal("expected first upsert to create")
	}
	if ev.Status != protocol.EventPending {
		t.Errorf("status = %q, want pending", ev.Status)
	}
	if ev.Categories == nil || len(ev.Categories) != 0 {
		t.Errorf("categories = %v, want empty", ev.Categories)
	}
	if !strings.HasPrefix(ev.ID, "evt_") {
		t.Errorf("id = %q", ev.ID)
	}
	if ev.Venue != protocol.UnknownField || ev.Date != protocol.UnknownField {
		t.Errorf("venue/date = %q/%q", ev.Venue, ev.Date)
	}

	again, isNew, err := r.UpsertIfNew(Candidate{Title: "Other title", URL: "https://a/x", Source: protocol.SourceInsider})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if isNew {
		t.Fatal("expected duplicate url to return existing event")
	}
	if again.ID != ev.ID || again.Title != ev.Title {
		t.Errorf("got %+v, want existing %+v", again, ev)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d", r.Len())
	}
}

func TestUpsertIfNew_InvalidCandidate(t *testing.T) {
	r := New(nil, nil)
	if _, _, err := r.UpsertIfNew(Candidate{URL: "https://a/x"}); !errors.Is(err, ErrInvalidCandidate) {
		t.Errorf("missing title: err = %v", err)
	}
	if _, _, err := r.UpsertIfNew(Candidate{Title: "t"}); !errors.Is(err, ErrInvalidCandidate) {
		t.Errorf("missing url: err = %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d", r.Len())
	}
}

func TestUpsertIfNew_Concurrent(t *testing.T) {
	r := New(nil, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url := fmt.Sprintf("https://a/%d", i%5)
			_, isNew, err := r.UpsertIfNew(candidate(url))
			if err != nil {
				t.Errorf("upsert: %v", err)
				return
			}
			if isNew {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if created != 5 {
		t.Errorf("created = %d, want 5", created)
	}
	if r.Len() != 5 {
		t.Errorf("Len = %d, want 5", r.Len())
	}
}

func TestGet_NotFound(t *testing.T) {
	r := New(nil, nil)
	if _, err := r.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestActivate(t *testing.T) {
	r := New(nil, nil)
	ev := mustUpsert(t, r, "https://a/x")

	got, err := r.Activate(ev.ID, 2, 5000)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if got.Status != protocol.EventActive {
		t.Errorf("status = %q", got.Status)
	}
	if got.Monitor == nil || got.Monitor.Quantity != 2 || got.Monitor.MaxPrice != 5000 {
		t.Errorf("monitor = %+v", got.Monitor)
	}
}

func TestActivate_InvalidTransition(t *testing.T) {
	r := New(nil, nil)
	ev := mustUpsert(t, r, "https://a/x")
	if _, err := r.Activate(ev.ID, 2, 5000); err != nil {
		t.Fatalf("activate: %v", err)
	}

	// Active → active is rejected and leaves the config untouched.
	if _, err := r.Activate(ev.ID, 4, 100); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("re-activate: err = %v, want ErrInvalidTransition", err)
	}
	got, _ := r.Get(ev.ID)
	if got.Monitor.Quantity != 2 || got.Monitor.MaxPrice != 5000 {
		t.Errorf("monitor mutated: %+v", got.Monitor)
	}

	if _, err := r.MarkBooked(ev.ID); err != nil {
		t.Fatalf("mark booked: %v", err)
	}
	if _, err := r.Activate(ev.ID, 1, 0); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("activate booked: err = %v, want ErrInvalidTransition", err)
	}
	// Bad arguments do not mask the transition error.
	for _, args := range [][2]int{{0, 0}, {2, -1}} {
		if _, err := r.Activate(ev.ID, args[0], args[1]); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("activate booked %v: err = %v, want ErrInvalidTransition", args, err)
		}
	}
	got, _ = r.Get(ev.ID)
	if got.Status != protocol.EventBooked {
		t.Errorf("status = %q, want booked", got.Status)
	}
}

func TestActivate_Validation(t *testing.T) {
	r := New(nil, nil)
	ev := mustUpsert(t, r, "https://a/x")

	if _, err := r.Activate(ev.ID, 0, 100); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("quantity 0: err = %v", err)
	}
	if _, err := r.Activate(ev.ID, 1, -1); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("negative price: err = %v", err)
	}
	if _, err := r.Activate("missing", 1, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing: err = %v", err)
	}
	got, _ := r.Get(ev.ID)
	if got.Status != protocol.EventPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
}

func TestMarkBooked(t *testing.T) {
	r := New(nil, nil)
	ev := mustUpsert(t, r, "https://a/x")

	if _, err := r.MarkBooked(ev.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending → booked: err = %v", err)
	}

	r.Activate(ev.ID, 2, 0)
	if len(r.ListActive()) != 1 {
		t.Fatalf("expected 1 active event")
	}

	booked, err := r.MarkBooked(ev.ID)
	if err != nil {
		t.Fatalf("mark booked: %v", err)
	}
	if booked.BookedAt == nil {
		t.Error("expected booked_at")
	}
	for _, a := range r.ListActive() {
		if a.ID == ev.ID {
			t.Fatal("booked event still listed as active")
		}
	}

	if _, err := r.MarkBooked(ev.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second mark booked: err = %v", err)
	}
}

func TestUpdateCategories(t *testing.T) {
	r := New(nil, nil)
	ev := mustUpsert(t, r, "https://a/x")

	r.UpdateCategories(ev.ID, []protocol.Category{{Name: "A", Price: "₹1"}, {Name: "B", Price: "₹2"}})
	r.UpdateCategories(ev.ID, []protocol.Category{{Name: "C", Price: "₹3"}})

	got, _ := r.Get(ev.ID)
	if len(got.Categories) != 1 || got.Categories[0].Name != "C" {
		t.Errorf("categories = %v, want full replacement", got.Categories)
	}
	if got.ProbedAt == nil {
		t.Error("expected probed_at")
	}
}

func TestUpdateCategories_BookedNoop(t *testing.T) {
	r := New(nil, nil)
	ev := mustUpsert(t, r, "https://a/x")
	r.UpdateCategories(ev.ID, []protocol.Category{{Name: "A", Price: "₹1"}})
	r.Activate(ev.ID, 2, 0)
	r.MarkBooked(ev.ID)

	if err := r.UpdateCategories(ev.ID, []protocol.Category{{Name: "Z", Price: "₹9"}}); err != nil {
		t.Fatalf("update booked: %v", err)
	}
	got, _ := r.Get(ev.ID)
	if len(got.Categories) != 1 || got.Categories[0].Name != "A" {
		t.Errorf("categories changed on booked event: %v", got.Categories)
	}
}

func TestUpdateCategories_NotFound(t *testing.T) {
	r := New(nil, nil)
	if err := r.UpdateCategories("nope", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	r := New(nil, nil)
	ev := mustUpsert(t, r, "https://a/x")
	r.UpdateCategories(ev.ID, []protocol.Category{{Name: "A", Price: "₹1"}})

	snap := r.Snapshot()
	snap[0].Categories[0].Name = "hacked"
	snap[0].Status = protocol.EventBooked

	got, _ := r.Get(ev.ID)
	if got.Categories[0].Name != "A" || got.Status != protocol.EventPending {
		t.Errorf("snapshot mutation leaked into registry: %+v", got)
	}
}

func TestSnapshotOrder(t *testing.T) {
	r := New(nil, nil)
	mustUpsert(t, r, "https://a/1")
	mustUpsert(t, r, "https://a/2")
	mustUpsert(t, r, "https://a/3")

	snap := r.Snapshot()
	for i, want := range []string{"https://a/1", "https://a/2", "https://a/3"} {
		if snap[i].URL != want {
			t.Errorf("snap[%d] = %s, want %s", i, snap[i].URL, want)
		}
	}
}

func TestUniqueIDs(t *testing.T) {
	r := New(nil, nil)
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		ev := mustUpsert(t, r, fmt.Sprintf("https://a/%d", i))
		if seen[ev.ID] {
			t.Fatalf("duplicate id %s", ev.ID)
		}
		seen[ev.ID] = true
	}
}

func TestJournal(t *testing.T) {
	j := &memJournal{}
	r := New(j, nil)
	ev := mustUpsert(t, r, "https://a/x")
	r.UpsertIfNew(candidate("https://a/x"))
	r.UpdateCategories(ev.ID, nil)
	r.Activate(ev.ID, 2, 0)
	r.MarkBooked(ev.ID)

	want := []protocol.EventChange{
		protocol.ChangeDiscovered,
		protocol.ChangeCategories,
		protocol.ChangeActivated,
		protocol.ChangeBooked,
	}
	if len(j.changes) != len(want) {
		t.Fatalf("changes = %v", j.changes)
	}
	for i, c := range want {
		if j.changes[i].change != c || j.changes[i].id != ev.ID {
			t.Errorf("change[%d] = %+v, want %s", i, j.changes[i], c)
		}
	}
}

// gatedJournal holds the first discovered record until release is closed.
type gatedJournal struct {
	memJournal
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (j *gatedJournal) Record(ev protocol.Event, change protocol.EventChange) error {
	if change == protocol.ChangeDiscovered {
		j.once.Do(func() {
			close(j.entered)
			<-j.release
		})
	}
	return j.memJournal.Record(ev, change)
}

func TestJournalOrderUnderConcurrency(t *testing.T) {
	j := &gatedJournal{entered: make(chan struct{}), release: make(chan struct{})}
	r := New(j, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.UpsertIfNew(candidate("https://a/x"))
	}()
	<-j.entered

	events := r.Snapshot()
	if len(events) != 1 {
		t.Fatalf("events = %d", len(events))
	}
	// The discovered write is still in flight; the activation must queue
	// behind it rather than land first.
	if _, err := r.Activate(events[0].ID, 2, 0); err != nil {
		t.Fatalf("activate: %v", err)
	}
	close(j.release)
	<-done

	j.mu.Lock()
	defer j.mu.Unlock()
	want := []protocol.EventChange{protocol.ChangeDiscovered, protocol.ChangeActivated}
	if len(j.changes) != len(want) {
		t.Fatalf("changes = %v", j.changes)
	}
	for i, c := range want {
		if j.changes[i].change != c {
			t.Errorf("change[%d] = %s, want %s", i, j.changes[i].change, c)
		}
	}
}

func TestJournalFailureDoesNotBlockMutation(t *testing.T) {
	r := New(&memJournal{fail: true}, nil)
	ev := mustUpsert(t, r, "https://a/x")
	if _, err := r.Activate(ev.ID, 1, 0); err != nil {
		t.Fatalf("activate: %v", err)
	}
}

func TestCriteria(t *testing.T) {
	r := New(nil, nil)
	if r.Criteria().TicketCount != protocol.DefaultTicketCount {
		t.Errorf("default tickets = %d", r.Criteria().TicketCount)
	}
	got := r.SetCriteria(protocol.SearchCriteria{MatchText: " india ", Venue: "Wankhede"})
	if got.MatchText != "india" || got.TicketCount != protocol.DefaultTicketCount {
		t.Errorf("normalized = %+v", got)
	}
	if r.Criteria() != got {
		t.Errorf("Criteria() = %+v", r.Criteria())
	}
}
