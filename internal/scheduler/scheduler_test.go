package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeRunner struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (f *fakeRunner) Start(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return true
}

func (f *fakeRunner) Stop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return true
}

func (f *fakeRunner) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

func TestAdd_Fires(t *testing.T) {
	r := &fakeRunner{}
	sched := New(r, nil)
	if err := sched.Add(ActionStart, "@every 1s"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()
	time.Sleep(1500 * time.Millisecond)
	cancel()
	<-done

	if starts, stops := r.counts(); starts == 0 || stops != 0 {
		t.Errorf("starts = %d, stops = %d", starts, stops)
	}
}

func TestWindow(t *testing.T) {
	sched := New(&fakeRunner{}, nil)
	if err := sched.Window("0 9 * * *", "0 23 * * *"); err != nil {
		t.Fatalf("Window: %v", err)
	}
	if sched.JobCount() != 2 {
		t.Errorf("JobCount = %d, want 2", sched.JobCount())
	}
	sched.Clear()
	if sched.JobCount() != 0 {
		t.Errorf("JobCount after Clear = %d", sched.JobCount())
	}
}

func TestAdd_EmptyIgnored(t *testing.T) {
	sched := New(&fakeRunner{}, nil)
	if err := sched.Window("", ""); err != nil {
		t.Fatalf("Window: %v", err)
	}
	if sched.JobCount() != 0 {
		t.Errorf("JobCount = %d", sched.JobCount())
	}
}

func TestAdd_Invalid(t *testing.T) {
	sched := New(&fakeRunner{}, nil)
	if err := sched.Add(ActionStart, "invalid-cron"); err == nil {
		t.Error("expected error for invalid schedule")
	}
	if err := sched.Add("pause", "@every 1h"); err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestFire_Stop(t *testing.T) {
	r := &fakeRunner{}
	sched := New(r, nil)
	sched.fire(ActionStop)
	if _, stops := r.counts(); stops != 1 {
		t.Errorf("stops = %d", stops)
	}
}
