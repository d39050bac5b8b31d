// Package engine runs the watch loop: discovery, then one monitoring pass
// over every active event, then a pause, until stopped. It owns all shared
// state and is the service behind the API and chat commands.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/h1v3-io/seatwatch/internal/discovery"
	"github.com/h1v3-io/seatwatch/internal/handover"
	"github.com/h1v3-io/seatwatch/internal/logbuf"
	"github.com/h1v3-io/seatwatch/internal/monitor"
	"github.com/h1v3-io/seatwatch/internal/platform"
	"github.com/h1v3-io/seatwatch/internal/probe"
	"github.com/h1v3-io/seatwatch/internal/site"
	"github.com/h1v3-io/seatwatch/internal/watchlist"
	"github.com/h1v3-io/seatwatch/pkg/protocol"
)

const (
	DefaultCycleInterval = 30 * time.Second
	DefaultMonitorPause  = time.Second
	DefaultLogLines      = 50
	DefaultMaxProbes     = 2
)

// ErrProbeInFlight is returned when a probe for the same event is running.
var ErrProbeInFlight = errors.New("probe already in progress")

// Options configures an Engine. Factory is required.
type Options struct {
	Platforms         []platform.Platform // default: all
	Factory           site.Factory
	Criteria          protocol.SearchCriteria
	CycleInterval     time.Duration
	MonitorPause      time.Duration
	CandidateLimit    int
	ProbeTimeout      time.Duration
	MaxProbes         int // concurrent background probe sessions
	SampleCategories  bool
	NotifyDiscoveries bool
	LogLines          int
	Logs              *logbuf.Buffer
	Journal           watchlist.Journal
	Logger            *slog.Logger
}

// Engine is the process-wide context object for one watcher.
type Engine struct {
	opts      Options
	logger    *slog.Logger
	logs      *logbuf.Buffer
	registry  *watchlist.Registry
	scanner   *discovery.Scanner
	prober    *probe.Prober
	monitor   *monitor.Monitor
	notify    *handover.Fanout
	handovers *handover.Recorder

	mu       sync.Mutex
	running  bool
	stopping bool
	stop     chan struct{}
	done     chan struct{}
	probing  map[string]bool
	probes   sync.WaitGroup
	slots    *semaphore.Weighted
}

// New creates a stopped engine.
func New(opts Options) (*Engine, error) {
	if opts.Factory == nil {
		return nil, fmt.Errorf("engine: site factory is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.Platforms) == 0 {
		opts.Platforms = platform.All()
	}
	if opts.CycleInterval <= 0 {
		opts.CycleInterval = DefaultCycleInterval
	}
	if opts.MonitorPause <= 0 {
		opts.MonitorPause = DefaultMonitorPause
	}
	if opts.LogLines <= 0 {
		opts.LogLines = DefaultLogLines
	}
	if opts.MaxProbes <= 0 {
		opts.MaxProbes = DefaultMaxProbes
	}
	if opts.Logs == nil {
		opts.Logs = logbuf.New(0)
	}
	logger := opts.Logger.With("component", "engine")

	e := &Engine{
		opts:      opts,
		logger:    logger,
		logs:      opts.Logs,
		registry:  watchlist.New(opts.Journal, opts.Logger.With("component", "watchlist")),
		notify:    handover.NewFanout(opts.Logger.With("component", "handover")),
		handovers: &handover.Recorder{},
		probing:   make(map[string]bool),
		slots:     semaphore.NewWeighted(int64(opts.MaxProbes)),
	}
	e.notify.Add(e.handovers)
	e.registry.SetCriteria(opts.Criteria)

	e.scanner = &discovery.Scanner{
		Registry: e.registry,
		Limit:    opts.CandidateLimit,
		Logger:   opts.Logger.With("component", "discovery"),
		OnNew:    e.discovered,
	}
	e.prober = &probe.Prober{
		Registry:   e.registry,
		Factory:    opts.Factory,
		Timeout:    opts.ProbeTimeout,
		UseSamples: opts.SampleCategories,
		Logger:     opts.Logger.With("component", "probe"),
	}
	e.monitor = &monitor.Monitor{
		Registry: e.registry,
		Notifier: e.notify,
		Logger:   opts.Logger.With("component", "monitor"),
	}
	return e, nil
}

// AddNotifier registers an operator channel for handover and discovery notices.
func (e *Engine) AddNotifier(n handover.Notifier) {
	e.notify.Add(n)
}

// Registry exposes the watchlist, mostly for tests and tooling.
func (e *Engine) Registry() *watchlist.Registry { return e.registry }

func (e *Engine) discovered(ctx context.Context, ev protocol.Event) {
	if !e.opts.NotifyDiscoveries {
		return
	}
	e.notify.Notify(ctx, handover.Notice{Kind: handover.KindDiscovered, Event: ev, At: time.Now()})
}

// Start launches the watch loop under ctx. It returns false if the loop is
// already running.
func (e *Engine) Start(ctx context.Context) bool {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return false
	}
	e.running = true
	e.stopping = false
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	stop, done := e.stop, e.done
	e.mu.Unlock()

	e.logs.Reset()
	e.logger.Info("watcher started",
		"platforms", len(e.opts.Platforms),
		"interval", e.opts.CycleInterval,
	)
	go e.run(ctx, stop, done)
	return true
}

// Stop asks the loop to exit at its next checkpoint. In-flight page loads
// and clicks finish first. It returns false if the loop is not running or
// a stop is already pending.
func (e *Engine) Stop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.stopping {
		return false
	}
	e.stopping = true
	close(e.stop)
	e.logger.Info("stop requested")
	return true
}

// Running reports whether the loop is running.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Wait blocks until the current loop, if any, has exited.
func (e *Engine) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Shutdown stops the loop and waits for it and for pending probes.
func (e *Engine) Shutdown() {
	e.Stop()
	e.Wait()
	e.probes.Wait()
}

func (e *Engine) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	var session site.Adapter
	defer func() {
		if session != nil {
			if err := session.Close(); err != nil {
				e.logger.Warn("session close failed", "error", err)
			}
		}
		e.mu.Lock()
		e.running = false
		e.stopping = false
		e.mu.Unlock()
		close(done)
		e.logger.Info("watcher stopped")
	}()

	for cycle := 1; ; cycle++ {
		if halted(ctx, stop) {
			return
		}
		if session == nil {
			s, err := e.opts.Factory(ctx)
			if err != nil {
				e.logger.Error("site session unavailable, retrying next cycle", "error", fmt.Errorf("%w: %w", site.ErrAdapterUnavailable, err))
			} else {
				session = s
			}
		}
		e.cycle(ctx, stop, session, cycle)
		if !pause(ctx, stop, e.opts.CycleInterval) {
			return
		}
	}
}

// cycle runs one discovery phase and one monitoring pass. A panic in
// either phase is logged and the loop continues.
func (e *Engine) cycle(ctx context.Context, stop <-chan struct{}, session site.Adapter, n int) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("cycle panic recovered", "cycle", n, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	targets := make([]discovery.Target, len(e.opts.Platforms))
	for i, p := range e.opts.Platforms {
		targets[i] = discovery.Target{Platform: p, Adapter: session}
	}
	e.scanner.ScanUntil(ctx, stop, targets, e.registry.Criteria())

	active := e.registry.ListActive()
	if len(active) == 0 {
		return
	}
	e.logger.Info("monitoring", "cycle", n, "active", len(active))
	for i, ev := range active {
		if i > 0 && !pause(ctx, stop, e.opts.MonitorPause) {
			return
		}
		if halted(ctx, stop) {
			return
		}
		outcome := e.monitor.MonitorOnce(ctx, ev, session)
		e.logger.Debug("monitor outcome", "event", ev.ID, "outcome", outcome.String())
	}
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

// pause sleeps for d and reports false if the loop should exit instead.
func pause(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	}
}
