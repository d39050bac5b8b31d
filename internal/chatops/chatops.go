// Package chatops interprets operator chat commands. Telegram and Slack
// both route inbound text through the same Interpreter.
package chatops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/h1v3-io/seatwatch/internal/connector"
	"github.com/h1v3-io/seatwatch/internal/watchlist"
	"github.com/h1v3-io/seatwatch/pkg/protocol"
)

// Service is the engine surface the commands drive.
type Service interface {
	Snapshot() protocol.Snapshot
	Start(ctx context.Context) bool
	Stop() bool
	Activate(id string, quantity, maxPrice int) (protocol.Event, error)
	Probe(ctx context.Context, id string) error
	Criteria() protocol.SearchCriteria
	UpdateCriteria(c protocol.SearchCriteria) protocol.SearchCriteria
}

const helpText = `Commands:
/status - watcher state and counts
/start - start watching
/stop - stop watching
/events [pending|active|booked] - list tracked events
/activate <id> [quantity] [max_price] - start monitoring an event
/probe <id> - refresh ticket categories
/search [text] - show or set the match text
/venue [text] - show or set the venue filter
/help - this message`

const maxListed = 20

// Interpreter turns command text into engine calls and a reply.
type Interpreter struct {
	svc    Service
	runCtx context.Context
	logger *slog.Logger
}

// New creates an interpreter. /start launches the loop under runCtx, which
// should live as long as the process.
func New(runCtx context.Context, svc Service, logger *slog.Logger) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{svc: svc, runCtx: runCtx, logger: logger}
}

// Inbound adapts the interpreter to connector.InboundHandler.
func (in *Interpreter) Inbound(ctx context.Context, msg connector.InboundMessage) (string, error) {
	in.logger.Info("chat command", "channel", msg.Channel, "sender", msg.SenderID, "text", msg.Content)
	return in.Handle(ctx, msg.Content), nil
}

// Handle executes one command line and returns the reply text.
func (in *Interpreter) Handle(ctx context.Context, text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return ""
	}
	cmd := strings.ToLower(fields[0])
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i] // "/status@my_bot"
	}
	args := fields[1:]

	switch cmd {
	case "/status":
		return in.status()
	case "/start":
		if in.svc.Start(in.runCtx) {
			return "Watcher started."
		}
		return "Watcher is already running."
	case "/stop":
		if in.svc.Stop() {
			return "Stopping after the current step."
		}
		return "Watcher is not running."
	case "/events":
		return in.events(args)
	case "/activate":
		return in.activate(args)
	case "/probe":
		if len(args) != 1 {
			return "Usage: /probe <id>"
		}
		if err := in.svc.Probe(ctx, args[0]); err != nil {
			return "Probe failed: " + describe(err)
		}
		return "Checking categories for " + args[0] + "."
	case "/search":
		return in.search(args)
	case "/venue":
		return in.venue(args)
	case "/help":
		return helpText
	default:
		if strings.HasPrefix(cmd, "/") {
			return "Unknown command " + cmd + ". Try /help."
		}
		return "Send /help for the list of commands."
	}
}

func (in *Interpreter) status() string {
	snap := in.svc.Snapshot()
	counts := map[protocol.EventStatus]int{}
	for _, ev := range snap.Events {
		counts[ev.Status]++
	}
	state := "stopped"
	if snap.Running {
		state = "running"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Watcher is %s.\n", state)
	fmt.Fprintf(&b, "Search: %s\n", describeCriteria(snap.Criteria))
	fmt.Fprintf(&b, "Events: %d pending, %d active, %d booked", counts[protocol.EventPending], counts[protocol.EventActive], counts[protocol.EventBooked])
	if n := len(snap.Handovers); n > 0 {
		last := snap.Handovers[n-1]
		fmt.Fprintf(&b, "\nLast handover: %s (%s)", last.Title, last.URL)
	}
	return b.String()
}

func (in *Interpreter) events(args []string) string {
	var filter protocol.EventStatus
	if len(args) > 0 {
		filter = protocol.EventStatus(strings.ToLower(args[0]))
		switch filter {
		case protocol.EventPending, protocol.EventActive, protocol.EventBooked:
		default:
			return "Usage: /events [pending|active|booked]"
		}
	}
	var lines []string
	for _, ev := range in.svc.Snapshot().Events {
		if filter != "" && ev.Status != filter {
			continue
		}
		lines = append(lines, formatEvent(ev))
	}
	if len(lines) == 0 {
		return "No events."
	}
	if len(lines) > maxListed {
		more := len(lines) - maxListed
		lines = append(lines[:maxListed], fmt.Sprintf("... and %d more", more))
	}
	return strings.Join(lines, "\n")
}

func formatEvent(ev protocol.Event) string {
	s := fmt.Sprintf("[%s] %s\n  id: %s", ev.Status, ev.Title, ev.ID)
	if len(ev.Categories) > 0 {
		parts := make([]string, len(ev.Categories))
		for i, c := range ev.Categories {
			parts[i] = c.Name + " " + c.Price
		}
		s += "\n  " + strings.Join(parts, ", ")
	}
	return s
}

func (in *Interpreter) activate(args []string) string {
	if len(args) < 1 || len(args) > 3 {
		return "Usage: /activate <id> [quantity] [max_price]"
	}
	var nums [2]int
	for i, a := range args[1:] {
		n, err := strconv.Atoi(a)
		if err != nil {
			return fmt.Sprintf("Not a number: %q", a)
		}
		nums[i] = n
	}
	ev, err := in.svc.Activate(args[0], nums[0], nums[1])
	if err != nil {
		return "Activate failed: " + describe(err)
	}
	msg := fmt.Sprintf("Monitoring %s for %d ticket(s)", ev.Title, ev.Monitor.Quantity)
	if ev.Monitor.MaxPrice > 0 {
		msg += fmt.Sprintf(" up to %d", ev.Monitor.MaxPrice)
	}
	return msg + "."
}

func (in *Interpreter) search(args []string) string {
	c := in.svc.Criteria()
	if len(args) == 0 {
		return "Search: " + describeCriteria(c)
	}
	c.MatchText = strings.Join(args, " ")
	c = in.svc.UpdateCriteria(c)
	return "Search updated: " + describeCriteria(c)
}

func (in *Interpreter) venue(args []string) string {
	c := in.svc.Criteria()
	if len(args) == 0 {
		return "Search: " + describeCriteria(c)
	}
	c.Venue = strings.Join(args, " ")
	if strings.EqualFold(c.Venue, "any") {
		c.Venue = ""
	}
	c = in.svc.UpdateCriteria(c)
	return "Search updated: " + describeCriteria(c)
}

func describeCriteria(c protocol.SearchCriteria) string {
	if c.MatchText == "" {
		return "(discovery off)"
	}
	s := fmt.Sprintf("%q", c.MatchText)
	if c.Venue != "" {
		s += fmt.Sprintf(" at %q", c.Venue)
	}
	return s + fmt.Sprintf(", %d ticket(s)", c.TicketCount)
}

func describe(err error) string {
	switch {
	case errors.Is(err, watchlist.ErrNotFound):
		return "no such event"
	case errors.Is(err, watchlist.ErrInvalidTransition):
		return "event is not pending"
	case errors.Is(err, watchlist.ErrInvalidQuantity):
		return "quantity must be positive"
	case errors.Is(err, watchlist.ErrInvalidPrice):
		return "max price must not be negative"
	default:
		return err.Error()
	}
}
