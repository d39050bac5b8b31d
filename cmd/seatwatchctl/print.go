package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/h1v3-io/seatwatch/pkg/protocol"
)

func printCriteria(w io.Writer, c protocol.SearchCriteria) {
	venue := c.Venue
	if venue == "" {
		venue = "any"
	}
	fmt.Fprintf(w, "Match:   %s\nVenue:   %s\nTickets: %d\n", c.MatchText, venue, c.TicketCount)
}

func printSnapshot(w io.Writer, s protocol.Snapshot) {
	state := "stopped"
	if s.Running {
		state = "running"
	}
	fmt.Fprintf(w, "Monitoring: %s\n", state)
	printCriteria(w, s.Criteria)
	fmt.Fprintln(w)
	if len(s.Events) > 0 {
		printEvents(w, s.Events)
		fmt.Fprintln(w)
	}
	for _, h := range s.Handovers {
		fmt.Fprintf(w, "HANDOVER %s  %s  %s\n", h.At.Local().Format("15:04:05"), h.Title, h.URL)
	}
	for _, line := range s.RecentLog {
		fmt.Fprintln(w, line)
	}
}

func printEvents(w io.Writer, events []protocol.Event) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSOURCE\tTITLE\tCATEGORIES")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", ev.ID, ev.Status, ev.Source, ev.Title, len(ev.Categories))
	}
	tw.Flush()
}

func printEvent(w io.Writer, ev protocol.Event) {
	fmt.Fprintf(w, "ID:      %s\nTitle:   %s\nStatus:  %s\nSource:  %s\nURL:     %s\nVenue:   %s\nDate:    %s\n",
		ev.ID, ev.Title, ev.Status, ev.Source, ev.URL, ev.Venue, ev.Date)
	if m := ev.Monitor; m != nil {
		fmt.Fprintf(w, "Monitor: %d tickets", m.Quantity)
		if m.MaxPrice > 0 {
			fmt.Fprintf(w, ", max %d", m.MaxPrice)
		}
		fmt.Fprintln(w)
	}
	for _, c := range ev.Categories {
		fmt.Fprintf(w, "  - %s: %s\n", c.Name, c.Price)
	}
}
