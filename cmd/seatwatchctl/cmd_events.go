package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/h1v3-io/seatwatch/pkg/protocol"
)

func init() {
	rootCmd.AddCommand(eventsCmd, historyCmd)
	eventsCmd.AddCommand(eventsListCmd, eventsShowCmd, eventsActivateCmd, eventsProbeCmd)

	eventsListCmd.Flags().String("status", "", "filter by status (pending, active, booked)")
	eventsActivateCmd.Flags().Int("quantity", 0, "tickets to select (default: criteria ticket count)")
	eventsActivateCmd.Flags().Int("max-price", 0, "maximum price per ticket (0 = no limit)")

	historyCmd.Flags().String("event", "", "event ID")
	historyCmd.Flags().String("change", "", "change kind (discovered, categories, activated, booked)")
	historyCmd.Flags().Int("limit", 50, "maximum entries")
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect and act on tracked events",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/api/events"
		if status, _ := cmd.Flags().GetString("status"); status != "" {
			path += "?status=" + url.QueryEscape(status)
		}
		var events []protocol.Event
		if err := newClient().do("GET", path, nil, &events); err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No events.")
			return nil
		}
		printEvents(os.Stdout, events)
		return nil
	},
}

var eventsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ev protocol.Event
		if err := newClient().do("GET", "/api/events/"+url.PathEscape(args[0]), nil, &ev); err != nil {
			return err
		}
		printEvent(os.Stdout, ev)
		return nil
	},
}

var eventsActivateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Start monitoring a pending event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		qty, _ := cmd.Flags().GetInt("quantity")
		maxPrice, _ := cmd.Flags().GetInt("max-price")
		body := map[string]int{"quantity": qty, "max_price": maxPrice}

		var ev protocol.Event
		if err := newClient().do("POST", "/api/events/"+url.PathEscape(args[0])+"/activate", body, &ev); err != nil {
			return err
		}
		fmt.Printf("Monitoring %s (%s) for %d tickets.\n", ev.ID, ev.Title, ev.Monitor.Quantity)
		return nil
	},
}

var eventsProbeCmd = &cobra.Command{
	Use:   "probe <id>",
	Short: "Refresh price categories for an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().do("POST", "/api/events/"+url.PathEscape(args[0])+"/probe", nil, nil); err != nil {
			return err
		}
		fmt.Printf("Probe started for %s; check `seatwatchctl events show %s` shortly.\n", args[0], args[0])
		return nil
	},
}

type journalEntry struct {
	Seq     int64                `json:"seq"`
	EventID string               `json:"event_id"`
	Change  protocol.EventChange `json:"change"`
	Status  protocol.EventStatus `json:"status"`
	At      time.Time            `json:"at"`
	Event   protocol.Event       `json:"event"`
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the event journal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if v, _ := cmd.Flags().GetString("event"); v != "" {
			q.Set("event", v)
		}
		if v, _ := cmd.Flags().GetString("change"); v != "" {
			q.Set("change", v)
		}
		limit, _ := cmd.Flags().GetInt("limit")
		q.Set("limit", strconv.Itoa(limit))

		var entries []journalEntry
		if err := newClient().do("GET", "/api/journal?"+q.Encode(), nil, &entries); err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s  %-10s %-8s %s  %s\n", e.At.Local().Format(time.DateTime), e.Change, e.Status, e.EventID, e.Event.Title)
		}
		return nil
	},
}
