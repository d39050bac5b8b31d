package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/h1v3-io/seatwatch/pkg/protocol"
)

func init() {
	rootCmd.AddCommand(healthCmd, stateCmd, startCmd, stopCmd, criteriaCmd, logsCmd)

	criteriaCmd.Flags().String("match", "", "match text")
	criteriaCmd.Flags().String("venue", "", "venue filter (\"any\" clears it)")
	criteriaCmd.Flags().Int("tickets", 0, "default ticket count")

	logsCmd.Flags().String("level", "info", "minimum level (debug, info, warn, error)")
	logsCmd.Flags().Int("limit", 50, "maximum entries")
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the daemon is up",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var out map[string]string
		if err := newClient().do("GET", "/api/health", nil, &out); err != nil {
			return err
		}
		fmt.Println(out["status"])
		return nil
	},
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show engine state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var snap protocol.Snapshot
		if err := newClient().do("GET", "/api/state", nil, &snap); err != nil {
			return err
		}
		printSnapshot(os.Stdout, snap)
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start monitoring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().do("POST", "/api/start", nil, nil); err != nil {
			return err
		}
		fmt.Println("Monitoring started.")
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop monitoring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().do("POST", "/api/stop", nil, nil); err != nil {
			return err
		}
		fmt.Println("Monitoring stopping.")
		return nil
	},
}

var criteriaCmd = &cobra.Command{
	Use:   "criteria",
	Short: "Show or update search criteria",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		var cur protocol.SearchCriteria
		if err := c.do("GET", "/api/criteria", nil, &cur); err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("match") || flags.Changed("venue") || flags.Changed("tickets") {
			if flags.Changed("match") {
				cur.MatchText, _ = flags.GetString("match")
			}
			if flags.Changed("venue") {
				cur.Venue, _ = flags.GetString("venue")
				if cur.Venue == "any" {
					cur.Venue = ""
				}
			}
			if flags.Changed("tickets") {
				cur.TicketCount, _ = flags.GetInt("tickets")
			}
			if err := c.do("POST", "/api/criteria", cur, &cur); err != nil {
				return err
			}
		}
		printCriteria(os.Stdout, cur)
		return nil
	},
}

type logEntry struct {
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs"`
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent daemon logs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("level")
		limit, _ := cmd.Flags().GetInt("limit")
		q := url.Values{"level": {level}, "limit": {strconv.Itoa(limit)}}

		var entries []logEntry
		if err := newClient().do("GET", "/api/logs?"+q.Encode(), nil, &entries); err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%-5s %s", e.Level, e.Message)
			for k, v := range e.Attrs {
				fmt.Printf(" %s=%v", k, v)
			}
			fmt.Println()
		}
		return nil
	},
}
