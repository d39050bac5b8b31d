package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/h1v3-io/seatwatch/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Work with configuration files",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Load and validate a config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Config valid. match=%q platforms=%v cycle=%s journal=%v\n",
			cfg.Search.MatchText, cfg.Watch.Platforms, cfg.Watch.CycleInterval, cfg.Journal.Enabled)
		return nil
	},
}
