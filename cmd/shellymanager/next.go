package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nussi649/ShellyManager/internal/scheduler"
)

func newNextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Print the next quarter-hour boundary and the delay until it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printNext(cmd, time.Now())
			return nil
		},
	}
}

func printNext(cmd *cobra.Command, now time.Time) {
	next := scheduler.NextBoundary(now)
	fmt.Fprintf(cmd.OutOrStdout(), "next boundary: %s\ndelay: %s\n",
		next.Format(time.RFC3339), scheduler.Delay(now))
}
