package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nussi649/ShellyManager/internal/bridges"
	"github.com/Nussi649/ShellyManager/internal/meter"
)

func newMetersCmd(flags *rootFlags) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "meters",
		Short: "List the active meters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newStorageApp(cmd.Context(), flags.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			var meters []meter.Meter
			if all {
				meters, err = a.repo.ListAll(cmd.Context())
			} else {
				meters, err = a.repo.ListActive(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("listing meters: %w", err)
			}

			return printMeters(cmd, meters)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include inactive meters")
	return cmd
}

func printMeters(cmd *cobra.Command, meters []meter.Meter) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tFAMILY\tADDRESS\tACTIVE\tLAST FETCHED")
	for _, m := range meters {
		last := "never"
		if m.LastFetchedAt != nil {
			last = m.LastFetchedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%s\n",
			m.ID, m.Name, bridges.Family(m.Address), m.Address, m.Active, last)
	}
	return tw.Flush()
}
