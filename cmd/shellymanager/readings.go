package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nussi649/ShellyManager/internal/fetch"
	"github.com/Nussi649/ShellyManager/internal/meter"
)

func newReadingsCmd(flags *rootFlags) *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "readings <meter>",
		Short: "List stored readings of one meter, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newStorageApp(cmd.Context(), flags.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := a.repo.GetByName(cmd.Context(), args[0])
			if errors.Is(err, meter.ErrMeterNotFound) {
				return fmt.Errorf("meter %q not found", args[0])
			}
			if err != nil {
				return err
			}

			from := time.Now().Add(-since).In(a.cfg.Location()).Format(fetch.IntervalStartLayout)
			readings, err := a.repo.ReadingsSince(cmd.Context(), m.ID, from)
			if err != nil {
				return fmt.Errorf("listing readings: %w", err)
			}
			return printReadings(cmd, readings)
		},
	}

	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "only intervals started within this duration")
	return cmd
}

func printReadings(cmd *cobra.Command, readings []meter.Reading) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INTERVAL START\tLENGTH\tWH")
	var total float64
	for _, r := range readings {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\n", r.IntervalStart, time.Duration(r.IntervalLength)*time.Second, r.ConsumptionWh)
		total += r.ConsumptionWh
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d readings, %.2f Wh\n", len(readings), total)
	return nil
}
