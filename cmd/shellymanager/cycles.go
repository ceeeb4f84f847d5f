package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nussi649/ShellyManager/internal/audit"
)

func newCyclesCmd(flags *rootFlags) *cobra.Command {
	var (
		filter audit.Filter
		since  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "cycles",
		Short: "List recent fetch cycles, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newStorageApp(cmd.Context(), flags.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			res, err := a.history.List(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("listing cycles: %w", err)
			}
			return printCycles(cmd, res, a.cfg.Location())
		},
	}

	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "maximum number of cycles to list")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "number of cycles to skip")
	cmd.Flags().BoolVar(&filter.WithAbsence, "absent", false, "only cycles where a meter was absent")
	cmd.Flags().DurationVar(&since, "since", 0, "only cycles started within this duration")
	return cmd
}

func printCycles(cmd *cobra.Command, res *audit.ListResult, loc *time.Location) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tID\tDEVICES\tREADINGS\tTOTAL WH\tSTORED\tABSENT")
	for _, c := range res.Cycles {
		absent := make([]string, 0, len(c.Absent))
		for _, ab := range c.Absent {
			absent = append(absent, ab.MeterName)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.2f\t%t\t%s\n",
			c.StartedAt.In(loc).Format(time.DateTime), c.ID, c.Devices, c.Readings,
			c.TotalWh, c.Stored, strings.Join(absent, ","))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d cycles\n", len(res.Cycles), res.Total)
	return nil
}
