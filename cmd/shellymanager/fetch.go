package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nussi649/ShellyManager/internal/fetch"
	"github.com/Nussi649/ShellyManager/internal/scheduler"
)

func newFetchCmd(flags *rootFlags) *cobra.Command {
	var (
		wait       time.Duration
		atBoundary bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run exactly one fetch cycle",
		Long: `Run exactly one fetch cycle and print its result as JSON.

Intervals are opened when the meters are loaded, so without --wait or
--boundary the cycle covers only the few milliseconds of startup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), flags.configPath, appOptions{mirrors: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if atBoundary {
				wait = scheduler.Delay(time.Now())
			}
			if err := sleepContext(cmd.Context(), wait); err != nil {
				return err
			}

			res := a.runCycle(context.WithoutCancel(cmd.Context()))
			return writeCycleResult(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 0, "time to accumulate energy before closing the intervals")
	cmd.Flags().BoolVar(&atBoundary, "boundary", false, "wait until the next quarter-hour boundary (overrides --wait)")
	return cmd
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writeCycleResult(w io.Writer, res fetch.CycleResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encoding cycle result: %w", err)
	}
	return nil
}
