package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Nussi649/ShellyManager/internal/bridges"
	"github.com/Nussi649/ShellyManager/internal/meter"
)

func newStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Query every active meter's device status and print JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), flags.configPath, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			entries := queryStatus(cmd.Context(), a.registry.All(), a.cfg.GetDeviceTimeout(), a.cfg.Fetch.MaxConcurrency)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(entries); err != nil {
				return fmt.Errorf("encoding status: %w", err)
			}
			return nil
		},
	}
}

// queryStatus asks every adapter for its status concurrently. A failing
// device is reported with its error rather than failing the command.
func queryStatus(ctx context.Context, adapters []meter.Adapter, timeout time.Duration, limit int) []meter.Status {
	entries := make([]meter.Status, len(adapters))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, ad := range adapters {
		i, ad := i, ad
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()

			st, err := ad.Status(callCtx)
			if err != nil {
				m := ad.Meter()
				if st.Name == "" {
					st.Name = m.Name
					st.Address = m.Address
					st.Family = bridges.Family(m.Address)
				}
				st.Error = err.Error()
			}
			entries[i] = st
			return nil
		})
	}
	g.Wait() //nolint:errcheck // goroutines never return errors
	return entries
}
