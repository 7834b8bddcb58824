package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newStoreCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect the transcript store",
	}
	cmd.AddCommand(newStoreCheckCmd(c), newStoreRecentCmd(c))
	return cmd
}

func newStoreCheckCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Connect to the configured store and print its version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			store, err := openBackend(ctx, c.cfg.Store, c.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			version, err := store.ServerVersion(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "connected to %s, server version %s\n", c.cfg.Store.Driver, version)
			return nil
		},
	}
}

func newStoreRecentCmd(c *cli) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the most recent transcripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			store, err := openBackend(ctx, c.cfg.Store, c.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			transcripts, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED AT\tTRANSCRIPT")
			for _, t := range transcripts {
				fmt.Fprintf(w, "%s\t%s\n", t.CreatedAt.Local().Format(time.DateTime), t.Text)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of transcripts to show")
	return cmd
}
