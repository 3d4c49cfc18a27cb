package main

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"linkrelay/internal/config"
	"linkrelay/internal/history"

	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	var (
		limit   int
		summary bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently handled messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadLocal(resolveConfigPath())
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return fmt.Errorf("history is disabled (set history.enabled to true)")
			}

			store, err := history.NewSQLiteStore(cfg.History.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()

			if summary {
				counts, err := store.CountByOutcome(ctx)
				if err != nil {
					return err
				}
				outcomes := make([]string, 0, len(counts))
				for o := range counts {
					outcomes = append(outcomes, o)
				}
				sort.Strings(outcomes)
				fmt.Fprintln(tw, "OUTCOME\tCOUNT")
				for _, o := range outcomes {
					fmt.Fprintf(tw, "%s\t%d\n", o, counts[o])
				}
				return nil
			}

			recs, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "TIME\tCHANNEL\tCHAT\tKIND\tOUTCOME\tDURATION\tERROR")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.CreatedAt.Local().Format(time.DateTime),
					r.Channel, r.ChatID, r.Kind, r.Outcome,
					time.Duration(r.DurationMs)*time.Millisecond,
					r.Error,
				)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records to show")
	cmd.Flags().BoolVar(&summary, "summary", false, "show counts per outcome instead")
	return cmd
}
