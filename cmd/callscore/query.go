package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func consensusCmd(rt *cli) *cobra.Command {
	var maxAgeDays int
	cmd := &cobra.Command{
		Use:   "consensus <ticker>",
		Short: "Print the credibility-weighted consensus for a ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc := rt.service()
			if err := svc.Init(ctx); err != nil {
				return err
			}
			defer svc.Stop(context.Background())

			res, err := svc.WeightedConsensus(ctx, args[0], maxAgeDays)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s confidence=%.3f participants=%d\n",
				res.Ticker, res.Consensus, res.Confidence, len(res.Participants))
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, p := range res.Participants {
				fmt.Fprintf(tw, "  %s\t%s\tscore=%.2f\tweight=%.3f\n", p.AnalystID, p.Action, p.Score, p.Weight)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&maxAgeDays, "max-age-days", 0, "only count calls opened within this many days (0 uses the configured window)")
	return cmd
}

func analystsCmd(rt *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analysts",
		Short: "Query analysts",
	}

	var (
		limit   int
		orderBy string
	)
	top := &cobra.Command{
		Use:   "top",
		Short: "Print the analyst leaderboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc := rt.service()
			if err := svc.Init(ctx); err != nil {
				return err
			}
			defer svc.Stop(context.Background())

			list, err := svc.ListTopAnalysts(ctx, limit, orderBy)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tID\tNAME\tSCORE\tCALLS\tTIER")
			for i, a := range list {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%d\t%s\n", i+1, a.ID, a.DisplayName, a.Score, a.LifetimeCalls, a.Tier)
			}
			return tw.Flush()
		},
	}
	top.Flags().IntVarP(&limit, "limit", "n", 10, "number of analysts")
	top.Flags().StringVar(&orderBy, "order-by", "score", "score or lifetimeCalls")
	cmd.AddCommand(top)
	return cmd
}
