package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func evaluateCmd(rt *cli) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run one evaluation pass and print its summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at must be RFC3339: %w", err)
				}
				if t.After(now) {
					return fmt.Errorf("--at %s is in the future", at)
				}
				now = t
			}

			ctx := cmd.Context()
			svc := rt.service()
			if err := svc.Init(ctx); err != nil {
				return err
			}
			defer svc.Stop(context.Background())

			res, err := svc.RunEvaluator(ctx, now)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "evaluated=%d pending=%d skipped=%d errors=%d took=%s\n",
				res.Evaluated, res.Pending, res.Skipped, len(res.Errors), res.Took.Round(time.Millisecond))
			for _, e := range res.Errors {
				fmt.Fprintf(out, "  %v\n", e)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluation instant (RFC3339); defaults to now")
	return cmd
}
