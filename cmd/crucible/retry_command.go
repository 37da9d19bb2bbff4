package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"crucible/internal/runner"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [test-id...]",
		Short: "Re-enqueue failed units with a fresh retry budget",
		Long:  "Retry moves failed units back to pending. Without arguments every failed unit is re-enqueued.\nThe next crucible run executes them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var requeued int64
			err = runner.WithLock(store, func() error {
				var reqErr error
				requeued, reqErr = store.Requeue(cmd.Context(), args...)
				return reqErr
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if requeued == 0 {
				fmt.Fprintln(out, "No failed units to retry")
				return nil
			}
			fmt.Fprintf(out, "Re-enqueued %d failed unit(s); run crucible run to execute them\n", requeued)
			return nil
		},
	}
}
