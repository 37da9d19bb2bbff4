package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"crucible/internal/state"
)

func newUnitsCommand(ctx *commandContext) *cobra.Command {
	var (
		statusFlags []string
		modelFilter string
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "units",
		Short: "List test units",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(statusFlags)
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			units, err := store.Units(cmd.Context(), statuses...)
			if err != nil {
				return err
			}
			units = filterByModel(units, modelFilter)
			if jsonOutput {
				return writeJSON(cmd, units)
			}
			out := cmd.OutOrStdout()
			if len(units) == 0 {
				fmt.Fprintln(out, "No units match")
				return nil
			}
			rows := make([][]string, 0, len(units))
			for _, u := range units {
				rows = append(rows, []string{
					strconv.Itoa(u.Ordinal),
					u.TestID,
					string(u.Status),
					strconv.Itoa(u.RetryCount),
					u.FailureKind,
					yesNo(u.ManualReview),
				})
			}
			fmt.Fprintln(out, renderTable([]column{
				{header: "#", right: true},
				{header: "Test ID"},
				{header: "Status"},
				{header: "Retries", right: true},
				{header: "Failure"},
				{header: "Review"},
			}, rows, shouldColorize(out)))
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (pending, in_progress, completed, failed)")
	cmd.Flags().StringVarP(&modelFilter, "model", "m", "", "Filter by model id")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output units as JSON")
	return cmd
}

func parseStatuses(values []string) ([]state.Status, error) {
	statuses := make([]state.Status, 0, len(values))
	for _, value := range values {
		status, ok := state.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func filterByModel(units []state.Unit, model string) []state.Unit {
	model = strings.TrimSpace(model)
	if model == "" {
		return units
	}
	out := units[:0]
	for _, u := range units {
		if u.ModelID == model {
			out = append(out, u)
		}
	}
	return out
}
