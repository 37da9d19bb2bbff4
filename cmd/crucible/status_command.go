package main

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"crucible/internal/manifest"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show experiment progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			exp, err := store.Experiment(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if exp == nil {
				if jsonOutput {
					return writeJSON(cmd, map[string]any{"experiment": nil})
				}
				fmt.Fprintf(out, "No experiment in %s yet; start one with crucible run\n", store.Dir())
				return nil
			}
			counts, err := store.Counts(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, map[string]any{"experiment": exp, "counts": counts})
			}

			colorize := shouldColorize(out)
			printLines(out, renderSectionHeader("Experiment "+exp.Name, colorize)...)
			printLines(out,
				renderStatusLine("ID", statusInfo, exp.ID, colorize),
				renderStatusLine("Fingerprint", statusInfo, exp.Fingerprint, colorize),
				renderStatusLine("State", experimentKind(string(exp.Status)), manifest.Label(string(exp.Status)), colorize),
				renderStatusLine("Completed", statusOK, fmt.Sprintf("%d/%d", counts.Completed, counts.Total), colorize),
				renderStatusLine("Manual review", countKind(counts.ManualReview, statusWarn), strconv.Itoa(counts.ManualReview), colorize),
				renderStatusLine("Failed", countKind(counts.Failed, statusError), strconv.Itoa(counts.Failed), colorize),
				renderStatusLine("Pending", countKind(counts.Remaining(), statusWarn), strconv.Itoa(counts.Remaining()), colorize),
			)
			for _, kind := range slices.Sorted(maps.Keys(counts.FailuresByKind)) {
				n := counts.FailuresByKind[kind]
				printLines(out, renderStatusLine("  "+manifest.Label(kind), statusError, strconv.Itoa(n), colorize))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")
	return cmd
}

func experimentKind(status string) statusKind {
	switch status {
	case "completed":
		return statusOK
	case "interrupted":
		return statusWarn
	default:
		return statusInfo
	}
}

func countKind(n int, nonZero statusKind) statusKind {
	if n == 0 {
		return statusOK
	}
	return nonZero
}
