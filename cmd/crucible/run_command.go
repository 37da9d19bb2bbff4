package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"crucible/internal/logging"
	"crucible/internal/manifest"
	"crucible/internal/runner"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		skipPreflight bool
		ping          bool
		jsonOutput    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Create or resume the configured experiment",
		Long: "Run executes every pending unit of the configured experiment. It is idempotent:\n" +
			"rerunning after a crash or interruption resumes where the last run stopped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			result, runErr := runner.Run(cmd.Context(), cfg, logger, runner.Options{
				SkipPreflight: skipPreflight,
				Ping:          ping,
			})
			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := writeJSON(cmd, result); err != nil {
					return err
				}
				return runErr
			}

			s := result.Summary
			if s.ExperimentID != "" {
				fmt.Fprintf(out, "Run %s: %d units executed in %d passes (%s)\n", s.RunID, s.Executed, s.Passes, s.Duration.Round(time.Millisecond))
			}
			if result.Manifest != nil {
				fmt.Fprint(out, manifest.Render(result.Manifest, manifest.RenderOptions{Color: shouldColorize(out)}))
			}
			if errors.Is(runErr, context.Canceled) {
				fmt.Fprintln(out, "Run interrupted; run again to resume")
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip directory, catalog and API key checks")
	cmd.Flags().BoolVar(&ping, "ping", false, "Ping every provider before starting")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the run summary and manifest as JSON")
	return cmd
}
