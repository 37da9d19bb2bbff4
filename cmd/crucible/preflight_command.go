package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"crucible/internal/preflight"
	"crucible/internal/runner"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var ping bool

	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check directories, catalog files and provider keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts := preflight.Options{}
			if ping {
				providers, err := runner.BuildProviders(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				opts.Providers = providers
			}
			results := preflight.RunAll(cmd.Context(), cfg, opts)

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			printLines(out, renderSectionHeader("Preflight", colorize)...)
			failed := 0
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
					failed++
				}
				printLines(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}
			if failed > 0 {
				return fmt.Errorf("%d preflight check(s) failed", failed)
			}
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&ping, "ping", false, "Send a tiny request to every provider")
	return cmd
}
