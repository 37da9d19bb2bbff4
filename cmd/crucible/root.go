package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := newCommandContext(&configFlag)

	root := &cobra.Command{
		Use:   "crucible",
		Short: "Resilient LLM batch-experiment runner",
		Long: "crucible runs every scenario x constitution x model unit of an experiment, " +
			"checkpointing each layer so an interrupted run resumes where it stopped.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
	}
	root.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	for _, build := range []func(*commandContext) *cobra.Command{
		newRunCommand,
		newStatusCommand,
		newManifestCommand,
		newUnitsCommand,
		newRetryCommand,
		newPreflightCommand,
		newTestNotifyCommand,
		newConfigCommand,
	} {
		root.AddCommand(build(ctx))
	}
	return root
}
