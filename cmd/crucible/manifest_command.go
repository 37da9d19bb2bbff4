package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"crucible/internal/manifest"
)

func newManifestCommand(ctx *commandContext) *cobra.Command {
	var (
		jsonOutput bool
		noWrite    bool
	)

	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Rebuild and show the experiment manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var m *manifest.Manifest
			if noWrite {
				m, err = manifest.Build(cmd.Context(), store, time.Now())
			} else {
				m, err = manifest.Write(cmd.Context(), store, store, time.Now())
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, m)
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, manifest.Render(m, manifest.RenderOptions{Color: shouldColorize(out)}))
			if !noWrite {
				fmt.Fprintf(out, "Manifest written to %s\n", store.ManifestPath())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the manifest as JSON")
	cmd.Flags().BoolVar(&noWrite, "no-write", false, "Do not rewrite manifest.json")
	return cmd
}
