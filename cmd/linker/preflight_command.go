package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"seriallinker/internal/ipc"
	"seriallinker/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check directories, camera, decoder, and MES reachability",
		Long: `Check directories, camera, decoder, and MES reachability.

By default the checks run in this process against the loaded configuration.
With --daemon they run inside the running daemon, which sees the same
devices and environment the station loop uses.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var results []preflight.Result
			if remote {
				err := ctx.withClient(func(client *ipc.Client) error {
					resp, err := client.Preflight()
					if err != nil {
						return err
					}
					results = resp.Results
					return nil
				})
				if err != nil {
					return err
				}
			} else {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				results = preflight.RunAll(cmd.Context(), cfg)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			for _, line := range renderSectionHeader("Preflight", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				fmt.Fprintln(stdout, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d of %d preflight checks failed", len(failed), len(results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&remote, "daemon", false, "Run the checks inside the running daemon")
	return cmd
}
