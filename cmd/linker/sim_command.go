package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"seriallinker/internal/ipc"
)

func newSimCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sim <board|start|enable|curtain|blank|blank-left|blank-right>",
		Short: "Drive the simulated inputs of a simulate-mode station",
		Long: `Drive the simulated inputs of a simulate-mode station.

  board        toggle board presence
  start        press the start button once
  enable       toggle the enable switch
  curtain      toggle the light curtain
  blank        make the next capture of both cameras fail to decode
  blank-left   make the next left capture fail to decode
  blank-right  make the next right capture fail to decode`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"board", "start", "enable", "curtain", "blank", "blank-left", "blank-right"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Sim(args[0])
				if err != nil {
					return err
				}
				in := resp.Result.Inputs
				fmt.Fprintf(cmd.OutOrStdout(), "%s applied: board=%s enable=%s curtain=%s\n",
					resp.Result.Action,
					yesNo(in.BoardPresent),
					yesNo(in.Enabled),
					clearBlocked(in.CurtainClear),
				)
				return nil
			})
		},
	}
}
