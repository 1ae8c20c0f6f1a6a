package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"seriallinker/internal/ipc"
	"seriallinker/internal/resultlog"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var req ipc.HistoryRequest
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent link cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Records) == 0 {
					fmt.Fprintln(stdout, "No cycles recorded")
					return nil
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"Time", "Operator", "Board", "Left", "Right", "Result", "Message"},
					historyRows(resp.Records),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				fmt.Fprintf(stdout, "%d total, %d pass, %d fail (%.1f%% pass)\n",
					resp.Stats.Total, resp.Stats.Passed, resp.Stats.Failed, resp.Stats.PassRate()*100)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&req.Limit, "limit", "n", 20, "Maximum cycles to list")
	cmd.Flags().StringVar(&req.Board, "board", "", "Only show this board type")
	cmd.Flags().BoolVar(&req.FailedOnly, "failed", false, "Only show failed cycles")
	cmd.Flags().IntVar(&req.SinceHours, "since-hours", 0, "Only show cycles from the last N hours")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit records and totals as JSON")
	return cmd
}

func historyRows(records []resultlog.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.Timestamp.Local().Format(time.DateTime),
			r.Operator,
			r.Board,
			r.LeftSN,
			r.RightSN,
			r.Result,
			r.Message,
		})
	}
	return rows
}
