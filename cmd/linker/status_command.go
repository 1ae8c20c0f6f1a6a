package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"seriallinker/internal/daemon"
	"seriallinker/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show station, session, and daily totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Status)
				}
				stdout := cmd.OutOrStdout()
				renderStatus(stdout, resp.Status, shouldColorize(stdout))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit status as JSON")
	return cmd
}

func renderStatus(w io.Writer, st daemon.Status, colorize bool) {
	s := st.Station

	for _, line := range renderSectionHeader("Station", colorize) {
		fmt.Fprintln(w, line)
	}
	if st.Running {
		fmt.Fprintln(w, renderStatusLine("Loop", statusOK, fmt.Sprintf("Running (pid %d)", st.PID), colorize))
	} else {
		fmt.Fprintln(w, renderStatusLine("Loop", statusError, "Stopped", colorize))
	}
	fmt.Fprintln(w, renderStatusLine("Station", statusInfo, fmt.Sprintf("%s (%s)", s.Station, s.Mode), colorize))
	fmt.Fprintln(w, renderStatusLine("State", stateKind(s.State), string(s.State), colorize))
	fmt.Fprintln(w, renderStatusLine("Display", stateKind(s.State), displayText(s.Display.Text, s.Display.Detail), colorize))
	if s.Session != nil {
		operator := s.Session.OperatorID
		if s.Session.OperatorName != "" && s.Session.OperatorName != operator {
			operator = fmt.Sprintf("%s (%s)", s.Session.OperatorName, operator)
		}
		fmt.Fprintln(w, renderStatusLine("Operator", statusOK, operator, colorize))
	} else {
		fmt.Fprintln(w, renderStatusLine("Operator", statusWarn, "Not logged in", colorize))
	}
	fmt.Fprintln(w, renderStatusLine("Board", statusInfo, s.Board, colorize))
	if st.Camera != nil {
		if st.Camera.Present {
			fmt.Fprintln(w, renderStatusLine("Camera", statusOK, "Connected", colorize))
		} else {
			fmt.Fprintln(w, renderStatusLine("Camera", statusError, "Disconnected", colorize))
		}
	}
	fmt.Fprintln(w)

	for _, line := range renderSectionHeader("Inputs", colorize) {
		fmt.Fprintln(w, line)
	}
	if s.InputHealth != nil {
		kind := flagKind(s.InputHealth.Ready)
		detail := s.InputHealth.Detail
		if detail == "" {
			detail = "ready"
		}
		fmt.Fprintln(w, renderStatusLine("Source", kind, fmt.Sprintf("%s: %s", s.InputHealth.Name, detail), colorize))
	}
	fmt.Fprintln(w, renderStatusLine("Board present", flagKind(s.Inputs.BoardPresent), yesNo(s.Inputs.BoardPresent), colorize))
	fmt.Fprintln(w, renderStatusLine("Enable", flagKind(s.Inputs.Enabled), yesNo(s.Inputs.Enabled), colorize))
	fmt.Fprintln(w, renderStatusLine("Light curtain", flagKind(s.Inputs.CurtainClear), clearBlocked(s.Inputs.CurtainClear), colorize))
	fmt.Fprintln(w)

	for _, line := range renderSectionHeader("Today", colorize) {
		fmt.Fprintln(w, line)
	}
	today := st.Today
	kind := statusInfo
	if today.Failed > 0 {
		kind = statusWarn
	}
	fmt.Fprintln(w, renderStatusLine("Cycles", kind,
		fmt.Sprintf("%d total, %d pass, %d fail (%.1f%% pass)", today.Total, today.Passed, today.Failed, today.PassRate()*100),
		colorize))
	if last := s.LastCycle; last != nil {
		result := "PASS"
		lastKind := statusOK
		if !last.Success {
			result = "FAIL"
			lastKind = statusError
		}
		fmt.Fprintln(w, renderStatusLine("Last cycle", lastKind,
			fmt.Sprintf("%s %s at %s: %s", result, last.Board, last.FinishedAt.Local().Format(time.TimeOnly), last.Message),
			colorize))
	}
	fmt.Fprintln(w)

	for _, line := range renderSectionHeader("Paths", colorize) {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w, renderStatusLine("History", statusInfo, st.HistoryPath, colorize))
	fmt.Fprintln(w, renderStatusLine("Log", statusInfo, st.LogPath, colorize))
}

func displayText(text, detail string) string {
	text = strings.TrimSpace(text)
	if detail = strings.TrimSpace(detail); detail != "" {
		return text + " - " + detail
	}
	return text
}

func clearBlocked(clear bool) string {
	if clear {
		return "clear"
	}
	return "blocked"
}
