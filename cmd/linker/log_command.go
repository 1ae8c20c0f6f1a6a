package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"seriallinker/internal/ipc"
	"seriallinker/internal/logging"
	"seriallinker/internal/logs"
	"seriallinker/internal/resultlog"
)

const followWait = 5 * time.Second

type logOptions struct {
	lines   int
	follow  bool
	filter  string
	results bool
	events  bool
}

func newLogCommand(ctx *commandContext) *cobra.Command {
	var opts logOptions

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show daemon logs, buffered events, or today's link results",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.results && opts.events {
				return errors.New("--results and --events are mutually exclusive")
			}
			switch {
			case opts.results:
				return tailResults(cmd, ctx, opts)
			case opts.events:
				return ctx.withClient(func(client *ipc.Client) error {
					return streamEvents(cmd, client, opts)
				})
			default:
				return ctx.withClient(func(client *ipc.Client) error {
					return tailDaemonLog(cmd, client, opts)
				})
			}
		},
	}
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Only show lines containing this text (case-insensitive)")
	cmd.Flags().BoolVar(&opts.results, "results", false, "Tail today's link result CSV instead of the daemon log")
	cmd.Flags().BoolVar(&opts.events, "events", false, "Show structured events from the daemon's in-memory buffer")
	return cmd
}

func tailDaemonLog(cmd *cobra.Command, client *ipc.Client, opts logOptions) error {
	out := cmd.OutOrStdout()
	resp, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: opts.lines, Filter: opts.filter})
	if err != nil {
		return err
	}
	printLines(out, resp.Lines)
	if !opts.follow {
		return nil
	}
	offset := resp.Offset
	for {
		if err := cmd.Context().Err(); err != nil {
			return nil
		}
		next, err := client.LogTail(ipc.LogTailRequest{
			Offset:     offset,
			Follow:     true,
			WaitMillis: int(followWait / time.Millisecond),
			Filter:     opts.filter,
		})
		if err != nil {
			return err
		}
		printLines(out, next.Lines)
		offset = next.Offset
	}
}

func tailResults(cmd *cobra.Command, ctx *commandContext, opts logOptions) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	path := resultlog.NewDailyLog(cfg.Paths.ResultDir).PathFor(resultlog.Entry{Timestamp: time.Now()})
	out := cmd.OutOrStdout()
	runCtx := cmd.Context()

	res, err := logs.Tail(runCtx, path, logs.TailOptions{Offset: -1, Limit: opts.lines, Filter: opts.filter})
	if err != nil {
		return err
	}
	if len(res.Lines) == 0 && !opts.follow {
		fmt.Fprintf(out, "No results in %s\n", path)
		return nil
	}
	printLines(out, res.Lines)
	for opts.follow {
		res, err = logs.Tail(runCtx, path, logs.TailOptions{Offset: res.Offset, Follow: true, Wait: followWait, Filter: opts.filter})
		if errors.Is(err, context.Canceled) || runCtx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		printLines(out, res.Lines)
	}
	return nil
}

func streamEvents(cmd *cobra.Command, client *ipc.Client, opts logOptions) error {
	out := cmd.OutOrStdout()
	resp, err := client.Events(ipc.EventsRequest{})
	if err != nil {
		return err
	}
	events := resp.Events
	if opts.lines > 0 && len(events) > opts.lines {
		events = events[len(events)-opts.lines:]
	}
	printEvents(out, events, opts.filter)
	if !opts.follow {
		return nil
	}
	after := resp.Next
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case <-ticker.C:
		}
		next, err := client.Events(ipc.EventsRequest{After: after})
		if err != nil {
			return err
		}
		printEvents(out, next.Events, opts.filter)
		if next.Next > after {
			after = next.Next
		}
	}
}

func printLines(w io.Writer, lines []string) {
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}

func printEvents(w io.Writer, events []logging.Event, filter string) {
	filter = strings.ToLower(strings.TrimSpace(filter))
	for _, evt := range events {
		line := formatEvent(evt)
		if filter != "" && !strings.Contains(strings.ToLower(line), filter) {
			continue
		}
		fmt.Fprintln(w, line)
	}
}

func formatEvent(evt logging.Event) string {
	var b strings.Builder
	b.WriteString(evt.Timestamp.Local().Format(time.TimeOnly))
	b.WriteByte(' ')
	b.WriteString(strings.ToUpper(evt.Level))
	if evt.Component != "" {
		fmt.Fprintf(&b, " [%s]", evt.Component)
	}
	b.WriteByte(' ')
	b.WriteString(evt.Message)
	if evt.State != "" {
		fmt.Fprintf(&b, " state=%s", evt.State)
	}
	if evt.CycleID != "" {
		fmt.Fprintf(&b, " cycle=%s", evt.CycleID)
	}
	return b.String()
}
