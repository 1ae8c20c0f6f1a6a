package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"seriallinker/internal/ipc"
)

func newStationCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Resume the station loop in a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Start()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if resp.Message != "" {
					fmt.Fprintln(stdout, resp.Message)
					return nil
				}
				if resp.Started {
					fmt.Fprintln(stdout, "Station started")
				}
				return nil
			})
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Pause the station loop (the daemon keeps running)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Stop(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Station stopped")
				return nil
			})
		},
	}

	var password string
	loginCmd := &cobra.Command{
		Use:   "login <operator>",
		Short: "Log an operator in",
		Long: `Log an operator in against the MES.

Without --password the password is read from the first line of stdin, so
badge readers and scripts can pipe it in.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := password
			if !cmd.Flags().Changed("password") {
				line, err := readSecret(cmd.InOrStdin())
				if err != nil {
					return err
				}
				secret = line
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Login(args[0], secret)
				if err != nil {
					return err
				}
				session := resp.Session
				name := session.OperatorName
				if name == "" {
					name = session.OperatorID
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (board %s)\n", name, session.BoardType)
				return nil
			})
		},
	}
	loginCmd.Flags().StringVarP(&password, "password", "p", "", "Operator password (read from stdin when omitted)")

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "End the operator session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Logout(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				return nil
			})
		},
	}

	boardCmd := &cobra.Command{
		Use:   "board [name]",
		Short: "Show or select the board type",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				stdout := cmd.OutOrStdout()
				if len(args) == 1 {
					resp, err := client.SelectBoard(args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(stdout, "Board set to %s (%s)\n", resp.Board.Name, sidesLabel(resp.Board.DoubleSided))
					return nil
				}
				resp, err := client.Boards()
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(resp.Boards))
				for _, b := range resp.Boards {
					selected := ""
					if b.Name == resp.Selected {
						selected = "*"
					}
					rows = append(rows, []string{selected, b.Name, b.Label, sidesLabel(b.DoubleSided)})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"", "Board", "Label", "Sides"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	return []*cobra.Command{startCmd, stopCmd, loginCmd, logoutCmd, boardCmd}
}

func readSecret(r io.Reader) (string, error) {
	if r == nil {
		return "", errors.New("password required")
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password required (use --password or pipe it on stdin)")
	}
	return line, nil
}

func sidesLabel(doubleSided bool) string {
	if doubleSided {
		return "double"
	}
	return "single"
}
