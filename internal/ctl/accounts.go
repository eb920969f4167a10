package ctl

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func parseAccount(s string) (int64, error) {
	acct, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("account: %w", err)
	}
	return acct, nil
}

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <account>",
		Short: "Show an account's connection state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := parseAccount(args[0])
			if err != nil {
				return err
			}
			c, err := connect(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			ctx, cancel := requestContext(cmd)
			defer cancel()

			st, err := c.Status(ctx, acct)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account %d: %s\n", acct, st)
			return nil
		},
	}
}

// NewTransitionCmd creates the transition command.
func NewTransitionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transition <account> <state>",
		Short: "Move an account to OFFLINE, CONNECTING, SUSPENDED or ONLINE",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := parseAccount(args[0])
			if err != nil {
				return err
			}
			c, err := connect(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			ctx, cancel := requestContext(cmd)
			defer cancel()

			st, err := c.Transition(ctx, acct, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account %d: %s\n", acct, st)
			return nil
		},
	}
}

// NewPresenceCmd creates the presence command.
func NewPresenceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presence <account> <mode>",
		Short: "Set an online account's presence (available, away, idle, dnd, invisible, offline)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := parseAccount(args[0])
			if err != nil {
				return err
			}
			mode, err := parsePresence(args[1])
			if err != nil {
				return err
			}
			c, err := connect(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			ctx, cancel := requestContext(cmd)
			defer cancel()

			return c.SetPresence(ctx, acct, mode)
		},
	}
}

// NewEnqueueCmd creates the enqueue command.
func NewEnqueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue <type>",
		Short: "Queue an outgoing reliable message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, _ := cmd.Flags().GetString("data")
			c, err := connect(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			ctx, cancel := requestContext(cmd)
			defer cancel()

			seq, err := c.Enqueue(ctx, args[0], []byte(data))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued as %d\n", seq)
			return nil
		},
	}
	cmd.Flags().String("data", "", "message payload")
	return cmd
}
