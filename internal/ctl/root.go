// Package ctl implements the imctl admin commands.
package ctl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/matheus3301/imstore/internal/client"
	"github.com/matheus3301/imstore/internal/config"
	"github.com/matheus3301/imstore/internal/profile"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the imctl root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "imctl",
		Short:         "Query and modify a running imstored",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().String("profile", "", "profile name (overrides IMSTORE_PROFILE and config default)")
	cmd.PersistentFlags().String("socket", "", "daemon socket (overrides the profile socket)")
	cmd.PersistentFlags().Duration("timeout", 10*time.Second, "request timeout")

	cmd.AddCommand(
		NewQueryCmd(),
		NewInsertCmd(),
		NewUpdateCmd(),
		NewDeleteCmd(),
		NewTypeCmd(),
		NewWatchCmd(),
		NewStatusCmd(),
		NewTransitionCmd(),
		NewPresenceCmd(),
		NewEnqueueCmd(),
	)
	return cmd
}

// connect dials the daemon selected by the persistent flags.
func connect(cmd *cobra.Command) (*client.Client, error) {
	sock, _ := cmd.Flags().GetString("socket")
	if sock == "" {
		cfg, err := config.Load(profile.ConfigPath())
		if err != nil {
			return nil, err
		}
		flagProfile, _ := cmd.Flags().GetString("profile")
		name := profile.Resolve(flagProfile, cfg)
		if err := profile.ValidateName(name); err != nil {
			return nil, err
		}
		sock = profile.SocketPath(name)
	}
	c, err := client.New(sock)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to daemon at %s: %w", sock, err)
	}
	return c, nil
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return context.WithTimeout(cmd.Context(), timeout)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
