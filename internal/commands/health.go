package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gm-agent-org/mcp-guard/internal/client"
)

func newClient(cfg *ClientConfig) (*client.Client, error) {
	return client.New(cfg.Server, cfg.APIKey, cfg.Timeout)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// NewHealthCmd creates the health check command.
func NewHealthCmd(cfg *ClientConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that a running gateway's decision API is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient(cfg)
			if err != nil {
				return err
			}
			resp, err := cli.Health(commandContext(cmd))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "status=%s version=%s\n", resp.Status, resp.Version)
			return nil
		},
	}
}
