package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewReloadCmd asks a running gateway to re-read its policy file.
func NewReloadCmd(cfg *ClientConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the policy file of a running gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient(cfg)
			if err != nil {
				return err
			}
			resp, err := cli.ReloadPolicy(commandContext(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reloaded %s (%d rules)\n", resp.Path, resp.Rules)
			return nil
		},
	}
}

// NewStatsCmd prints the traffic counters of a running gateway.
func NewStatsCmd(cfg *ClientConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show traffic counters of a running gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient(cfg)
			if err != nil {
				return err
			}
			s, err := cli.Stats(commandContext(cmd))
			if err != nil {
				return err
			}
			rows := []struct {
				label string
				value int64
			}{
				{"received", s.Received},
				{"forwarded", s.Forwarded},
				{"denied", s.Denied},
				{"asked", s.Asked},
				{"passthrough", s.Passthrough},
				{"rejected", s.Rejected},
				{"pending", int64(s.Pending)},
				{"cached", int64(s.CacheEntries)},
			}
			out := cmd.OutOrStdout()
			for _, r := range rows {
				fmt.Fprintf(out, "%s %d\n", styleSubtitle.Render(fmt.Sprintf("%-11s", r.label)), r.value)
			}
			return nil
		},
	}
}

// NewCacheCmd groups approval cache commands.
func NewCacheCmd(cfg *ClientConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage remembered decisions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget every remembered decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient(cfg)
			if err != nil {
				return err
			}
			n, err := cli.ClearCache(commandContext(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d decisions\n", n)
			return nil
		},
	})
	return cmd
}
