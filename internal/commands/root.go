package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gm-agent-org/mcp-guard/pkg/api"
	"github.com/gm-agent-org/mcp-guard/pkg/config"
)

const (
	defaultServer = "http://" + api.DefaultAddr
)

// ExitError carries the downstream server's exit code out of Execute.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("server exited with code %d", e.Code)
}

// ClientConfig holds settings for commands that talk to a running gateway.
type ClientConfig struct {
	Server  string
	APIKey  string
	Timeout time.Duration
}

// NewRootCmd builds the root command with shared flags.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	cfg := &ClientConfig{}
	opts := &gatewayOptions{}

	cmd := &cobra.Command{
		Use:   "mcp-guard [flags] -- <server command> [args...]",
		Short: "Policy gateway for MCP servers",
		Long: `mcp-guard runs an MCP server as a child process and sits on its stdio.
Every tool call from the client is checked against a policy and is forwarded,
denied, or held until a reviewer approves it through the decision API.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadClientConfig(v, opts.configPath, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("no server command given; usage: %s", cmd.Use)
			}
			return runGateway(cmd, opts, args)
		},
	}
	// Everything after the server command belongs to the server.
	cmd.Flags().SetInterspersed(false)
	opts.register(cmd)

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	pf.StringP("server", "s", defaultServer, "Decision API base URL (client commands)")
	pf.String("api-key", "", "API key for the decision API (client commands)")
	pf.Duration("timeout", 10*time.Second, "HTTP request timeout (client commands)")

	_ = v.BindPFlag("http.addr", pf.Lookup("server"))
	_ = v.BindPFlag("http.api_key", pf.Lookup("api-key"))
	_ = v.BindPFlag("timeout", pf.Lookup("timeout"))

	cmd.AddCommand(NewVersionCmd())
	cmd.AddCommand(NewCheckCmd(opts))
	cmd.AddCommand(NewHealthCmd(cfg))
	cmd.AddCommand(NewApprovalsCmd(cfg))
	cmd.AddCommand(NewDecideCmd(cfg, true))
	cmd.AddCommand(NewDecideCmd(cfg, false))
	cmd.AddCommand(NewReloadCmd(cfg))
	cmd.AddCommand(NewStatsCmd(cfg))
	cmd.AddCommand(NewCacheCmd(cfg))

	return cmd
}

// loadClientConfig layers the shared config file, GUARD_* environment and
// flags. The client reads the same http.addr and http.api_key the gateway
// serves with.
func loadClientConfig(v *viper.Viper, path string, cfg *ClientConfig) error {
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path = config.ResolvePath(path); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.Server = v.GetString("http.addr")
	cfg.APIKey = v.GetString("http.api_key")
	cfg.Timeout = v.GetDuration("timeout")
	return nil
}
