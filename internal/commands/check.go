package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gm-agent-org/mcp-guard/pkg/config"
	"github.com/gm-agent-org/mcp-guard/pkg/consent"
	"github.com/gm-agent-org/mcp-guard/pkg/policy"
	"github.com/gm-agent-org/mcp-guard/pkg/types"
)

// NewCheckCmd creates the offline policy check command.
func NewCheckCmd(opts *gatewayOptions) *cobra.Command {
	var policyPath string
	cmd := &cobra.Command{
		Use:   "check <method> [params-json]",
		Short: "Show how the policy decides a request",
		Example: `  mcp-guard check files.read '{"path":"~/Projects/app/main.go"}'
  mcp-guard check --policy policy.yaml shell.exec '{"cmd":"rm -rf /"}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := policyPath
			if !cmd.Flags().Changed("policy") {
				cfg, err := config.Load(opts.configPath)
				if err != nil {
					return err
				}
				path = cfg.Policy
			}

			rules := policy.DefaultRuleSet()
			if path != "" {
				rs, err := policy.LoadFile(path)
				if err != nil {
					return err
				}
				rules = rs
			}

			var params json.RawMessage
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return errors.New("params must be valid JSON")
				}
				params = json.RawMessage(args[1])
			}

			req := types.NewRequest(nil, args[0], params)
			verdict := policy.NewEngine(rules).Decide(req)
			printVerdict(cmd, path, req, verdict)
			return nil
		},
	}
	cmd.Flags().StringVarP(&policyPath, "policy", "p", "", "Policy file (YAML); defaults to the configured policy")
	return cmd
}

func printVerdict(cmd *cobra.Command, path string, req *types.Request, v policy.Verdict) {
	if path == "" {
		path = "(built-in defaults)"
	}
	dangerous := "no"
	if policy.Dangerous(req) {
		dangerous = styleDanger.Render("yes")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", styleMethod.Render(req.Method), req.Target)
	fmt.Fprintf(&b, "%s %s %s\n", styleSubtitle.Render("decision "), decisionStyle(v.Decision).Render(string(v.Decision)), styleSubtitle.Render("("+string(v.Source)+")"))
	fmt.Fprintf(&b, "%s %s\n", styleSubtitle.Render("category "), req.Category)
	fmt.Fprintf(&b, "%s %s\n", styleSubtitle.Render("summary  "), consent.Summarize(req))
	fmt.Fprintf(&b, "%s %s\n", styleSubtitle.Render("dangerous"), dangerous)
	fmt.Fprintf(&b, "%s %s\n", styleSubtitle.Render("policy   "), path)
	fmt.Fprint(cmd.OutOrStdout(), b.String())
}
