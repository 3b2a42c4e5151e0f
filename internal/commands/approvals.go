package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gm-agent-org/mcp-guard/pkg/consent"
)

// NewApprovalsCmd lists pending approvals.
func NewApprovalsCmd(cfg *ClientConfig) *cobra.Command {
	return &cobra.Command{
		Use:     "approvals",
		Aliases: []string{"pending"},
		Short:   "List requests waiting for a decision",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient(cfg)
			if err != nil {
				return err
			}
			list, err := cli.ListApprovals(commandContext(cmd))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, styleSubtitle.Render("Nothing is waiting for a decision."))
				return nil
			}
			for _, a := range list {
				fmt.Fprintln(out, renderApproval(a, time.Now()))
			}
			return nil
		},
	}
}

func renderApproval(a consent.Approval, now time.Time) string {
	var b strings.Builder
	b.WriteString(styleMethod.Render(a.Request.Method))
	b.WriteString(" ")
	b.WriteString(a.Summary)
	if a.Dangerous {
		b.WriteString(" ")
		b.WriteString(styleDanger.Render("dangerous"))
	}
	b.WriteString("\n")
	age := now.Sub(a.CreatedAt).Truncate(time.Second)
	b.WriteString(styleSubtitle.Render(fmt.Sprintf("%s  waiting %s", a.ID, age)))

	card := styleCard
	if a.Dangerous {
		card = styleDangerCard
	}
	return card.Render(b.String())
}

// NewDecideCmd creates the approve or deny command.
func NewDecideCmd(cfg *ClientConfig, approve bool) *cobra.Command {
	use, short := "deny <approval-id>...", "Deny pending requests"
	if approve {
		use, short = "approve <approval-id>...", "Approve pending requests"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient(cfg)
			if err != nil {
				return err
			}
			for _, id := range args {
				resp, err := cli.Decide(commandContext(cmd), id, approve)
				if err != nil {
					return err
				}
				style := styleDanger
				if resp.Status == consent.StatusApproved {
					style = styleMethod.Foreground(colorSuccess)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", resp.ID, style.Render(string(resp.Status)))
			}
			return nil
		},
	}
}
