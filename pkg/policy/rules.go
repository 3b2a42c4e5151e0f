// Package policy decides whether a tool call is allowed, needs a human, or is
// denied, based on ordered allow/ask/deny rules with per-category defaults.
package policy

import (
	"fmt"

	"github.com/gm-agent-org/mcp-guard/pkg/types"
)

// Rule is one policy entry. Tool restricts the rule to a single method; the
// remaining fields are consulted only for the category they apply to.
type Rule struct {
	Tool  string   `yaml:"tool,omitempty" json:"tool,omitempty"`
	Paths []string `yaml:"paths,omitempty" json:"paths,omitempty"` // files.*
	Hosts []string `yaml:"hosts,omitempty" json:"hosts,omitempty"` // net.fetch
	Cmds  []string `yaml:"cmds,omitempty" json:"cmds,omitempty"`   // shell.exec, prefix match
}

// Defaults are the fallback decisions used when no rule matches. Empty fields
// take the built-in value.
type Defaults struct {
	Read    types.Decision `yaml:"read,omitempty" json:"read,omitempty"`
	Write   types.Decision `yaml:"write,omitempty" json:"write,omitempty"`
	Network types.Decision `yaml:"network,omitempty" json:"network,omitempty"`
	Exec    types.Decision `yaml:"exec,omitempty" json:"exec,omitempty"`
}

// BuiltinDefaults is used for any field a policy leaves unset.
var BuiltinDefaults = Defaults{
	Read:    types.DecisionAllow,
	Write:   types.DecisionAsk,
	Network: types.DecisionAsk,
	Exec:    types.DecisionDeny,
}

// For returns the fallback decision for a category. Categories without a
// configurable default always ask.
func (d Defaults) For(c types.Category) types.Decision {
	pick := func(v, builtin types.Decision) types.Decision {
		if v == "" {
			return builtin
		}
		return v
	}
	switch c {
	case types.CategoryFileRead:
		return pick(d.Read, BuiltinDefaults.Read)
	case types.CategoryFileWrite:
		return pick(d.Write, BuiltinDefaults.Write)
	case types.CategoryNetFetch:
		return pick(d.Network, BuiltinDefaults.Network)
	case types.CategoryShellExec:
		return pick(d.Exec, BuiltinDefaults.Exec)
	default:
		return types.DecisionAsk
	}
}

func (d Defaults) validate() error {
	for name, v := range map[string]types.Decision{
		"read": d.Read, "write": d.Write, "network": d.Network, "exec": d.Exec,
	} {
		if v != "" && !v.Valid() {
			return fmt.Errorf("defaults.%s: unknown decision %q", name, v)
		}
	}
	return nil
}

// RuleSet is an immutable snapshot of a policy. It is never modified after it
// has been handed to an Engine; reloads build a new one.
type RuleSet struct {
	Defaults Defaults `json:"defaults"`
	Allow    []Rule   `json:"allow"`
	Ask      []Rule   `json:"ask"`
	Deny     []Rule   `json:"deny"`
}

// DefaultRuleSet has no rules and the built-in defaults.
func DefaultRuleSet() *RuleSet {
	return &RuleSet{Defaults: BuiltinDefaults}
}

// Len returns the total number of rules.
func (rs *RuleSet) Len() int {
	return len(rs.Allow) + len(rs.Ask) + len(rs.Deny)
}

// lists returns the rule lists in evaluation order.
func (rs *RuleSet) lists() []struct {
	decision types.Decision
	rules    []Rule
} {
	return []struct {
		decision types.Decision
		rules    []Rule
	}{
		{types.DecisionAllow, rs.Allow},
		{types.DecisionAsk, rs.Ask},
		{types.DecisionDeny, rs.Deny},
	}
}
