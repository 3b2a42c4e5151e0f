package policy

import (
	"os"
	"sync/atomic"

	"github.com/gm-agent-org/mcp-guard/pkg/types"
)

// Source names what produced a verdict.
type Source string

const (
	SourceCache   Source = "cache"
	SourceRule    Source = "rule"
	SourceDefault Source = "default"
)

// Verdict is the outcome of Engine.Decide.
type Verdict struct {
	Decision types.Decision `json:"decision"`
	Source   Source         `json:"source"`
}

// Cache is the read side of the approval cache.
type Cache interface {
	Get(req *types.Request) (types.Decision, bool)
}

// Engine evaluates requests against the active rule set. Decide may run
// concurrently with Swap; each call sees one complete snapshot.
type Engine struct {
	rules atomic.Pointer[RuleSet]
	cache Cache
	home  string
	globs globCache
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCache consults c before any rule is evaluated.
func WithCache(c Cache) EngineOption {
	return func(e *Engine) { e.cache = c }
}

// WithHomeDir sets the directory "~/" expands to. The default is the current
// user's home directory.
func WithHomeDir(dir string) EngineOption {
	return func(e *Engine) { e.home = dir }
}

// NewEngine creates an engine for rs. A nil rs means DefaultRuleSet.
func NewEngine(rs *RuleSet, opts ...EngineOption) *Engine {
	e := &Engine{}
	if home, err := os.UserHomeDir(); err == nil {
		e.home = home
	}
	for _, opt := range opts {
		opt(e)
	}
	if rs == nil {
		rs = DefaultRuleSet()
	}
	e.rules.Store(rs)
	return e
}

// Rules returns the active snapshot. Callers must not modify it.
func (e *Engine) Rules() *RuleSet {
	return e.rules.Load()
}

// Swap installs rs as the active snapshot and returns the previous one.
func (e *Engine) Swap(rs *RuleSet) *RuleSet {
	if rs == nil {
		rs = DefaultRuleSet()
	}
	return e.rules.Swap(rs)
}

// Decide classifies req. A live cache entry wins; otherwise the allow, ask and
// deny lists are searched in that order and the first matching rule decides.
// With no match the category default applies.
func (e *Engine) Decide(req *types.Request) Verdict {
	if e.cache != nil {
		if d, ok := e.cache.Get(req); ok {
			return Verdict{Decision: d, Source: SourceCache}
		}
	}

	rs := e.rules.Load()
	for _, list := range rs.lists() {
		for _, rule := range list.rules {
			if e.matches(rule, req) {
				return Verdict{Decision: list.decision, Source: SourceRule}
			}
		}
	}
	return Verdict{Decision: rs.Defaults.For(req.Category), Source: SourceDefault}
}
