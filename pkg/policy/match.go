package policy

import (
	"net"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/gm-agent-org/mcp-guard/pkg/types"
)

// matches reports whether rule applies to req. A rule without a field for the
// request's category matches on its tool filter alone.
func (e *Engine) matches(rule Rule, req *types.Request) bool {
	if rule.Tool != "" && rule.Tool != req.Method {
		return false
	}
	switch {
	case req.Category.IsFile() && len(rule.Paths) > 0:
		path := req.Param("path")
		for _, pattern := range rule.Paths {
			if e.globs.match(path, pattern, e.home) {
				return true
			}
		}
		return false
	case req.Category == types.CategoryNetFetch && len(rule.Hosts) > 0:
		host, ok := URLHost(req.Param("url"))
		return ok && slices.Contains(rule.Hosts, host)
	case req.Category == types.CategoryShellExec && len(rule.Cmds) > 0:
		cmd := req.Param("cmd")
		for _, prefix := range rule.Cmds {
			if strings.HasPrefix(cmd, prefix) {
				return true
			}
		}
		return false
	}
	return true
}

// URLHost returns the host[:port] of an absolute URL, lower-cased, with the
// scheme's default port dropped.
func URLHost(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.ToLower(u.Host)
	if h, port, err := net.SplitHostPort(host); err == nil {
		if (u.Scheme == "https" && port == "443") || (u.Scheme == "http" && port == "80") {
			host = h
		}
	}
	return host, true
}

// MatchPath reports whether path matches a policy glob. A leading "~/" is
// expanded to home on both sides. "/**" at the end matches by prefix, any other
// "*" matches any run of characters, and patterns without "*" compare equal.
func MatchPath(path, pattern, home string) bool {
	var g globCache
	return g.match(path, pattern, home)
}

func expandHome(p, home string) string {
	if home == "" {
		return p
	}
	if rest, ok := strings.CutPrefix(p, "~/"); ok {
		return strings.TrimSuffix(home, "/") + "/" + rest
	}
	return p
}

// globCache memoizes compiled wildcard patterns.
type globCache struct {
	m sync.Map // map[string]*regexp.Regexp
}

func (g *globCache) match(path, pattern, home string) bool {
	if path == "" || pattern == "" {
		return false
	}
	path = expandHome(path, home)
	pattern = expandHome(pattern, home)

	if base, ok := strings.CutSuffix(pattern, "/**"); ok {
		return strings.HasPrefix(path, base)
	}
	if strings.Contains(pattern, "*") {
		return g.compile(pattern).MatchString(path)
	}
	return path == pattern
}

func (g *globCache) compile(pattern string) *regexp.Regexp {
	if re, ok := g.m.Load(pattern); ok {
		return re.(*regexp.Regexp)
	}
	expr := "^" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*") + "$"
	re := regexp.MustCompile(expr)
	g.m.Store(pattern, re)
	return re
}
