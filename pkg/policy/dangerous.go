package policy

import (
	"regexp"

	"github.com/gm-agent-org/mcp-guard/pkg/types"
)

var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\s+-rf\b`),
	regexp.MustCompile(`(?i)curl\s+https?://`),
	regexp.MustCompile(`(?i)\bDROP\s+TABLE\b`),
	regexp.MustCompile(`(?i)secret\s*[:=]`),
	regexp.MustCompile(`(?i)--password`),
}

// Dangerous reports whether a request's target or arguments look destructive
// or credential-bearing. It only flags requests for reviewers; it never
// changes a decision.
func Dangerous(req *types.Request) bool {
	for _, s := range []string{req.Target, string(req.Params)} {
		for _, re := range dangerousPatterns {
			if re.MatchString(s) {
				return true
			}
		}
	}
	return false
}
