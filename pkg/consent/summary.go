package consent

import (
	"fmt"
	"strings"

	"github.com/gm-agent-org/mcp-guard/pkg/types"
)

// IntentKey correlates approvals that act on the same thing.
func IntentKey(req *types.Request) string {
	switch {
	case req.Category.IsFile():
		return req.Method + ":" + req.Param("path")
	case req.Category == types.CategoryNetFetch:
		return req.Method + ":" + req.Param("url")
	case req.Category == types.CategoryShellExec:
		return req.Method + ":" + req.Param("cmd")
	default:
		return req.Method + ":" + req.CanonicalParams()
	}
}

// Summarize renders a one-line description for reviewers.
func Summarize(req *types.Request) string {
	switch req.Category {
	case types.CategoryFileWrite:
		return fmt.Sprintf("%s (%d bytes)", req.Param("path"), len(req.Param("content")))
	case types.CategoryFileRead:
		return req.Param("path")
	case types.CategoryNetFetch:
		verb := req.Param("method")
		if verb == "" {
			verb = "GET"
		}
		return req.Param("url") + " " + verb
	case types.CategoryShellExec:
		words := strings.Split(req.Param("cmd"), " ")
		if len(words) > 3 {
			words = words[:3]
		}
		return strings.Join(words, " ") + " ..."
	default:
		return req.CanonicalParams()
	}
}
