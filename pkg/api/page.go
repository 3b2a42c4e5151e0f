package api

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gm-agent-org/mcp-guard/pkg/api/middleware"
	"github.com/gm-agent-org/mcp-guard/pkg/consent"
)

var pageTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="5">
<title>mcp-guard approvals</title>
<style>
body { font-family: sans-serif; margin: 2em; }
.item { border: 1px solid #ccc; border-radius: 4px; padding: 0.8em; margin-bottom: 0.8em; }
.danger { border-color: #c00; }
.meta { color: #666; font-size: 0.9em; }
pre { background: #f6f6f6; padding: 0.5em; overflow-x: auto; }
</style>
</head>
<body>
<h1>Pending approvals</h1>
{{if not .Approvals}}<p>Nothing is waiting for a decision.</p>{{end}}
{{range .Approvals}}
<div class="item{{if .Dangerous}} danger{{end}}">
  <div><strong>{{.Request.Method}}</strong> {{.Summary}}{{if .Dangerous}} <strong>(dangerous)</strong>{{end}}</div>
  <div class="meta">{{.ID}} &middot; {{.CreatedAt.Format "15:04:05"}}</div>
  <pre>{{printf "%s" .Request.Params}}</pre>
  <form method="post" action="/decide/{{.ID}}?approve=1{{if $.Key}}&amp;key={{$.Key}}{{end}}" style="display:inline"><button>Approve</button></form>
  <form method="post" action="/decide/{{.ID}}?deny=1{{if $.Key}}&amp;key={{$.Key}}{{end}}" style="display:inline"><button>Deny</button></form>
</div>
{{end}}
</body>
</html>
`))

type pageData struct {
	Approvals []consent.Approval
	Key       string
}

func (s *Server) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index", pageData{
		Approvals: s.backend.Approvals.List(),
		Key:       c.Query(middleware.APIKeyQuery),
	})
}
