package policy

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gm-agent-org/mcp-guard/pkg/types"
)

const samplePolicy = `
defaults: {read: allow, write: ask, network: ask, exec: deny}
servers:
  default:
    allow:
      - tool: files.read
        paths: ["~/Projects/**"]
    deny:
      - tool: shell.exec
        cmds: ["sudo "]
allow:
  - tool: net.fetch
    hosts: [api.github.com]
ask:
  - tool: files.write
deny:
  - tool: shell.exec
    cmds: ["rm "]
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParse(t *testing.T) {
	rs, err := Parse([]byte(samplePolicy))
	require.NoError(t, err)

	assert.Equal(t, BuiltinDefaults, rs.Defaults)
	require.Len(t, rs.Allow, 2)
	assert.Equal(t, "files.read", rs.Allow[0].Tool, "servers.default rules come first")
	assert.Equal(t, []string{"api.github.com"}, rs.Allow[1].Hosts)
	assert.Len(t, rs.Ask, 1)
	require.Len(t, rs.Deny, 2)
	assert.Equal(t, []string{"sudo "}, rs.Deny[0].Cmds)
	assert.Equal(t, []string{"rm "}, rs.Deny[1].Cmds)
	assert.Equal(t, 5, rs.Len())
}

func TestParse_Empty(t *testing.T) {
	for _, doc := range []string{"", "\n\n", "# nothing yet\n", "~\n", "null\n"} {
		_, err := Parse([]byte(doc))
		assert.ErrorIs(t, err, ErrEmptyPolicy, "%q", doc)
		assert.ErrorIs(t, err, ErrInvalidPolicy, "%q", doc)
	}

	rs, err := Parse([]byte("{}\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, rs.Len())
	assert.Equal(t, BuiltinDefaults, rs.Defaults)
}

func TestParse_PartialDefaults(t *testing.T) {
	rs, err := Parse([]byte("defaults: {exec: ask}\n"))
	require.NoError(t, err)
	assert.Equal(t, types.DecisionAsk, rs.Defaults.For(types.CategoryShellExec))
	assert.Equal(t, types.DecisionAllow, rs.Defaults.For(types.CategoryFileRead))
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad decision":  "defaults: {read: maybe}\n",
		"unknown field": "allow:\n  - tool: files.read\n    path: [\"/tmp/**\"]\n",
		"not yaml":      "allow: [\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalidPolicy)
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestReloader_KeepsLastKnownGood(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePolicy), 0o644))

	rs, err := LoadFile(path)
	require.NoError(t, err)
	e := NewEngine(rs)
	r := NewReloader(path, e, discardLogger())

	require.NoError(t, os.WriteFile(path, []byte("defaults: {read: nope}\n"), 0o644))
	_, err = r.Reload()
	assert.ErrorIs(t, err, ErrInvalidPolicy)
	assert.Same(t, rs, e.Rules())

	require.NoError(t, os.WriteFile(path, []byte("deny:\n  - tool: files.read\n"), 0o644))
	next, err := r.Reload()
	require.NoError(t, err)
	assert.Same(t, next, e.Rules())
	assert.Equal(t, path, r.Path())
}

func TestReloader_TruncatedFileKeepsRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("deny:\n  - tool: files.read\n"), 0o644))

	rs, err := LoadFile(path)
	require.NoError(t, err)
	e := NewEngine(rs)
	r := NewReloader(path, e, discardLogger())

	require.NoError(t, os.Truncate(path, 0))
	_, err = r.Reload()
	assert.ErrorIs(t, err, ErrEmptyPolicy)
	assert.Same(t, rs, e.Rules())
	assert.Equal(t, 1, e.Rules().Len())

	_, err = LoadFile(path)
	assert.ErrorIs(t, err, ErrEmptyPolicy)
}

func TestReloader_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePolicy), 0o644))

	e := NewEngine(nil)
	r := NewReloader(path, e, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	probe := req("files.read", `{"path":"/tmp/x"}`)
	assert.Equal(t, types.DecisionAllow, e.Decide(probe).Decision)

	// Writes can land before the watch is registered; keep rewriting until seen.
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("deny:\n  - tool: files.read\n"), 0o644)
		return e.Decide(probe).Decision == types.DecisionDeny
	}, 5*time.Second, 50*time.Millisecond)
}
