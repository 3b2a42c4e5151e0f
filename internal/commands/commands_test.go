package commands

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gm-agent-org/mcp-guard/pkg/api"
	"github.com/gm-agent-org/mcp-guard/pkg/approval"
	"github.com/gm-agent-org/mcp-guard/pkg/config"
	"github.com/gm-agent-org/mcp-guard/pkg/consent"
	"github.com/gm-agent-org/mcp-guard/pkg/jsonrpc"
	"github.com/gm-agent-org/mcp-guard/pkg/types"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found")
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// isolate keeps tests away from the developer's ~/.mcp-guard and GUARD_* env.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, kv := range os.Environ() {
		if k, _, _ := strings.Cut(kv, "="); strings.HasPrefix(k, config.EnvPrefix+"_") {
			t.Setenv(k, "")
			os.Unsetenv(k)
		}
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(""))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Protocol = "ndjson"
	cfg.Policy = ""
	cfg.HTTP.Enable = false
	cfg.AuditLog = filepath.Join(t.TempDir(), "audit.log")
	return cfg
}

func TestServe_EchoServer(t *testing.T) {
	requireShell(t)
	cfg := testConfig(t)

	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"files.read","params":{"path":"/tmp/a"}}`,
		`{"jsonrpc":"2.0","id":2,"method":"shell.exec","params":{"cmd":"rm -rf /"}}`,
		"",
	}, "\n")
	var out, stderr bytes.Buffer

	// The server echoes every request back as its response.
	code, err := serve(t.Context(), cfg, quietLogger(), []string{"sh", "-c", "cat"}, stdio{
		in:     strings.NewReader(in),
		out:    &out,
		errOut: &stderr,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	var lines []string
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.Len(t, lines, 2)

	var sawEcho, sawDenial bool
	for _, line := range lines {
		msg, err := jsonrpc.Decode([]byte(line))
		require.NoError(t, err)
		switch {
		case msg.Method == "files.read":
			sawEcho = true
		case msg.Error != nil:
			assert.Equal(t, jsonrpc.CodeDeniedByPolicy, msg.Error.Code)
			assert.JSONEq(t, `2`, string(msg.ID))
			sawDenial = true
		}
	}
	assert.True(t, sawEcho, "allowed request should reach the server")
	assert.True(t, sawDenial, "denied request should be answered by the gateway")

	data, err := os.ReadFile(cfg.AuditLog)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"), "one audit event per request")
}

func TestServe_ExitCodePassthrough(t *testing.T) {
	requireShell(t)
	cfg := testConfig(t)

	code, err := serve(t.Context(), cfg, quietLogger(), []string{"sh", "-c", "cat >/dev/null; echo bye >&2; exit 7"}, stdio{
		in:     strings.NewReader(""),
		out:    io.Discard,
		errOut: io.Discard,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, code)
}

func TestServe_BadPolicyFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Policy = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := serve(t.Context(), cfg, quietLogger(), []string{"true"}, stdio{in: strings.NewReader(""), out: io.Discard, errOut: io.Discard})
	require.Error(t, err)
}

func TestRoot_ExitError(t *testing.T) {
	requireShell(t)
	isolate(t)
	t.Chdir(t.TempDir())

	_, err := execute(t, "--no-http", "--audit-log", "", "sh", "-c", "exit 3")
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "got %v", err)
	assert.Equal(t, 3, exitErr.Code)
}

func TestRoot_RequiresServerCommand(t *testing.T) {
	isolate(t)
	_, err := execute(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no server command")
}

func TestCheck(t *testing.T) {
	isolate(t)
	policyPath := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(policyPath, []byte(`
allow:
  - tool: shell.exec
    cmds: ["git status"]
`), 0o644))

	out, err := execute(t, "check", "--policy", policyPath, "shell.exec", `{"cmd":"git status --short"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "allow")
	assert.Contains(t, out, "(rule)")
	assert.Contains(t, out, "git status --short ...")

	out, err = execute(t, "check", "--policy", policyPath, "shell.exec", `{"cmd":"rm -rf /tmp/x"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "deny")
	assert.Contains(t, out, "(default)")
	assert.Contains(t, out, "yes")

	_, err = execute(t, "check", "files.read", `{not json`)
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	isolate(t)
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "mcp-guard")
	assert.Contains(t, out, Version)
}

func TestClientCommands(t *testing.T) {
	isolate(t)
	gin.SetMode(gin.TestMode)

	cache := approval.New()
	coord := consent.New(cache, quietLogger())
	srv := api.NewServer(api.HTTPConfig{APIKey: "k"}, api.Backend{Approvals: coord, Cache: cache}, quietLogger())
	ts := httptest.NewServer(srv.Engine())
	defer ts.Close()

	id := coord.Enqueue(types.NewRequest(json.RawMessage(`1`), "net.fetch", json.RawMessage(`{"url":"https://example.com","method":"POST"}`)))

	out, err := execute(t, "--server", ts.URL, "--api-key", "k", "approvals")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "https://example.com POST")

	out, err = execute(t, "--server", ts.URL, "--api-key", "k", "approve", id)
	require.NoError(t, err)
	assert.Contains(t, out, "approved")

	_, err = execute(t, "--server", ts.URL, "--api-key", "k", "deny", id)
	assert.Error(t, err, "already decided")

	// the key can come from the environment, as for the gateway itself
	t.Setenv("GUARD_HTTP_API_KEY", "k")
	out, err = execute(t, "--server", ts.URL, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "pending")

	t.Setenv("GUARD_HTTP_API_KEY", "wrong")
	_, err = execute(t, "--server", ts.URL, "approvals")
	assert.Error(t, err)

	out, err = execute(t, "--server", ts.URL, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "status=ok")
}
