package consent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gm-agent-org/mcp-guard/pkg/approval"
	"github.com/gm-agent-org/mcp-guard/pkg/types"
)

func newTestCoordinator(rec Recorder) *Coordinator {
	return New(rec, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newRequest(method, params string) *types.Request {
	return types.NewRequest(json.RawMessage(`7`), method, json.RawMessage(params))
}

type failingRecorder struct{}

func (failingRecorder) Set(*types.Request, types.Decision) error { return errors.New("boom") }

func TestApproveResumesWaiterAndCaches(t *testing.T) {
	cache := approval.New()
	c := newTestCoordinator(cache)
	req := newRequest("files.write", `{"path":"~/a.txt","content":"x"}`)

	id := c.Enqueue(req)
	assert.True(t, strings.HasPrefix(id, "apr_"))

	result := make(chan bool, 1)
	go func() {
		ok, err := c.Await(context.Background(), id)
		assert.NoError(t, err)
		result <- ok
	}()

	require.NoError(t, c.Decide(id, true))
	select {
	case ok := <-result:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not resumed")
	}

	d, ok := cache.Get(newRequest("files.write", `{"content":"x","path":"~/a.txt"}`))
	assert.True(t, ok)
	assert.Equal(t, types.DecisionAllow, d)
	assert.Equal(t, 0, c.Len(), "record removed after resume")
}

func TestDenyResumesWaiterAndCaches(t *testing.T) {
	cache := approval.New()
	c := newTestCoordinator(cache)
	req := newRequest("shell.exec", `{"cmd":"make deploy"}`)
	id := c.Enqueue(req)

	require.NoError(t, c.Decide(id, false))
	ok, err := c.Await(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)

	d, _ := cache.Get(req)
	assert.Equal(t, types.DecisionDeny, d)
}

func TestDecideExactlyOnce(t *testing.T) {
	c := newTestCoordinator(nil)
	id := c.Enqueue(newRequest("net.fetch", `{"url":"https://example.com"}`))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := c.Decide(id, i%2 == 0); err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, ErrNotFound)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	a, ok := c.Get(id)
	require.True(t, ok, "decided records stay until their waiter resumes")
	assert.NotEqual(t, StatusPending, a.Status)
	assert.Empty(t, c.List())
}

func TestDecideUnknownID(t *testing.T) {
	c := newTestCoordinator(nil)
	assert.ErrorIs(t, c.Decide("apr_missing", true), ErrNotFound)

	_, err := c.Await(context.Background(), "apr_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecideAfterResumeIsNotFound(t *testing.T) {
	c := newTestCoordinator(nil)
	id := c.Enqueue(newRequest("files.write", `{"path":"/tmp/a"}`))
	require.NoError(t, c.Decide(id, true))
	_, err := c.Await(context.Background(), id)
	require.NoError(t, err)

	assert.ErrorIs(t, c.Decide(id, false), ErrNotFound)
}

func TestAwaitCancelledAbandons(t *testing.T) {
	c := newTestCoordinator(nil)
	id := c.Enqueue(newRequest("files.write", `{"path":"/tmp/a"}`))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ok, err := c.Await(ctx, id)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, c.Len())
	assert.ErrorIs(t, c.Decide(id, true), ErrNotFound)
}

func TestRecorderFailureStillResolves(t *testing.T) {
	c := newTestCoordinator(failingRecorder{})
	id := c.Enqueue(newRequest("files.write", `{"path":"/tmp/a"}`))
	require.NoError(t, c.Decide(id, true))

	ok, err := c.Await(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestListAndGet(t *testing.T) {
	c := newTestCoordinator(nil)
	base := time.Unix(1_700_000_000, 0)
	tick := 0
	c.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	first := c.Enqueue(newRequest("shell.exec", `{"cmd":"rm -rf /tmp/build now please"}`))
	second := c.Enqueue(newRequest("net.fetch", `{"url":"https://api.github.com/x","method":"POST"}`))

	list := c.List()
	require.Len(t, list, 2)
	assert.Equal(t, first, list[0].ID)
	assert.Equal(t, second, list[1].ID)

	a, ok := c.Get(first)
	require.True(t, ok)
	assert.Equal(t, StatusPending, a.Status)
	assert.Equal(t, "shell.exec:rm -rf /tmp/build now please", a.IntentKey)
	assert.Equal(t, "rm -rf /tmp/build ...", a.Summary)
	assert.True(t, a.Dangerous)

	_, ok = c.Get("apr_nope")
	assert.False(t, ok)
}
