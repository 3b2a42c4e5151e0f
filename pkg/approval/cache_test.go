package approval

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gm-agent-org/mcp-guard/pkg/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newRequest(method, params string) *types.Request {
	return types.NewRequest(json.RawMessage(`1`), method, json.RawMessage(params))
}

func TestFingerprint_StableUnderKeyOrder(t *testing.T) {
	a := newRequest("files.write", `{"path":"/tmp/a","content":"x","mode":{"a":1,"b":2}}`)
	b := newRequest("files.write", `{ "mode": {"b":2, "a":1}, "content":"x", "path":"/tmp/a" }`)
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.Len(t, Fingerprint(a), 64)
}

func TestFingerprint_DiffersByMethodAndArgs(t *testing.T) {
	base := newRequest("files.write", `{"path":"/tmp/a","content":"x"}`)
	assert.NotEqual(t, Fingerprint(base), Fingerprint(newRequest("files.read", `{"path":"/tmp/a","content":"x"}`)))
	assert.NotEqual(t, Fingerprint(base), Fingerprint(newRequest("files.write", `{"path":"/tmp/a","content":"y"}`)))
}

func TestCache_SetGet(t *testing.T) {
	c := New()
	req := newRequest("net.fetch", `{"url":"https://api.github.com/x"}`)

	_, ok := c.Get(req)
	assert.False(t, ok)

	require.NoError(t, c.Set(req, types.DecisionAllow))
	d, ok := c.Get(req)
	assert.True(t, ok)
	assert.Equal(t, types.DecisionAllow, d)

	require.NoError(t, c.Set(req, types.DecisionDeny))
	d, _ = c.Get(req)
	assert.Equal(t, types.DecisionDeny, d)
	assert.Equal(t, 1, c.Len())
}

func TestCache_RejectsAsk(t *testing.T) {
	c := New()
	err := c.Set(newRequest("x", `{}`), types.DecisionAsk)
	assert.ErrorIs(t, err, ErrNotCacheable)
	assert.Equal(t, 0, c.Len())
}

func TestCache_ExpiryEvicts(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := New(WithTTL(10*time.Second), WithClock(clock.Now))
	req := newRequest("shell.exec", `{"cmd":"ls"}`)
	require.NoError(t, c.Set(req, types.DecisionAllow))

	clock.Advance(10 * time.Second)
	_, ok := c.Get(req)
	assert.True(t, ok, "entry is valid up to its expiry instant")

	clock.Advance(time.Millisecond)
	_, ok = c.Get(req)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry is evicted on read")
}

func TestCache_PruneAndClear(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := New(WithTTL(time.Minute), WithClock(clock.Now))

	require.NoError(t, c.Set(newRequest("a", `{}`), types.DecisionAllow))
	clock.Advance(30 * time.Second)
	require.NoError(t, c.Set(newRequest("b", `{}`), types.DecisionDeny))
	clock.Advance(31 * time.Second)

	assert.Equal(t, 1, c.Prune())
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCache_DefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultTTL, New().TTL())
	assert.Equal(t, DefaultTTL, New(WithTTL(0)).TTL())
	assert.Equal(t, time.Second, New(WithTTL(time.Second)).TTL())
}

func TestCache_Concurrent(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := newRequest("files.read", `{"path":"/tmp/same"}`)
			_ = c.Set(req, types.DecisionAllow)
			_, _ = c.Get(req)
			if i%8 == 0 {
				c.Prune()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, c.Len())
}
