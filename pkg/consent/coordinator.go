// Package consent suspends "ask" requests until a human approves or denies
// them. Every pending approval resolves at most once.
package consent

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gm-agent-org/mcp-guard/pkg/policy"
	"github.com/gm-agent-org/mcp-guard/pkg/types"
)

// ErrNotFound is returned for ids that are unknown or already decided.
var ErrNotFound = errors.New("approval not found")

// Status is the lifecycle state of an approval.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// Approval is a snapshot of one pending request as shown to reviewers.
type Approval struct {
	ID        string         `json:"id"`
	Status    Status         `json:"status"`
	Request   *types.Request `json:"request"`
	IntentKey string         `json:"intent_key"`
	Summary   string         `json:"summary"`
	Dangerous bool           `json:"dangerous"`
	CreatedAt time.Time      `json:"created_at"`
}

// Recorder remembers a final decision, normally the approval cache.
type Recorder interface {
	Set(req *types.Request, decision types.Decision) error
}

type record struct {
	approval Approval
	done     chan struct{} // closed exactly once, by Decide
}

// Coordinator owns the table of pending approvals.
type Coordinator struct {
	mu       sync.Mutex
	pending  map[string]*record
	recorder Recorder
	log      *slog.Logger
	now      func() time.Time
}

// New creates a coordinator. recorder may be nil.
func New(recorder Recorder, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		pending:  make(map[string]*record),
		recorder: recorder,
		log:      log.With("component", "consent"),
		now:      time.Now,
	}
}

// Enqueue registers req as pending and returns its approval id.
func (c *Coordinator) Enqueue(req *types.Request) string {
	id := types.GenerateApprovalID()
	rec := &record{
		approval: Approval{
			ID:        id,
			Status:    StatusPending,
			Request:   req,
			IntentKey: IntentKey(req),
			Summary:   Summarize(req),
			Dangerous: policy.Dangerous(req),
			CreatedAt: c.now(),
		},
		done: make(chan struct{}),
	}

	c.mu.Lock()
	c.pending[id] = rec
	c.mu.Unlock()

	c.log.Info("approval requested",
		"id", id,
		"method", req.Method,
		"summary", rec.approval.Summary,
		"dangerous", rec.approval.Dangerous,
	)
	return id
}

// Await blocks until id is decided and reports whether it was approved. The
// record is removed once Await returns. If ctx ends first the approval is
// abandoned and ctx.Err() is returned.
func (c *Coordinator) Await(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	rec, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return false, ErrNotFound
	}

	var ctxErr error
	select {
	case <-rec.done:
	case <-ctx.Done():
		ctxErr = ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
	switch rec.approval.Status {
	case StatusApproved:
		return true, nil
	case StatusDenied:
		return false, nil
	}
	c.log.Info("approval abandoned", "id", id, "error", ctxErr)
	return false, ctxErr
}

// Decide resolves a pending approval. The decision is recorded before the
// waiter resumes, so a retried identical request hits the cache.
func (c *Coordinator) Decide(id string, approve bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.pending[id]
	if !ok || rec.approval.Status != StatusPending {
		return ErrNotFound
	}

	decision := types.DecisionDeny
	rec.approval.Status = StatusDenied
	if approve {
		decision = types.DecisionAllow
		rec.approval.Status = StatusApproved
	}

	if c.recorder != nil {
		if err := c.recorder.Set(rec.approval.Request, decision); err != nil {
			c.log.Warn("failed to remember decision", "id", id, "error", err)
		}
	}
	close(rec.done)

	c.log.Info("approval decided", "id", id, "method", rec.approval.Request.Method, "status", rec.approval.Status)
	return nil
}

// Get returns a snapshot of one approval.
func (c *Coordinator) Get(id string) (Approval, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.pending[id]
	if !ok {
		return Approval{}, false
	}
	return rec.approval, true
}

// List returns the approvals still waiting for a decision, oldest first.
func (c *Coordinator) List() []Approval {
	c.mu.Lock()
	out := make([]Approval, 0, len(c.pending))
	for _, rec := range c.pending {
		if rec.approval.Status == StatusPending {
			out = append(out, rec.approval)
		}
	}
	c.mu.Unlock()

	slices.SortFunc(out, func(a, b Approval) int {
		if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Len returns the number of tracked approvals.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
