// Package audit records every decision the gateway makes.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gm-agent-org/mcp-guard/pkg/types"
)

// DefaultPath is the audit log location, relative to the working directory.
const DefaultPath = "audit.log"

// Kind distinguishes the two points where decisions are recorded.
type Kind string

const (
	KindRequest Kind = "request" // Emitted for every client request, in arrival order
	KindConsent Kind = "consent" // Emitted when a human resolves an ask
)

// Event is one audit record.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Timestamp  time.Time       `json:"ts"`
	Kind       Kind            `json:"kind"`
	RequestID  json.RawMessage `json:"request_id,omitempty"`
	Method     string          `json:"method"`
	Params     json.RawMessage `json:"params,omitempty"`
	Decision   types.Decision  `json:"decision"`
	Source     string          `json:"source,omitempty"`
	ApprovalID string          `json:"approval_id,omitempty"`
}

// NewEvent stamps an event for req.
func NewEvent(kind Kind, req *types.Request, decision types.Decision) Event {
	return Event{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		RequestID: req.ID,
		Method:    req.Method,
		Params:    req.Params,
		Decision:  decision,
	}
}

//go:generate mockgen --build_flags=--mod=mod -destination=sink_mock.go -package=$GOPACKAGE github.com/gm-agent-org/mcp-guard/pkg/audit Sink

// Sink persists audit events.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Record(context.Context, Event) error { return nil }

// FileSink appends events to a JSONL file, one event per line. Each record is
// synced before Record returns.
type FileSink struct {
	path string
	mu   sync.Mutex
}

// NewFileSink creates a sink for path. The file and its directory are created
// on first write.
func NewFileSink(path string) *FileSink {
	if path == "" {
		path = DefaultPath
	}
	return &FileSink{path: path}
}

// Path returns the audit log location.
func (s *FileSink) Path() string { return s.path }

func (s *FileSink) Record(ctx context.Context, ev Event) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create audit dir: %w", err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return f.Sync()
}
