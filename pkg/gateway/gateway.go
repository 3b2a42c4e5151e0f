// Package gateway sits between an MCP client and server, applying policy to
// every client request before it reaches the server.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/gm-agent-org/mcp-guard/pkg/audit"
	"github.com/gm-agent-org/mcp-guard/pkg/codec"
	"github.com/gm-agent-org/mcp-guard/pkg/jsonrpc"
	"github.com/gm-agent-org/mcp-guard/pkg/policy"
	"github.com/gm-agent-org/mcp-guard/pkg/types"
)

// errServerDone ends the pump group when the server closes its output.
var errServerDone = errors.New("server stream closed")

// Decider classifies requests.
type Decider interface {
	Decide(req *types.Request) policy.Verdict
}

// Approver suspends requests until a human decides.
type Approver interface {
	Enqueue(req *types.Request) string
	Await(ctx context.Context, id string) (bool, error)
}

// Streams are the four byte streams of one session.
type Streams struct {
	ClientIn  io.Reader      // requests from the client
	ClientOut io.Writer      // responses to the client
	ServerIn  io.WriteCloser // requests to the server; closed when the client is done
	ServerOut io.Reader      // responses from the server
}

// Stats counts traffic through the gateway.
type Stats struct {
	Received    int64 `json:"received"`
	Forwarded   int64 `json:"forwarded"`
	Denied      int64 `json:"denied"`
	Asked       int64 `json:"asked"`
	Passthrough int64 `json:"passthrough"`
	Rejected    int64 `json:"rejected"`
}

type counters struct {
	received    atomic.Int64
	forwarded   atomic.Int64
	denied      atomic.Int64
	asked       atomic.Int64
	passthrough atomic.Int64
	rejected    atomic.Int64
}

// Gateway mediates one client/server session.
type Gateway struct {
	decider  Decider
	approver Approver
	sink     audit.Sink
	log      *slog.Logger
	proto    codec.Protocol
	maxFrame int
	stats    counters
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithProtocol selects the wire encoding for both directions. ProtocolAuto is
// resolved against the process environment.
func WithProtocol(p codec.Protocol) Option {
	return func(g *Gateway) { g.proto = p }
}

// WithMaxFrameSize bounds a single frame in either direction.
func WithMaxFrameSize(n int) Option {
	return func(g *Gateway) { g.maxFrame = n }
}

// WithAuditSink sets where request and consent events go.
func WithAuditSink(s audit.Sink) Option {
	return func(g *Gateway) { g.sink = s }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(g *Gateway) { g.log = log }
}

// New creates a gateway.
func New(decider Decider, approver Approver, opts ...Option) *Gateway {
	g := &Gateway{
		decider:  decider,
		approver: approver,
		sink:     audit.NopSink{},
		log:      slog.Default(),
		proto:    codec.ProtocolNDJSON,
		maxFrame: codec.DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.proto = codec.Resolve(g.proto, os.Getenv)
	g.log = g.log.With("component", "gateway")
	return g
}

// Protocol returns the resolved wire encoding.
func (g *Gateway) Protocol() codec.Protocol { return g.proto }

// Stats returns a snapshot of the traffic counters.
func (g *Gateway) Stats() Stats {
	return Stats{
		Received:    g.stats.received.Load(),
		Forwarded:   g.stats.forwarded.Load(),
		Denied:      g.stats.denied.Load(),
		Asked:       g.stats.asked.Load(),
		Passthrough: g.stats.passthrough.Load(),
		Rejected:    g.stats.rejected.Load(),
	}
}

// Run pumps both directions until the server closes its output, a stream
// fails, or ctx ends. The client reaching end of input closes ServerIn once
// every pending approval has resolved. A malformed client stream is logged and
// returned after the session ends; it does not stop server responses.
func (g *Gateway) Run(ctx context.Context, s Streams) error {
	toClient := codec.NewWriter(s.ClientOut, g.proto)
	toServer := codec.NewWriter(s.ServerIn, g.proto)

	grp, gctx := errgroup.WithContext(ctx)
	var clientErr error
	var workers sync.WaitGroup

	grp.Go(func() error {
		dec := codec.NewDecoder(g.proto, codec.WithMaxFrameSize(g.maxFrame))
		err := codec.ReadFrames(gctx, s.ClientIn, dec, func(f codec.Frame) error {
			return g.handleClientFrame(gctx, f, toClient, toServer, &workers)
		})
		if err == nil || codec.IsFramingError(err) {
			// No more requests will arrive; let pending approvals finish
			// before the server sees end of input.
			workers.Wait()
		}
		if cerr := s.ServerIn.Close(); cerr != nil {
			g.log.Debug("close server input", "error", cerr)
		}

		switch {
		case err == nil:
			g.log.Info("client stream ended")
			return nil
		case codec.IsFramingError(err):
			g.log.Error("client stream is malformed, no further requests accepted", "error", err)
			clientErr = fmt.Errorf("client stream: %w", err)
			return nil
		case gctx.Err() != nil:
			return gctx.Err()
		default:
			return fmt.Errorf("client stream: %w", err)
		}
	})

	grp.Go(func() error {
		dec := codec.NewDecoder(g.proto, codec.WithMaxFrameSize(g.maxFrame))
		err := codec.ReadFrames(gctx, s.ServerOut, dec, func(f codec.Frame) error {
			return toClient.WriteFrame(f.Body)
		})
		switch {
		case err == nil:
			g.log.Info("server stream ended")
			return errServerDone
		case gctx.Err() != nil:
			return gctx.Err()
		default:
			return fmt.Errorf("server stream: %w", err)
		}
	})

	err := grp.Wait()
	workers.Wait()
	if errors.Is(err, errServerDone) {
		err = nil
	}
	return errors.Join(err, clientErr)
}

func (g *Gateway) handleClientFrame(ctx context.Context, f codec.Frame, toClient, toServer *codec.Writer, workers *sync.WaitGroup) error {
	if !f.JSON {
		g.stats.passthrough.Add(1)
		return toServer.WriteFrame(f.Body)
	}
	if jsonrpc.IsBatch(f.Body) {
		g.log.Warn("rejecting batch request")
		return toClient.WriteMessage(jsonrpc.NewErrorResponse(nil, jsonrpc.InvalidRequest, "Batch requests are not supported"))
	}
	msg, err := jsonrpc.Inspect(f.Body)
	if err != nil {
		g.stats.rejected.Add(1)
		g.log.Warn("rejecting uninspectable request", "error", err)
		return toClient.WriteMessage(jsonrpc.NewErrorResponse(msg.ID, jsonrpc.InvalidRequest, "Invalid Request"))
	}
	if !msg.HasMethod() {
		g.stats.passthrough.Add(1)
		return toServer.WriteFrame(f.Body)
	}

	g.stats.received.Add(1)
	req := types.NewRequest(msg.ID, msg.Method, msg.Params)
	verdict := g.decider.Decide(req)
	g.record(ctx, audit.KindRequest, req, verdict.Decision, string(verdict.Source), "")
	g.log.Debug("request decided",
		"method", req.Method,
		"id", string(req.ID),
		"decision", verdict.Decision,
		"source", verdict.Source,
	)

	switch verdict.Decision {
	case types.DecisionAllow:
		return g.forward(toServer, f.Body)
	case types.DecisionDeny:
		g.stats.denied.Add(1)
		return g.reply(toClient, msg, jsonrpc.DeniedByPolicy(msg.ID, msg.Method))
	default:
		g.stats.asked.Add(1)
		approvalID := g.approver.Enqueue(req)
		workers.Go(func() {
			g.resolve(ctx, approvalID, req, msg, f.Body, toClient, toServer)
		})
		return nil
	}
}

// resolve waits for a human decision on one request and completes it.
func (g *Gateway) resolve(ctx context.Context, approvalID string, req *types.Request, msg *jsonrpc.Message, body []byte, toClient, toServer *codec.Writer) {
	approved, err := g.approver.Await(ctx, approvalID)
	if err != nil {
		g.log.Info("approval abandoned", "approval_id", approvalID, "method", req.Method, "error", err)
		return
	}

	decision := types.DecisionDeny
	if approved {
		decision = types.DecisionAllow
	}
	g.record(context.WithoutCancel(ctx), audit.KindConsent, req, decision, "user", approvalID)

	if approved {
		err = g.forward(toServer, body)
	} else {
		g.stats.denied.Add(1)
		err = g.reply(toClient, msg, jsonrpc.DeniedByUser(msg.ID, msg.Method))
	}
	if err != nil {
		g.log.Warn("failed to complete approved request", "approval_id", approvalID, "error", err)
	}
}

func (g *Gateway) forward(toServer *codec.Writer, body []byte) error {
	g.stats.forwarded.Add(1)
	return toServer.WriteFrame(body)
}

// reply sends resp unless msg is a notification, which gets no response.
func (g *Gateway) reply(toClient *codec.Writer, msg *jsonrpc.Message, resp *jsonrpc.Message) error {
	if !msg.HasID() {
		return nil
	}
	return toClient.WriteMessage(resp)
}

func (g *Gateway) record(ctx context.Context, kind audit.Kind, req *types.Request, decision types.Decision, source, approvalID string) {
	ev := audit.NewEvent(kind, req, decision)
	ev.Source = source
	ev.ApprovalID = approvalID
	if err := g.sink.Record(ctx, ev); err != nil {
		g.log.Warn("audit write failed", "method", req.Method, "error", err)
	}
}
