// Package codec turns a raw byte stream into discrete JSON-RPC frames and back.
//
// Two wire encodings are supported:
//
//   - ndjson: one compact JSON message per '\n'-terminated line. Lines that are
//     not valid JSON are surfaced as passthrough frames and forwarded verbatim.
//   - content-length: a "Content-Length: N\r\n\r\n" header block followed by an
//     N-byte body, as used by LSP and MCP stdio transports.
//
// Decoders are push-based: callers feed arbitrary chunks (single bytes, many
// messages at once) and receive every complete frame in arrival order. A
// decoder keeps state for exactly one stream direction; use one instance per
// direction.
package codec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Protocol selects the wire encoding.
type Protocol string

const (
	ProtocolNDJSON        Protocol = "ndjson"
	ProtocolContentLength Protocol = "content-length"
	ProtocolAuto          Protocol = "auto" // Resolved from ProtocolEnv
)

// ProtocolEnv is the environment signal consulted when the protocol is auto.
const ProtocolEnv = "MCP_PROTOCOL"

// DefaultMaxFrameSize bounds a single frame (body or line) in bytes.
const DefaultMaxFrameSize = 32 << 20

// maxHeaderSize bounds a content-length header block.
const maxHeaderSize = 8 << 10

const readChunkSize = 32 << 10

// ParseProtocol validates a protocol name. An empty string means auto.
func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ProtocolAuto, nil
	case ProtocolNDJSON, ProtocolContentLength, ProtocolAuto:
		return p, nil
	default:
		return "", fmt.Errorf("codec: unknown protocol %q (want ndjson, content-length or auto)", s)
	}
}

// Resolve turns ProtocolAuto into a concrete encoding: content-length when
// getenv(ProtocolEnv) says so, ndjson otherwise.
func Resolve(p Protocol, getenv func(string) string) Protocol {
	if p != ProtocolAuto && p != "" {
		return p
	}
	if getenv != nil && strings.EqualFold(getenv(ProtocolEnv), string(ProtocolContentLength)) {
		return ProtocolContentLength
	}
	return ProtocolNDJSON
}

// Frame is one decoded wire unit.
type Frame struct {
	// Body is the message bytes without framing.
	Body []byte
	// JSON is false for ndjson lines that did not parse; such frames are
	// forwarded verbatim and never inspected.
	JSON bool
}

// Decoder incrementally splits a byte stream into frames.
type Decoder interface {
	// Decode consumes one chunk and returns every frame it completed. On a
	// fatal framing error the frames completed before the error are returned
	// together with the error, and the decoder stays failed.
	Decode(chunk []byte) ([]Frame, error)
	// Flush is called at end of stream and returns whatever can still be
	// emitted, or a framing error for an incomplete frame.
	Flush() ([]Frame, error)
}

// Option configures a decoder.
type Option func(*options)

type options struct {
	maxFrameSize int
}

// WithMaxFrameSize overrides DefaultMaxFrameSize. Zero or negative disables
// the limit.
func WithMaxFrameSize(n int) Option {
	return func(o *options) { o.maxFrameSize = n }
}

// NewDecoder returns a decoder for a concrete protocol. ProtocolAuto must be
// resolved first.
func NewDecoder(p Protocol, opts ...Option) Decoder {
	o := options{maxFrameSize: DefaultMaxFrameSize}
	for _, opt := range opts {
		opt(&o)
	}
	if p == ProtocolContentLength {
		return newContentLengthDecoder(o.maxFrameSize)
	}
	return newNDJSONDecoder(o.maxFrameSize)
}

// Writer encodes frames onto a stream. Each frame is written with a single
// Write call under a mutex so concurrent writers never interleave.
type Writer struct {
	mu    sync.Mutex
	w     io.Writer
	proto Protocol
}

// NewWriter wraps w for a concrete protocol.
func NewWriter(w io.Writer, p Protocol) *Writer {
	return &Writer{w: w, proto: p}
}

// Protocol returns the encoding used by the writer.
func (w *Writer) Protocol() Protocol { return w.proto }

// WriteFrame frames body and writes it.
func (w *Writer) WriteFrame(body []byte) error {
	var frame []byte
	switch w.proto {
	case ProtocolContentLength:
		header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
		frame = make([]byte, 0, len(header)+len(body))
		frame = append(frame, header...)
		frame = append(frame, body...)
	default:
		frame = make([]byte, 0, len(body)+1)
		frame = append(frame, body...)
		frame = append(frame, '\n')
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(frame); err != nil {
		return fmt.Errorf("codec: write frame: %w", err)
	}
	return nil
}

// WriteMessage marshals v as compact JSON and writes it as one frame.
func (w *Writer) WriteMessage(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("codec: marshal message: %w", err)
	}
	return w.WriteFrame(body)
}

type readResult struct {
	data []byte
	err  error
}

// ReadFrames drives dec from r and calls fn for each frame in order until the
// stream ends, fn fails, a framing error occurs, or ctx is cancelled. Reaching
// end of stream returns nil after flushing the decoder.
//
// The blocking reads run on their own goroutine so that cancellation does not
// wait for the peer; that goroutine exits after its next read returns.
func ReadFrames(ctx context.Context, r io.Reader, dec Decoder, fn func(Frame) error) error {
	results := make(chan readResult)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			buf := make([]byte, readChunkSize)
			n, err := r.Read(buf)
			select {
			case results <- readResult{data: buf[:n], err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	emit := func(frames []Frame) error {
		for _, f := range frames {
			if err := fn(f); err != nil {
				return err
			}
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-results:
			if len(res.data) > 0 {
				frames, err := dec.Decode(res.data)
				if emitErr := emit(frames); emitErr != nil {
					return emitErr
				}
				if err != nil {
					return err
				}
			}
			if res.err == io.EOF {
				frames, err := dec.Flush()
				if emitErr := emit(frames); emitErr != nil {
					return emitErr
				}
				return err
			}
			if res.err != nil {
				return fmt.Errorf("codec: read: %w", res.err)
			}
		}
	}
}

// compact drops the consumed prefix of buf so the backing array can be freed.
func compact(buf []byte, consumed int) []byte {
	if consumed == 0 {
		return buf
	}
	if consumed >= len(buf) {
		return nil
	}
	return bytes.Clone(buf[consumed:])
}
