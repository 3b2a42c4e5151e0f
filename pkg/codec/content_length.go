package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

var headerTerminator = []byte("\r\n\r\n")

type contentLengthDecoder struct {
	buf      []byte
	expected int // body length of the current frame, -1 while reading a header
	max      int
	err      error
}

func newContentLengthDecoder(max int) *contentLengthDecoder {
	return &contentLengthDecoder{expected: -1, max: max}
}

func (d *contentLengthDecoder) fail(err error, detail string) error {
	d.err = &FramingError{Protocol: ProtocolContentLength, Err: err, Detail: detail}
	d.buf = nil
	return d.err
}

func (d *contentLengthDecoder) Decode(chunk []byte) ([]Frame, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	consumed := 0
	for {
		pending := d.buf[consumed:]

		if d.expected < 0 {
			idx := bytes.Index(pending, headerTerminator)
			if idx < 0 {
				if len(pending) > maxHeaderSize {
					return frames, d.fail(ErrFrameTooLarge, fmt.Sprintf("header exceeds %d bytes", maxHeaderSize))
				}
				break
			}
			n, err := parseContentLength(pending[:idx])
			if err != nil {
				return frames, d.fail(ErrMissingContentLength, err.Error())
			}
			if d.max > 0 && n > d.max {
				return frames, d.fail(ErrFrameTooLarge, fmt.Sprintf("Content-Length %d exceeds %d bytes", n, d.max))
			}
			d.expected = n
			consumed += idx + len(headerTerminator)
			pending = d.buf[consumed:]
		}

		if len(pending) < d.expected {
			break
		}

		body := bytes.Clone(pending[:d.expected])
		consumed += d.expected
		d.expected = -1

		if !json.Valid(body) {
			return frames, d.fail(ErrInvalidBody, fmt.Sprintf("%d-byte body", len(body)))
		}
		frames = append(frames, Frame{Body: body, JSON: true})
	}

	d.buf = compact(d.buf, consumed)
	return frames, nil
}

func (d *contentLengthDecoder) Flush() ([]Frame, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.expected >= 0 {
		return nil, d.fail(ErrTruncatedFrame, fmt.Sprintf("have %d of %d body bytes", len(d.buf), d.expected))
	}
	if len(bytes.TrimSpace(d.buf)) > 0 {
		return nil, d.fail(ErrTruncatedFrame, "incomplete header")
	}
	d.buf = nil
	return nil, nil
}

// parseContentLength scans a header block for Content-Length. Other fields
// (Content-Type and friends) are ignored; field names are case-insensitive.
func parseContentLength(header []byte) (int, error) {
	for _, line := range strings.Split(string(header), "\n") {
		name, value, ok := strings.Cut(strings.TrimRight(line, "\r"), ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid Content-Length value %q", strings.TrimSpace(value))
		}
		return n, nil
	}
	return 0, fmt.Errorf("no Content-Length in header %q", string(header))
}
