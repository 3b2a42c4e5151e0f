package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type ndjsonDecoder struct {
	buf []byte
	max int
	err error
}

func newNDJSONDecoder(max int) *ndjsonDecoder {
	return &ndjsonDecoder{max: max}
}

func (d *ndjsonDecoder) Decode(chunk []byte) ([]Frame, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	consumed := 0
	for {
		i := bytes.IndexByte(d.buf[consumed:], '\n')
		if i < 0 {
			break
		}
		line := d.buf[consumed : consumed+i]
		consumed += i + 1
		if f, ok := lineFrame(line); ok {
			frames = append(frames, f)
		}
	}
	d.buf = compact(d.buf, consumed)

	if d.max > 0 && len(d.buf) > d.max {
		d.err = &FramingError{
			Protocol: ProtocolNDJSON,
			Err:      ErrFrameTooLarge,
			Detail:   fmt.Sprintf("line exceeds %d bytes", d.max),
		}
		d.buf = nil
		return frames, d.err
	}
	return frames, nil
}

func (d *ndjsonDecoder) Flush() ([]Frame, error) {
	if d.err != nil {
		return nil, d.err
	}
	line := d.buf
	d.buf = nil
	if f, ok := lineFrame(line); ok {
		return []Frame{f}, nil
	}
	return nil, nil
}

// lineFrame builds a frame from one line. Blank lines yield no frame. JSON
// lines drop a trailing \r; other lines keep their bytes so that rewriting
// them with a \n terminator reproduces the input.
func lineFrame(line []byte) (Frame, bool) {
	body := bytes.TrimSuffix(line, []byte("\r"))
	if len(bytes.TrimSpace(body)) == 0 {
		return Frame{}, false
	}
	if json.Valid(body) {
		return Frame{Body: bytes.Clone(body), JSON: true}, true
	}
	return Frame{Body: bytes.Clone(line)}, true
}
