package codec

import (
	"errors"
	"fmt"
)

// Framing failures. All of them are reported wrapped in a *FramingError and
// are fatal for the decoder that produced them.
var (
	ErrMissingContentLength = errors.New("missing Content-Length header")
	ErrInvalidBody          = errors.New("invalid JSON body")
	ErrTruncatedFrame       = errors.New("stream ended inside a frame")
	ErrFrameTooLarge        = errors.New("frame exceeds size limit")
)

// FramingError reports a malformed stream.
type FramingError struct {
	Protocol Protocol
	Err      error
	Detail   string
}

func (e *FramingError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("codec: %s framing: %v", e.Protocol, e.Err)
	}
	return fmt.Sprintf("codec: %s framing: %v: %s", e.Protocol, e.Err, e.Detail)
}

func (e *FramingError) Unwrap() error { return e.Err }

// IsFramingError reports whether err is (or wraps) a *FramingError.
func IsFramingError(err error) bool {
	var fe *FramingError
	return errors.As(err, &fe)
}
