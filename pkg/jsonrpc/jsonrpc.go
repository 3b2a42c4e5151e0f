// Package jsonrpc provides the JSON-RPC 2.0 envelope the gateway inspects.
//
// The gateway only looks at the method, params and id of client messages.
// Everything else (results, errors, notifications, unknown fields) travels
// through untouched, so the forwarding paths keep the original body bytes and
// use Message purely for inspection.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
)

// JSON-RPC 2.0 version constant.
const Version = "2.0"

// JSON-RPC 2.0 error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// Application-defined error codes returned for rejected requests.
const (
	CodeDeniedByPolicy = -32001
	CodeDeniedByUser   = -32002
)

// Message represents a JSON-RPC 2.0 message.
//
// It can be a request (has method and id), notification (has method, no id),
// or response (has result or error, and id).
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// HasMethod reports whether the message is a request or notification.
func (m *Message) HasMethod() bool {
	return m.Method != ""
}

// HasID reports whether the message carries a non-null id.
func (m *Message) HasID() bool {
	return len(m.ID) > 0 && !bytes.Equal(bytes.TrimSpace(m.ID), []byte("null"))
}

// Decode unmarshals one JSON-RPC body. It does not validate the version
// field; inspection is limited to method and params.
func Decode(body []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("jsonrpc: decode message: %w", err)
	}
	return &msg, nil
}

// ErrAmbiguousRequest is returned by Inspect for request envelopes that
// different JSON parsers could read differently.
var ErrAmbiguousRequest = errors.New("jsonrpc: ambiguous request")

// inspected are the envelope keys the gateway decides on.
var inspected = []string{"method", "params", "id"}

// Inspect reads the method, params and id of a client message by their exact
// key names. Other fields are not decoded, so a malformed result or version
// field cannot hide a method. A body that is not a JSON object carries no
// method and yields an empty Message.
//
// Inspect rejects duplicate or case-variant inspected keys, a method that is
// not a non-empty string, and params objects with duplicate top-level keys.
// On error the returned Message still holds the id when one was read, so the
// caller can address its reply.
func Inspect(body []byte) (*Message, error) {
	msg := &Message{}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return msg, nil
	}

	var err error
	seen := make(map[string]bool)
	root.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		for _, name := range inspected {
			if k != name && strings.EqualFold(k, name) {
				err = fmt.Errorf("%w: key %q shadows %q", ErrAmbiguousRequest, k, name)
				return false
			}
		}
		if seen[k] {
			if slices.Contains(inspected, k) {
				err = fmt.Errorf("%w: duplicate key %q", ErrAmbiguousRequest, k)
				return false
			}
			return true
		}
		seen[k] = true

		switch k {
		case "jsonrpc":
			msg.JSONRPC = value.String()
		case "method":
			if value.Type != gjson.String || value.Str == "" {
				err = fmt.Errorf("%w: method must be a non-empty string", ErrAmbiguousRequest)
				return false
			}
			msg.Method = value.Str
		case "params":
			msg.Params = json.RawMessage(value.Raw)
		case "id":
			msg.ID = json.RawMessage(value.Raw)
		}
		return true
	})
	if err != nil {
		if id := root.Get("id"); id.Exists() && msg.ID == nil {
			msg.ID = json.RawMessage(id.Raw)
		}
		return msg, err
	}
	if dup := duplicateKey(msg.Params); dup != "" {
		return msg, fmt.Errorf("%w: duplicate params key %q", ErrAmbiguousRequest, dup)
	}
	return msg, nil
}

// duplicateKey returns the first top-level key that appears twice in raw, or
// "" when raw is not an object or has none.
func duplicateKey(raw json.RawMessage) string {
	obj := gjson.ParseBytes(raw)
	if !obj.IsObject() {
		return ""
	}
	var dup string
	seen := make(map[string]bool)
	obj.ForEach(func(key, _ gjson.Result) bool {
		k := key.String()
		if seen[k] {
			dup = k
			return false
		}
		seen[k] = true
		return true
	})
	return dup
}

// NewErrorResponse creates an error response for the given request id.
func NewErrorResponse(id json.RawMessage, code int, message string) *Message {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &Message{
		JSONRPC: Version,
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	}
}

// DeniedByPolicy builds the response sent when policy rejects a request.
func DeniedByPolicy(id json.RawMessage, method string) *Message {
	return NewErrorResponse(id, CodeDeniedByPolicy, "Denied by policy: "+method)
}

// DeniedByUser builds the response sent when a human rejects a request.
func DeniedByUser(id json.RawMessage, method string) *Message {
	return NewErrorResponse(id, CodeDeniedByUser, "Denied by user: "+method)
}

// IsBatch reports whether body is a JSON-RPC batch (a top-level array).
func IsBatch(body []byte) bool {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}
