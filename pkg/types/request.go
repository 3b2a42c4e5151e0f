package types

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Category classifies a tool method once, at request creation.
type Category int

const (
	CategoryOther     Category = iota // Anything not recognized below
	CategoryFileRead                  // files.read*
	CategoryFileWrite                 // files.write*
	CategoryFile                      // Remaining files.* methods
	CategoryNetFetch                  // net.fetch
	CategoryShellExec                 // shell.exec
)

func (c Category) String() string {
	switch c {
	case CategoryFileRead:
		return "file_read"
	case CategoryFileWrite:
		return "file_write"
	case CategoryFile:
		return "file"
	case CategoryNetFetch:
		return "net_fetch"
	case CategoryShellExec:
		return "shell_exec"
	default:
		return "other"
	}
}

// MarshalText renders the category by name.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// IsFile reports whether rules match this category against params.path.
func (c Category) IsFile() bool {
	return c == CategoryFileRead || c == CategoryFileWrite || c == CategoryFile
}

// CategoryOf maps a dot-namespaced method to its category. Every method maps
// to exactly one category.
func CategoryOf(method string) Category {
	switch {
	case strings.HasPrefix(method, "files.read"):
		return CategoryFileRead
	case strings.HasPrefix(method, "files.write"):
		return CategoryFileWrite
	case strings.HasPrefix(method, "files."):
		return CategoryFile
	case method == "net.fetch":
		return CategoryNetFetch
	case method == "shell.exec":
		return CategoryShellExec
	default:
		return CategoryOther
	}
}

// Request is a single JSON-RPC call in flight. It is immutable after NewRequest.
type Request struct {
	ID       json.RawMessage `json:"id,omitempty"`
	Method   string          `json:"method"`
	Params   json.RawMessage `json:"params,omitempty"`
	Target   string          `json:"target"`
	Category Category        `json:"category"`
}

// NewRequest builds a Request and derives its target and category.
func NewRequest(id json.RawMessage, method string, params json.RawMessage) *Request {
	r := &Request{
		ID:       id,
		Method:   method,
		Params:   params,
		Category: CategoryOf(method),
	}
	r.Target = r.deriveTarget()
	return r
}

// Param returns a top-level string parameter, or "" when absent. A repeated
// key resolves to its last occurrence, as encoding/json and JSON.parse do.
func (r *Request) Param(name string) string {
	if len(r.Params) == 0 {
		return ""
	}
	var v string
	gjson.ParseBytes(r.Params).ForEach(func(key, value gjson.Result) bool {
		if key.String() == name {
			v = value.String()
		}
		return true
	})
	return v
}

// CanonicalParams returns the params encoded with sorted keys.
func (r *Request) CanonicalParams() string {
	return CanonicalJSON(r.Params)
}

func (r *Request) deriveTarget() string {
	for _, key := range []string{"path", "url", "cmd"} {
		if v := r.Param(key); v != "" {
			return v
		}
	}
	return r.CanonicalParams()
}

// CanonicalJSON re-encodes raw JSON so that semantically equal documents
// produce identical bytes: object keys are sorted at every depth and numbers
// keep their literal form. Empty input encodes as "{}". Input that is not valid
// JSON is returned as-is.
func CanonicalJSON(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "{}"
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(trimmed)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return string(trimmed)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
