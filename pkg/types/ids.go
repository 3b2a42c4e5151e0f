package types

import (
	"github.com/oklog/ulid/v2"
)

// GenerateID returns prefix joined to a new ULID, e.g. "apr_01J...".
func GenerateID(prefix string) string {
	return prefix + "_" + ulid.Make().String()
}

// GenerateApprovalID returns a new pending approval id.
func GenerateApprovalID() string { return GenerateID("apr") }
