package types

import "fmt"

// Decision is the gateway's classification of a request.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionAsk   Decision = "ask" // Requires a human verdict before forwarding
	DecisionDeny  Decision = "deny"
)

// Valid reports whether d is one of the three known decisions.
func (d Decision) Valid() bool {
	switch d {
	case DecisionAllow, DecisionAsk, DecisionDeny:
		return true
	}
	return false
}

// ParseDecision converts a policy string into a Decision.
func ParseDecision(s string) (Decision, error) {
	d := Decision(s)
	if !d.Valid() {
		return "", fmt.Errorf("unknown decision %q", s)
	}
	return d, nil
}
