package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidPolicy wraps every load or parse failure.
var ErrInvalidPolicy = errors.New("invalid policy")

type ruleLists struct {
	Allow []Rule `yaml:"allow"`
	Ask   []Rule `yaml:"ask"`
	Deny  []Rule `yaml:"deny"`
}

type document struct {
	Defaults *Defaults            `yaml:"defaults"`
	Servers  map[string]ruleLists `yaml:"servers"`
	Allow    []Rule               `yaml:"allow"`
	Ask      []Rule               `yaml:"ask"`
	Deny     []Rule               `yaml:"deny"`
}

// ErrEmptyPolicy reports a policy document with no content. A file caught
// mid-save is empty, so it must not replace the active rules.
var ErrEmptyPolicy = fmt.Errorf("%w: empty document", ErrInvalidPolicy)

// Parse builds a RuleSet from a YAML policy document. Rules under
// servers.default come before the top-level lists of the same kind. Unknown
// fields are rejected, and so is an empty or null document.
func Parse(data []byte) (*RuleSet, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyPolicy
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if isNull(data) {
		return nil, ErrEmptyPolicy
	}

	rs := DefaultRuleSet()
	if doc.Defaults != nil {
		if err := doc.Defaults.validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
		}
		rs.Defaults = *doc.Defaults
	}

	def := doc.Servers["default"]
	rs.Allow = append(append([]Rule(nil), def.Allow...), doc.Allow...)
	rs.Ask = append(append([]Rule(nil), def.Ask...), doc.Ask...)
	rs.Deny = append(append([]Rule(nil), def.Deny...), doc.Deny...)
	return rs, nil
}

// LoadFile reads and parses a policy file.
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidPolicy, path, err)
	}
	rs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// isNull reports whether data is a single null document such as "~" or "null".
func isNull(data []byte) bool {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil || len(node.Content) != 1 {
		return false
	}
	v := node.Content[0]
	return v.Kind == yaml.ScalarNode && v.ShortTag() == "!!null"
}
