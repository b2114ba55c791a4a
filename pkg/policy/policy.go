// Package policy implements the IAM-style policy document model.
//
// A policy document is a versioned, ordered list of statements. Each
// statement grants or withholds a set of actions over a set of resources.
// Documents arrive as untyped JSON attached to users and groups; they are
// parsed and validated once at load time and treated as immutable values
// afterwards.
package policy

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Effect is the outcome a statement contributes when it matches.
type Effect string

const (
	// Allow grants the matched action/resource pairs.
	Allow Effect = "Allow"
	// Deny withholds the matched pairs and overrides any Allow.
	Deny Effect = "Deny"
)

// Statement is one action/resource/effect rule inside a document.
type Statement struct {
	Action   StringList `json:"Action"`
	Resource StringList `json:"Resource"`
	Effect   Effect     `json:"Effect"`
}

// Document is a parsed policy document.
type Document struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// StringList accepts either a JSON string or an array of strings. Policy
// documents written by hand routinely use the single-string form.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or array of strings: %w", err)
	}
	*l = StringList(many)
	return nil
}

// Parse decodes and validates a raw policy document.
func Parse(raw []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("malformed policy document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks the document for structural problems that would make
// evaluation ambiguous.
func (d *Document) Validate() error {
	if len(d.Statement) == 0 {
		return fmt.Errorf("policy document has no statements")
	}
	for i, stmt := range d.Statement {
		if stmt.Effect != Allow && stmt.Effect != Deny {
			return fmt.Errorf("statement %d: invalid effect %q", i, stmt.Effect)
		}
		if len(stmt.Action) == 0 {
			return fmt.Errorf("statement %d: no actions", i)
		}
		if len(stmt.Resource) == 0 {
			return fmt.Errorf("statement %d: no resources", i)
		}
	}
	return nil
}

// Match reports whether candidate satisfies pattern. A pattern is either a
// literal string compared for equality, or a prefix followed by a trailing
// "*" which matches any suffix. No other wildcard forms are supported.
func Match(pattern, candidate string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(candidate, pattern[:len(pattern)-1])
	}
	return pattern == candidate
}

// Matches reports whether the statement applies to the given action and
// resource: at least one action pattern matches the action and at least one
// resource pattern matches the resource.
func (s *Statement) Matches(action, resource string) bool {
	return matchAny(s.Action, action) && matchAny(s.Resource, resource)
}

func matchAny(patterns []string, candidate string) bool {
	for _, p := range patterns {
		if Match(p, candidate) {
			return true
		}
	}
	return false
}
