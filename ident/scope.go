// Package ident provides validated value types for the identifiers used
// throughout the publish pipeline: scope names, package names, versions
// and package-relative paths. Each type is constructed through a function
// that returns (T, error) so invalid identifiers can never be stored or
// compared.
package ident

import (
	"fmt"
	"strings"
)

// Scope is a validated scope name, such as "acme". It is never prefixed
// with an "@".
type Scope struct {
	name string
}

// NewScope validates and constructs a Scope.
//
// A scope name must be 2-20 characters long, contain only lowercase ascii
// alphanumerics and hyphens, must not start or end with a hyphen, and must
// not contain a double hyphen.
func NewScope(name string) (Scope, error) {
	if len(name) < 2 {
		return Scope{}, fmt.Errorf("scope name %q must be at least 2 characters long", name)
	}
	if len(name) > 20 {
		return Scope{}, fmt.Errorf("scope name %q must be at most 20 characters long", name)
	}
	for _, c := range name {
		if !isLowerAlphaNumOrHyphen(c) {
			return Scope{}, fmt.Errorf("scope name %q must contain only lowercase ascii alphanumeric characters and hyphens", name)
		}
	}
	if strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") {
		return Scope{}, fmt.Errorf("scope name %q must not start or end with a hyphen", name)
	}
	if strings.Contains(name, "--") {
		return Scope{}, fmt.Errorf("scope name %q must not contain double hyphens", name)
	}
	return Scope{name: name}, nil
}

func (s Scope) String() string { return s.name }

func isLowerAlphaNumOrHyphen(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-'
}
