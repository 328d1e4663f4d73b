package ident

import (
	"fmt"
	"strings"
)

// Package is a validated package name, such as "std". It is never
// prefixed with an "@".
type Package struct {
	name string
}

// NewPackage validates and constructs a Package.
//
// A package name must be 2-32 characters long, contain only lowercase
// ascii alphanumerics and hyphens, must not start or end with a hyphen,
// and must not contain a double hyphen.
func NewPackage(name string) (Package, error) {
	if len(name) < 2 {
		return Package{}, fmt.Errorf("package name %q must be at least 2 characters long", name)
	}
	if len(name) > 32 {
		return Package{}, fmt.Errorf("package name %q must be at most 32 characters long", name)
	}
	for _, c := range name {
		if !isLowerAlphaNumOrHyphen(c) {
			return Package{}, fmt.Errorf("package name %q must contain only lowercase ascii alphanumeric characters and hyphens", name)
		}
	}
	if strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") {
		return Package{}, fmt.Errorf("package name %q must not start or end with a hyphen", name)
	}
	if strings.Contains(name, "--") {
		return Package{}, fmt.Errorf("package name %q must not contain double hyphens", name)
	}
	return Package{name: name}, nil
}

func (p Package) String() string { return p.name }

// ScopedPackage is a "@scope/package" pair, as it appears in a specifier
// or config file.
type ScopedPackage struct {
	Scope   Scope
	Package Package
}

// ParseScopedPackage parses a "@scope/package" string.
func ParseScopedPackage(s string) (ScopedPackage, error) {
	rest, ok := strings.CutPrefix(s, "@")
	if !ok {
		return ScopedPackage{}, fmt.Errorf("scoped package name %q must start with an '@' sign", s)
	}
	scopeName, packageName, ok := strings.Cut(rest, "/")
	if !ok {
		return ScopedPackage{}, fmt.Errorf("scoped package name %q must contain a '/' separator between scope and package name", s)
	}
	scope, err := NewScope(scopeName)
	if err != nil {
		return ScopedPackage{}, err
	}
	pkg, err := NewPackage(packageName)
	if err != nil {
		return ScopedPackage{}, err
	}
	return ScopedPackage{Scope: scope, Package: pkg}, nil
}

func (sp ScopedPackage) String() string {
	return fmt.Sprintf("@%s/%s", sp.Scope, sp.Package)
}
