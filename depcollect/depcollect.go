// Package depcollect walks a module graph's dependency specifiers and
// resolves the jsr: and npm: ones against the registry, rejecting
// wildcard constraints and unresolvable jsr dependencies.
package depcollect

import (
	"context"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/a-h/pkgpipe/ident"
	"github.com/a-h/pkgpipe/modgraph"
	"github.com/a-h/pkgpipe/pipelineerr"
)

// Kind distinguishes a jsr: dependency from an npm: one.
type Kind int

const (
	KindJSR Kind = iota
	KindNPM
)

// Specifier is a parsed "jsr:@scope/pkg@^1.2/subpath"-style dependency
// specifier.
type Specifier struct {
	Kind       Kind
	Name       string // "@scope/pkg" for jsr:, the bare package name for npm:
	Constraint string // raw constraint text, e.g. "^1.2"
	Subpath    string // "" means "."
}

// Dependency is a fully resolved dependency: the specifier plus, for jsr
// dependencies, the concrete version that satisfied the constraint.
type Dependency struct {
	Specifier      Specifier
	ResolvedVersion string // empty for npm: dependencies, which are not resolved against this registry
}

// PackageVersions looks up the set of published (version, exports-map)
// pairs for a jsr:-referenced package, in no particular order;
// depcollect sorts them.
type PackageVersions interface {
	Versions(ctx context.Context, scoped ident.ScopedPackage) ([]PublishedVersion, error)
}

// PublishedVersion is one entry PackageVersions returns.
type PublishedVersion struct {
	Version ident.Version
	Exports map[string]string // export key -> relative source path, same shape as pkgconfig.Config.Exports
	Yanked  bool
}

// Collect walks every module in graph and resolves its jsr:/npm:
// dependency specifiers.
func Collect(ctx context.Context, graph *modgraph.Graph, registry PackageVersions) ([]Dependency, error) {
	var deps []Dependency
	seen := make(map[string]bool)

	for path, module := range graph.Modules {
		for _, d := range module.Dependencies {
			if d.Kind == modgraph.DependencyTypeReference || d.Kind == modgraph.DependencyJSDocTypeImport {
				continue
			}
			spec, ok, err := parseSpecifier(d.Specifier, "file://"+path, d.Range.Line, d.Range.Column)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			key := string(rune(spec.Kind)) + spec.Name + spec.Constraint + spec.Subpath
			if seen[key] {
				continue
			}
			seen[key] = true

			resolved, err := resolve(ctx, spec, registry, "file://"+path, d.Range.Line, d.Range.Column)
			if err != nil {
				return nil, err
			}
			deps = append(deps, resolved)
		}
	}

	sort.Slice(deps, func(i, j int) bool {
		return deps[i].Specifier.Name < deps[j].Specifier.Name
	})
	return deps, nil
}

// parseSpecifier parses a "jsr:" or "npm:" specifier; ok=false means the
// specifier had neither prefix and is not this package's concern.
func parseSpecifier(specifier, loc string, line, column int) (Specifier, bool, error) {
	switch {
	case strings.HasPrefix(specifier, "jsr:"):
		name, constraint, subpath, err := splitNameConstraintSubpath(strings.TrimPrefix(specifier, "jsr:"))
		if err != nil {
			return Specifier{}, false, pipelineerr.UserAt(pipelineerr.CodeInvalidJsrSpecifier, err.Error(), loc, line, column)
		}
		if !strings.HasPrefix(name, "@") {
			return Specifier{}, false, pipelineerr.UserAt(pipelineerr.CodeInvalidJsrScopedPackageName, "jsr specifier \""+specifier+"\" must reference a scoped package name", loc, line, column)
		}
		if _, err := ident.ParseScopedPackage(name); err != nil {
			return Specifier{}, false, pipelineerr.UserAt(pipelineerr.CodeInvalidJsrScopedPackageName, err.Error(), loc, line, column)
		}
		if constraint == "" || constraint == "*" {
			return Specifier{}, false, pipelineerr.UserAt(pipelineerr.CodeJsrMissingConstraint, "jsr specifier \""+specifier+"\" must declare a version constraint", loc, line, column)
		}
		return Specifier{Kind: KindJSR, Name: name, Constraint: constraint, Subpath: subpath}, true, nil

	case strings.HasPrefix(specifier, "npm:"):
		name, constraint, subpath, err := splitNameConstraintSubpath(strings.TrimPrefix(specifier, "npm:"))
		if err != nil {
			return Specifier{}, false, pipelineerr.UserAt(pipelineerr.CodeInvalidNpmSpecifier, err.Error(), loc, line, column)
		}
		if constraint == "" || constraint == "*" {
			return Specifier{}, false, pipelineerr.UserAt(pipelineerr.CodeNpmMissingConstraint, "npm specifier \""+specifier+"\" must declare a version constraint", loc, line, column)
		}
		return Specifier{Kind: KindNPM, Name: name, Constraint: constraint, Subpath: subpath}, true, nil

	default:
		return Specifier{}, false, nil
	}
}

// splitNameConstraintSubpath splits "@scope/pkg@^1.2/sub/path" (or
// "lodash@^4/sub") into name, constraint and subpath. A scoped name's
// leading "@" is not mistaken for the version separator.
func splitNameConstraintSubpath(rest string) (name, constraint, subpath string, err error) {
	searchFrom := 0
	if strings.HasPrefix(rest, "@") {
		searchFrom = 1
	}
	atIdx := strings.IndexByte(rest[searchFrom:], '@')

	var nameAndConstraint string
	if atIdx < 0 {
		nameAndConstraint = rest
	} else {
		nameAndConstraint = rest[:searchFrom+atIdx]
		rest = rest[searchFrom+atIdx+1:]
	}

	if slashIdx := strings.IndexByte(rest, '/'); atIdx >= 0 && slashIdx >= 0 {
		constraint = rest[:slashIdx]
		subpath = rest[slashIdx+1:]
	} else if atIdx >= 0 {
		constraint = rest
	}

	name = nameAndConstraint
	return name, constraint, subpath, nil
}

// resolve picks the first published version (in descending SemVer
// order, yanked versions included) that satisfies spec's constraint and
// exposes the requested subpath. Only jsr: dependencies are resolved
// against this registry; npm: dependencies are recorded as-is for the
// npm-compat manifest and are otherwise opaque to this registry.
func resolve(ctx context.Context, spec Specifier, registry PackageVersions, loc string, line, column int) (Dependency, error) {
	if spec.Kind != KindJSR {
		return Dependency{Specifier: spec}, nil
	}

	constraint, err := semver.NewConstraint(spec.Constraint)
	if err != nil {
		return Dependency{}, pipelineerr.UserAt(pipelineerr.CodeInvalidJsrSpecifier, "invalid version constraint \""+spec.Constraint+"\": "+err.Error(), loc, line, column)
	}

	scoped, err := ident.ParseScopedPackage(spec.Name)
	if err != nil {
		return Dependency{}, pipelineerr.UserAt(pipelineerr.CodeInvalidJsrScopedPackageName, err.Error(), loc, line, column)
	}

	versions, err := registry.Versions(ctx, scoped)
	if err != nil {
		return Dependency{}, pipelineerr.SystemRetryable(pipelineerr.CodeUnresolvableJsrDependency, err)
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Version.Compare(versions[j].Version) > 0
	})

	exportKey := "."
	if spec.Subpath != "" {
		exportKey = "./" + spec.Subpath
	}

	for _, v := range versions {
		if !constraint.Check(v.Version.Semver()) {
			continue
		}
		if _, ok := v.Exports[exportKey]; !ok {
			return Dependency{}, pipelineerr.UserAt(pipelineerr.CodeInvalidJsrDependencySubPath,
				"jsr:"+spec.Name+"@"+spec.Constraint+" does not expose the subpath \""+exportKey+"\"", loc, line, column)
		}
		return Dependency{Specifier: spec, ResolvedVersion: v.Version.String()}, nil
	}

	return Dependency{}, pipelineerr.UserAt(pipelineerr.CodeUnresolvableJsrDependency,
		"no published version of jsr:"+spec.Name+" satisfies the constraint \""+spec.Constraint+"\"", loc, line, column)
}
