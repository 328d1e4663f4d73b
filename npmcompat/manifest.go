package npmcompat

import (
	"encoding/json"
	"fmt"

	"github.com/a-h/pkgpipe/depcollect"
	"github.com/a-h/pkgpipe/ident"
	"github.com/a-h/pkgpipe/modgraph"
)

// Revision is bumped whenever this builder's output format changes in a
// way that makes previously built npm-compat tarballs stale; bumping it
// invalidates every cached artifact without touching any source file.
const Revision = 1

// exportConditions is the "types"/"default" conditional export entry
// package.json associates with each export subpath.
type exportConditions struct {
	Types   string `json:"types,omitempty"`
	Default string `json:"default,omitempty"`
}

// packageJSON is the manifest synthesised at the tarball root.
type packageJSON struct {
	Name          string                       `json:"name"`
	Version       string                       `json:"version"`
	Type          string                       `json:"type"`
	Exports       map[string]exportConditions  `json:"exports"`
	Dependencies  map[string]string            `json:"dependencies,omitempty"`
	Homepage      string                       `json:"homepage"`
	JSRRevision   int                          `json:"_jsr_revision"`
}

// MappedName converts a jsr scoped package name into the npm-compat
// name npm-compat tarballs and intra-registry dependency names use.
func MappedName(ecosystemScope string, scope ident.Scope, pkg ident.Package) string {
	return fmt.Sprintf("@%s/%s__%s", ecosystemScope, scope, pkg)
}

func buildExports(exports map[string]string, rewrites Rewrites, loader modgraph.Loader) map[string]exportConditions {
	out := make(map[string]exportConditions, len(exports))
	for key, target := range exports {
		conditions := exportConditions{}

		if sourceTarget, ok := rewriteTarget("/package.json", target, rewrites, ModeSource, loader); ok {
			conditions.Default = sourceTarget
		} else if result, ok := loader.Resolve("/package.json", target); ok && !result.External {
			conditions.Default = relativeSpecifier("/package.json", result.Path)
		}

		if typesTarget, ok := rewriteTarget("/package.json", target, rewrites, ModeDeclaration, loader); ok && typesTarget != conditions.Default {
			conditions.Types = typesTarget
		}

		out[key] = conditions
	}
	return out
}

func buildDependencies(deps []depcollect.Dependency, ecosystemScope string) (map[string]string, error) {
	out := make(map[string]string, len(deps))
	for _, dep := range deps {
		switch dep.Specifier.Kind {
		case depcollect.KindJSR:
			scoped, err := ident.ParseScopedPackage(dep.Specifier.Name)
			if err != nil {
				return nil, err
			}
			out[MappedName(ecosystemScope, scoped.Scope, scoped.Package)] = dep.Specifier.Constraint
		case depcollect.KindNPM:
			out[dep.Specifier.Name] = dep.Specifier.Constraint
		}
	}
	return out, nil
}

func marshalManifest(m packageJSON) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
