package npmcompat

import (
	"path"
	"strings"

	"github.com/a-h/pkgpipe/modgraph"
)

// RewriteMode selects which of the two rewrite tables a specifier
// rewrite draws from.
type RewriteMode int

const (
	// ModeSource rewrites a specifier for consumption by a runtime
	// JavaScript import.
	ModeSource RewriteMode = iota
	// ModeDeclaration rewrites a specifier for consumption by a type
	// checker reading a .d.ts file.
	ModeDeclaration
)

// Rewrites holds the two specifier rewrite tables computed once for a
// whole package build: where a module's runtime source ends up, and
// where its type declarations end up.
type Rewrites struct {
	Source      map[string]string
	Declaration map[string]string
}

// ComputeRewrites classifies every analysed module by its media type and
// builds the source_rewrites/declaration_rewrites tables the rest of the
// builder uses to retarget specifiers.
func ComputeRewrites(graph *modgraph.Graph) Rewrites {
	r := Rewrites{Source: map[string]string{}, Declaration: map[string]string{}}
	for p, module := range graph.Modules {
		switch module.MediaType {
		case modgraph.MediaTypeJavaScript:
			if module.SelfTypesSpecifier != "" {
				r.Declaration[p] = resolveSibling(p, module.SelfTypesSpecifier)
			}
		case modgraph.MediaTypeJSX:
			jsTarget := withExtension(p, ".js")
			r.Source[p] = jsTarget
			if module.SelfTypesSpecifier != "" {
				r.Declaration[p] = resolveSibling(p, module.SelfTypesSpecifier)
			}
		case modgraph.MediaTypeDts:
			// .d.ts modules cannot carry a further types dependency.
		case modgraph.MediaTypeTypeScript, modgraph.MediaTypeTSX:
			jsTarget := withExtension(p, ".js")
			r.Source[p] = jsTarget
			if module.SelfTypesSpecifier != "" {
				r.Declaration[p] = resolveSibling(p, module.SelfTypesSpecifier)
			} else {
				// No fast-check module exists for this source file (no
				// type checker is embedded to derive one); project a
				// declaration straight from the TypeScript itself, per
				// the "map to themselves as declarations" fallback.
				r.Declaration[p] = withExtension(p, ".d.ts")
			}
		}
	}
	return r
}

func withExtension(p, newExt string) string {
	dir, base := path.Split(p)
	if idx := strings.LastIndexByte(base, '.'); idx >= 0 {
		base = base[:idx]
	}
	return dir + base + newExt
}

func resolveSibling(modulePath, specifier string) string {
	if strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") {
		return path.Clean(path.Join(path.Dir(modulePath), specifier))
	}
	return specifier
}

// rewriteTarget resolves specifier, as referenced from fromPath, to its
// rewritten form under mode. It reports false when the specifier does not
// resolve to a tracked local module; callers then keep the original
// specifier.
func rewriteTarget(fromPath, specifier string, rewrites Rewrites, mode RewriteMode, loader modgraph.Loader) (string, bool) {
	result, ok := loader.Resolve(fromPath, specifier)
	if !ok || result.External {
		return "", false
	}

	table := rewrites.Source
	if mode == ModeDeclaration {
		table = rewrites.Declaration
	}

	target, ok := table[result.Path]
	if !ok {
		return "", false
	}
	return relativeSpecifier(fromTargetPath(fromPath, rewrites, mode), target), true
}

// fromTargetPath is the rewritten path of the module doing the
// importing, since relative specifiers are resolved from the emitted
// file's own location, not the original source's.
func fromTargetPath(fromPath string, rewrites Rewrites, mode RewriteMode) string {
	table := rewrites.Source
	if mode == ModeDeclaration {
		table = rewrites.Declaration
	}
	if target, ok := table[fromPath]; ok {
		return target
	}
	return fromPath
}

// relativeSpecifier computes a "./…" or "../…" specifier from fromPath to
// toPath, both absolute package-relative paths.
func relativeSpecifier(fromPath, toPath string) string {
	fromDir := strings.Split(strings.Trim(path.Dir(fromPath), "/"), "/")
	if fromDir[0] == "." || fromDir[0] == "" {
		fromDir = fromDir[:0]
	}
	to := strings.Split(strings.Trim(toPath, "/"), "/")

	common := 0
	for common < len(fromDir) && common < len(to)-1 && fromDir[common] == to[common] {
		common++
	}

	var parts []string
	for i := common; i < len(fromDir); i++ {
		parts = append(parts, "..")
	}
	parts = append(parts, to[common:]...)

	rel := strings.Join(parts, "/")
	if !strings.HasPrefix(rel, ".") {
		rel = "./" + rel
	}
	return rel
}
