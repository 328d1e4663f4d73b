// Package modgraph builds a module dependency graph over a package's
// analysed source files using tree-sitter. Parsers are not thread-safe,
// so each language grammar is drawn from a sync.Pool and the builder is
// expected to run behind a dedicated, single-goroutine worker.
package modgraph

import (
	"context"
	"encoding/base64"
	"net/url"
	"regexp"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/a-h/pkgpipe/pipelineerr"
)

// DependencyKind distinguishes how a module referenced another.
type DependencyKind int

const (
	DependencyStatic DependencyKind = iota
	DependencyDynamic
	DependencyTypeReference
	DependencyJSDocTypeImport
)

// Range locates a dependency's specifier in its source file, 1-based.
type Range struct {
	Line   int
	Column int
}

// Dependency is one edge out of a module, as a raw specifier string
// (resolution against the in-memory file map or External happens in the
// depcollect/policy stages, not here).
type Dependency struct {
	Specifier string
	Kind      DependencyKind
	Range     Range
}

// Module is the analysis result for a single source file.
type Module struct {
	Path         string
	MediaType    MediaType
	Dependencies []Dependency
	// SelfTypesSpecifier is the "./foo.d.ts" sibling declaration file this
	// module declares via `/// <reference types="./foo.d.ts" />`, if any.
	SelfTypesSpecifier string
}

// MediaType classifies a module by its source file extension.
type MediaType int

const (
	MediaTypeUnknown MediaType = iota
	MediaTypeJavaScript
	MediaTypeJSX
	MediaTypeTypeScript
	MediaTypeTSX
	MediaTypeDts
)

func mediaTypeOf(path string) MediaType {
	switch {
	case strings.HasSuffix(path, ".d.ts"), strings.HasSuffix(path, ".d.mts"):
		return MediaTypeDts
	case strings.HasSuffix(path, ".tsx"):
		return MediaTypeTSX
	case strings.HasSuffix(path, ".jsx"):
		return MediaTypeJSX
	case strings.HasSuffix(path, ".ts"), strings.HasSuffix(path, ".mts"):
		return MediaTypeTypeScript
	case strings.HasSuffix(path, ".js"), strings.HasSuffix(path, ".mjs"), strings.HasSuffix(path, ".cjs"):
		return MediaTypeJavaScript
	default:
		return MediaTypeUnknown
	}
}

// Graph is a mapping from module path to its analysis, plus a record of
// every resolved "file:///" root that was walked to build it.
type Graph struct {
	Modules map[string]*Module
	Roots   []string
}

// Loader resolves a specifier encountered while walking the graph. It
// returns the resolved path (file-map key, with a leading "/") when the
// specifier is a local file, ok=true with External set for schemes the
// policy/dependency stages handle themselves (http(s), node, npm, jsr),
// and ok=false when the specifier cannot be resolved at all.
type Loader struct {
	Files map[string][]byte
}

// LoadResult is what Loader.Resolve returns for one specifier.
type LoadResult struct {
	Path     string
	Source   []byte
	External bool
	Scheme   string
}

var externalSchemes = map[string]bool{
	"http": true, "https": true, "node": true, "npm": true, "jsr": true,
}

// Resolve interprets specifier, as referenced from the module at from,
// against the in-memory file map. from may be "" when specifier is
// already absolute or not file-relative (a root entrypoint, a data: URL,
// an external scheme).
func (l Loader) Resolve(from, specifier string) (LoadResult, bool) {
	if strings.HasPrefix(specifier, "data:") {
		decoded, ok := decodeDataURL(specifier)
		if !ok {
			return LoadResult{}, false
		}
		return LoadResult{Source: decoded}, true
	}

	u, err := url.Parse(specifier)
	if err == nil && u.Scheme != "" {
		if externalSchemes[u.Scheme] {
			return LoadResult{External: true, Scheme: u.Scheme}, true
		}
		if u.Scheme == "file" {
			path := u.Path
			src, ok := l.Files[path]
			if !ok {
				return LoadResult{}, false
			}
			return LoadResult{Path: path, Source: src}, true
		}
		return LoadResult{}, false
	}

	path := resolveRelative(from, specifier)
	src, ok := l.Files[path]
	if !ok {
		return LoadResult{}, false
	}
	return LoadResult{Path: path, Source: src}, true
}

// resolveRelative joins a relative specifier against the directory of
// the module that referenced it. Specifiers that already look absolute
// (a leading "/") are left as-is.
func resolveRelative(from, specifier string) string {
	if strings.HasPrefix(specifier, "/") || from == "" {
		return specifier
	}
	dir := from
	if idx := strings.LastIndexByte(from, '/'); idx >= 0 {
		dir = from[:idx]
	} else {
		dir = ""
	}
	joined := dir + "/" + specifier

	var segments []string
	for _, seg := range strings.Split(joined, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(segments) > 0 {
				segments = segments[:len(segments)-1]
			}
		default:
			segments = append(segments, seg)
		}
	}
	return "/" + strings.Join(segments, "/")
}

// isLocalSpecifier reports whether specifier looks like a relative or
// absolute in-package path rather than an external/data URL, so that a
// failed resolution is a graph error rather than something the policy
// checker will classify separately.
func isLocalSpecifier(specifier string) bool {
	if strings.HasPrefix(specifier, "data:") {
		return false
	}
	if u, err := url.Parse(specifier); err == nil && u.Scheme != "" {
		return u.Scheme == "file"
	}
	return true
}

func decodeDataURL(specifier string) ([]byte, bool) {
	rest := strings.TrimPrefix(specifier, "data:")
	_, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, false
	}
	if strings.Contains(rest[:len(rest)-len(payload)-1], ";base64") {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, false
		}
		return decoded, true
	}
	decoded, err := url.QueryUnescape(payload)
	if err != nil {
		return nil, false
	}
	return []byte(decoded), true
}

// parserPool draws sync.Pool-backed tree-sitter parsers, one pool per
// grammar, since *sitter.Parser is not safe to share across goroutines.
type parserPool struct {
	js  sync.Pool
	ts  sync.Pool
	tsx sync.Pool
}

func newParserPool() *parserPool {
	p := &parserPool{}
	p.js.New = func() any {
		parser := sitter.NewParser()
		parser.SetLanguage(javascript.GetLanguage())
		return parser
	}
	p.ts.New = func() any {
		parser := sitter.NewParser()
		parser.SetLanguage(typescript.GetLanguage())
		return parser
	}
	p.tsx.New = func() any {
		parser := sitter.NewParser()
		parser.SetLanguage(tsx.GetLanguage())
		return parser
	}
	return p
}

func (p *parserPool) get(mt MediaType) (*sitter.Parser, *sync.Pool) {
	switch mt {
	case MediaTypeTSX:
		return p.tsx.Get().(*sitter.Parser), &p.tsx
	case MediaTypeTypeScript, MediaTypeDts:
		return p.ts.Get().(*sitter.Parser), &p.ts
	default:
		return p.js.Get().(*sitter.Parser), &p.js
	}
}

// Builder walks a set of root "file:///<path>" entrypoints and produces a
// Graph. It must run on a single dedicated goroutine: the parser pools it
// holds are not safe to use concurrently from the same Builder instance,
// matching tree-sitter's non-reentrant parser state.
type Builder struct {
	loader Loader
	pool   *parserPool
}

// NewBuilder constructs a Builder over the given in-memory file map.
func NewBuilder(files map[string][]byte) *Builder {
	return &Builder{loader: Loader{Files: files}, pool: newParserPool()}
}

var tripleSlashTypesRe = regexp.MustCompile(`^///\s*<reference\s+types\s*=\s*["']([^"']+)["']\s*/>\s*$`)

// Build walks every root and everything reachable from it, returning a
// Graph keyed by resolved file path. Unresolvable local specifiers and
// tree-sitter parse failures are returned as graphError.
func (b *Builder) Build(ctx context.Context, roots []string) (*Graph, error) {
	graph := &Graph{Modules: make(map[string]*Module), Roots: roots}

	var queue []string
	for _, root := range roots {
		path := strings.TrimPrefix(root, "file://")
		queue = append(queue, path)
	}

	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]
		if _, done := graph.Modules[path]; done {
			continue
		}

		src, ok := b.loader.Files[path]
		if !ok {
			return nil, pipelineerr.User(pipelineerr.CodeGraphError, "module graph references missing file "+path)
		}

		module, err := b.analyze(path, src)
		if err != nil {
			return nil, err
		}
		graph.Modules[path] = module

		for _, dep := range module.Dependencies {
			result, ok := b.loader.Resolve(path, dep.Specifier)
			if !ok {
				if isLocalSpecifier(dep.Specifier) {
					return nil, pipelineerr.UserAt(pipelineerr.CodeGraphError,
						"cannot resolve module "+dep.Specifier, "file://"+path, dep.Range.Line, dep.Range.Column)
				}
				continue
			}
			if result.External || result.Path == "" {
				continue
			}
			queue = append(queue, result.Path)
		}
	}

	return graph, nil
}

func (b *Builder) analyze(path string, src []byte) (*Module, error) {
	mt := mediaTypeOf(path)
	parser, pool := b.pool.get(mt)
	defer pool.Put(parser)

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, pipelineerr.UserAt(pipelineerr.CodeGraphError, "failed to parse module: "+err.Error(), "file://"+path, 0, 0)
	}
	defer tree.Close()

	module := &Module{Path: path, MediaType: mt}

	root := tree.RootNode()
	walkImportsExports(root, src, module)
	scanPragmas(src, module)

	return module, nil
}

// walkImportsExports recursively finds import/export statements and
// dynamic import() calls, recording their string-literal specifier and
// 1-based source location.
func walkImportsExports(node *sitter.Node, src []byte, module *Module) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "import_statement", "export_statement":
		if lit := findStringLiteralChild(node); lit != nil {
			module.Dependencies = append(module.Dependencies, newDependency(lit, src, DependencyStatic))
		}
	case "call_expression":
		if fn := node.ChildByFieldName("function"); fn != nil && fn.Type() == "import" {
			if args := node.ChildByFieldName("arguments"); args != nil {
				if lit := findStringLiteralChild(args); lit != nil {
					module.Dependencies = append(module.Dependencies, newDependency(lit, src, DependencyDynamic))
				}
			}
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		walkImportsExports(node.Child(i), src, module)
	}
}

func findStringLiteralChild(node *sitter.Node) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "string" {
			return child
		}
	}
	return nil
}

func newDependency(lit *sitter.Node, src []byte, kind DependencyKind) Dependency {
	text := lit.Content(src)
	specifier := strings.Trim(text, `'"`)
	point := lit.StartPoint()
	return Dependency{
		Specifier: specifier,
		Kind:      kind,
		Range:     Range{Line: int(point.Row) + 1, Column: int(point.Column) + 1},
	}
}

// scanPragmas extracts triple-slash type reference directives and JSDoc
// `@type {import("...")}`/`@typedef` style type imports. Tree-sitter's
// JS/TS grammars treat these as opaque comments, so they are recovered by
// a lexical scan rather than an AST query, mirroring how TypeScript's own
// compiler host treats triple-slash directives as pre-parse pragmas.
func scanPragmas(src []byte, module *Module) {
	lines := strings.Split(string(src), "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if m := tripleSlashTypesRe.FindStringSubmatch(trimmed); m != nil {
			module.Dependencies = append(module.Dependencies, Dependency{
				Specifier: m[1],
				Kind:      DependencyTypeReference,
				Range:     Range{Line: i + 1, Column: 1},
			})
			module.SelfTypesSpecifier = m[1]
		}
		if idx := strings.Index(line, "import("); idx >= 0 && strings.Contains(line, "@type") {
			if spec, ok := extractJSDocImportSpecifier(line[idx:]); ok {
				module.Dependencies = append(module.Dependencies, Dependency{
					Specifier: spec,
					Kind:      DependencyJSDocTypeImport,
					Range:     Range{Line: i + 1, Column: idx + 1},
				})
			}
		}
	}
}

var jsdocImportRe = regexp.MustCompile(`^import\(["']([^"']+)["']\)`)

func extractJSDocImportSpecifier(s string) (string, bool) {
	m := jsdocImportRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}
