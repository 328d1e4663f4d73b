// Package policy runs the banned-syntax and disallowed-import checks
// against an analysed module graph. The syntax checks re-parse each
// module with the same tree-sitter grammars modgraph uses; modgraph's own
// parse trees are not reused.
package policy

import (
	"context"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/a-h/pkgpipe/modgraph"
	"github.com/a-h/pkgpipe/pipelineerr"
)

var allowedSchemes = map[string]bool{
	"file": true, "data": true, "node": true, "npm": true, "jsr": true,
}

// CheckGraph runs every policy check across every module in graph.
// Checking stops at the first violation; a publish is rejected wholesale
// on any single policy failure.
func CheckGraph(graph *modgraph.Graph, files map[string][]byte) error {
	for path, module := range graph.Modules {
		if err := checkImports(module, path); err != nil {
			return err
		}
		src, ok := files[path]
		if !ok {
			continue
		}
		if err := checkSyntax(src, path, module.MediaType); err != nil {
			return err
		}
		if err := checkImportAttributes(src, path); err != nil {
			return err
		}
		if err := checkTripleSlashDirectives(src, path); err != nil {
			return err
		}
	}
	return nil
}

// checkImports rejects any dependency specifier whose scheme is not in
// {file, data, node, npm, jsr}; in particular http(s) imports.
func checkImports(module *modgraph.Module, path string) error {
	for _, dep := range module.Dependencies {
		scheme, hasScheme := specifierScheme(dep.Specifier)
		if !hasScheme {
			continue // relative specifier, implicitly file-scheme
		}
		if !allowedSchemes[scheme] {
			return pipelineerr.UserAt(pipelineerr.CodeInvalidExternalImport,
				"import of \""+dep.Specifier+"\" is not allowed: only file, data, node, npm and jsr specifiers are permitted",
				"file://"+path, dep.Range.Line, dep.Range.Column)
		}
	}
	return nil
}

func specifierScheme(specifier string) (string, bool) {
	idx := strings.Index(specifier, ":")
	if idx <= 0 {
		return "", false
	}
	scheme := specifier[:idx]
	for _, c := range scheme {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.') {
			return "", false
		}
	}
	// Windows-style drive letters ("c:\...") are not real schemes, but
	// package paths never contain backslashes or colons, so this case
	// cannot arise for a validated ident.Path-backed specifier.
	return scheme, true
}

var tripleSlashBannedRe = regexp.MustCompile(`^///\s+<reference\s+(no-default-lib\s*=\s*"true"|lib\s*=\s*("[^"]+"|'[^']+'))\s*/>\s*$`)

// CheckTripleSlashDirectives scans every line of src, not only its leading
// comments, for a banned triple-slash reference directive. Unlike <reference types="...">,
// which the module analyzer already turns into a dependency,
// no-default-lib and lib directives alter the ambient type environment in
// a way this registry does not support per-package.
func CheckTripleSlashDirectives(src []byte, path string) error {
	return checkTripleSlashDirectives(src, path)
}

func checkTripleSlashDirectives(src []byte, path string) error {
	lines := strings.Split(string(src), "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if tripleSlashBannedRe.MatchString(trimmed) {
			return pipelineerr.UserAt(pipelineerr.CodeBannedTripleSlashDirectives,
				"triple-slash reference directives that alter the global type environment (no-default-lib, lib) are not allowed",
				"file://"+path, i+1, 1)
		}
	}
	return nil
}

// bannedSyntaxKinds maps a tree-sitter node type, found while walking a
// TypeScript parse tree, to the error it triggers.
var bannedSyntaxKinds = map[string]pipelineerr.Code{
	"export_assignment":     pipelineerr.CodeCommonJS,
	"import_require_clause": pipelineerr.CodeCommonJS,
	"namespace_export":      pipelineerr.CodeGlobalTypeAugmentation,
}

func checkSyntax(src []byte, path string, mt modgraph.MediaType) error {
	parser := sitter.NewParser()
	switch mt {
	case modgraph.MediaTypeTSX:
		parser.SetLanguage(tsx.GetLanguage())
	case modgraph.MediaTypeTypeScript, modgraph.MediaTypeDts:
		parser.SetLanguage(typescript.GetLanguage())
	default:
		parser.SetLanguage(javascript.GetLanguage())
	}

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return pipelineerr.UserAt(pipelineerr.CodeGraphError, "failed to parse module for policy checks: "+err.Error(), "file://"+path, 0, 0)
	}
	defer tree.Close()

	return walkBannedSyntax(tree.RootNode(), src, path)
}

func walkBannedSyntax(node *sitter.Node, src []byte, path string) error {
	if node == nil {
		return nil
	}

	nodeType := node.Type()

	if nodeType == "export_statement" && hasDeclareGlobalChild(node, src) {
		point := node.StartPoint()
		return pipelineerr.UserAt(pipelineerr.CodeGlobalTypeAugmentation,
			"declare global {} augments the global scope, which published packages may not do",
			"file://"+path, int(point.Row)+1, int(point.Column)+1)
	}

	if code, ok := bannedSyntaxKinds[nodeType]; ok {
		point := node.StartPoint()
		message := bannedSyntaxMessage(nodeType)
		return pipelineerr.UserAt(code, message, "file://"+path, int(point.Row)+1, int(point.Column)+1)
	}

	if nodeType == "module" && moduleHasStringName(node, src) {
		point := node.StartPoint()
		return pipelineerr.UserAt(pipelineerr.CodeGlobalTypeAugmentation,
			"ambient module declarations with a string name are not allowed", "file://"+path, int(point.Row)+1, int(point.Column)+1)
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		if err := walkBannedSyntax(node.Child(i), src, path); err != nil {
			return err
		}
	}
	return nil
}

func bannedSyntaxMessage(nodeType string) string {
	switch nodeType {
	case "export_assignment":
		return "export = ... is a CommonJS-style export and is not allowed"
	case "import_require_clause":
		return "import x = require(...) is a CommonJS-style import and is not allowed"
	default:
		return "export as namespace X is not allowed"
	}
}

// hasDeclareGlobalChild detects `declare global { ... }`, which the
// TypeScript grammar represents as an export_statement wrapping an
// ambient_declaration whose body is the identifier "global".
func hasDeclareGlobalChild(node *sitter.Node, src []byte) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "ambient_declaration" {
			continue
		}
		text := child.Content(src)
		if strings.Contains(text, "global") {
			return true
		}
	}
	return false
}

func moduleHasStringName(node *sitter.Node, src []byte) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "string" {
			return true
		}
	}
	return false
}

// importAttributeRe matches the legacy `assert { ... }` import attribute
// keyword, which the grammar does not expose as a distinct node type in
// every parser version; detected lexically between the specifier literal
// and the attributes bag, per spec's detection strategy.
var importAttributeRe = regexp.MustCompile(`(?:from\s*["'][^"']+["']|^\s*import\s*["'][^"']+["'])\s*assert\s*\{`)

func checkImportAttributes(src []byte, path string) error {
	lines := strings.Split(string(src), "\n")
	for i, line := range lines {
		if importAttributeRe.MatchString(line) {
			return pipelineerr.UserAt(pipelineerr.CodeBannedImportAssertion,
				"the \"assert\" import attribute keyword is no longer supported; use \"with\" instead",
				"file://"+path, i+1, strings.Index(line, "assert")+1)
		}
	}
	return nil
}
