package npmcompat

import (
	"context"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/a-h/pkgpipe/modgraph"
)

// rewriteSpecifiers rewrites every specifier a module references —
// static/dynamic imports, triple-slash type references, JSDoc type
// imports — into the form the emitted file needs to keep resolving them,
// per rewrites and mode.
func rewriteSpecifiers(path string, src []byte, mt modgraph.MediaType, rewrites Rewrites, mode RewriteMode, loader modgraph.Loader) ([]byte, error) {
	var edits []edit

	if mt != modgraph.MediaTypeDts {
		treeEdits, err := collectImportEdits(path, src, mt, rewrites, mode, loader)
		if err != nil {
			return nil, err
		}
		edits = append(edits, treeEdits...)
	}

	edits = append(edits, collectPragmaEdits(path, src, mode, rewrites, loader)...)

	return applyEdits(src, edits), nil
}

func collectImportEdits(path string, src []byte, mt modgraph.MediaType, rewrites Rewrites, mode RewriteMode, loader modgraph.Loader) ([]edit, error) {
	parser := sitter.NewParser()
	switch mt {
	case modgraph.MediaTypeTSX:
		parser.SetLanguage(tsx.GetLanguage())
	case modgraph.MediaTypeTypeScript:
		parser.SetLanguage(typescript.GetLanguage())
	default:
		parser.SetLanguage(javascript.GetLanguage())
	}

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var edits []edit
	walkImportEdits(tree.RootNode(), path, src, rewrites, mode, loader, &edits)
	return edits, nil
}

func walkImportEdits(node *sitter.Node, path string, src []byte, rewrites Rewrites, mode RewriteMode, loader modgraph.Loader, edits *[]edit) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "import_statement", "export_statement":
		if lit := stringLiteralChild(node); lit != nil {
			addSpecifierEdit(lit, path, src, rewrites, mode, loader, edits)
		}
	case "call_expression":
		if fn := node.ChildByFieldName("function"); fn != nil && fn.Type() == "import" {
			if args := node.ChildByFieldName("arguments"); args != nil {
				if lit := stringLiteralChild(args); lit != nil {
					addSpecifierEdit(lit, path, src, rewrites, mode, loader, edits)
				}
			}
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		walkImportEdits(node.Child(i), path, src, rewrites, mode, loader, edits)
	}
}

func stringLiteralChild(node *sitter.Node) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "string" {
			return child
		}
	}
	return nil
}

func addSpecifierEdit(lit *sitter.Node, path string, src []byte, rewrites Rewrites, mode RewriteMode, loader modgraph.Loader, edits *[]edit) {
	original := string(src[lit.StartByte()+1 : lit.EndByte()-1])
	target, ok := rewriteTarget(path, original, rewrites, mode, loader)
	if !ok {
		return
	}
	*edits = append(*edits, edit{start: lit.StartByte() + 1, end: lit.EndByte() - 1, replace: []byte(target)})
}

var tripleSlashTypesRe = regexp.MustCompile(`^///\s*<reference\s+types\s*=\s*["']([^"']+)["']\s*/>\s*$`)
var jsdocImportRe = regexp.MustCompile(`import\(["']([^"']+)["']\)`)

// collectPragmaEdits rewrites or deletes triple-slash type references and
// JSDoc type imports, which tree-sitter treats as opaque comment text.
func collectPragmaEdits(path string, src []byte, mode RewriteMode, rewrites Rewrites, loader modgraph.Loader) []edit {
	var edits []edit
	var offset uint32

	lines := strings.Split(string(src), "\n")
	for _, line := range lines {
		lineStart := offset
		offset += uint32(len(line)) + 1

		trimmed := strings.TrimSpace(line)
		if m := tripleSlashTypesRe.FindStringSubmatchIndex(trimmed); m != nil {
			leading := uint32(len(line) - len(strings.TrimLeft(line, " \t")))
			if mode == ModeSource {
				edits = append(edits, edit{start: lineStart, end: lineStart + uint32(len(line))})
				continue
			}
			specifier := trimmed[m[2]:m[3]]
			target, ok := rewriteTarget(path, specifier, rewrites, ModeDeclaration, loader)
			if ok {
				edits = append(edits, edit{
					start:   lineStart + leading + uint32(m[2]),
					end:     lineStart + leading + uint32(m[3]),
					replace: []byte(target),
				})
			}
			continue
		}

		if mode != ModeDeclaration {
			continue
		}
		if !strings.Contains(line, "@type") {
			continue
		}
		if m := jsdocImportRe.FindStringSubmatchIndex(line); m != nil {
			specifier := line[m[2]:m[3]]
			target, ok := rewriteTarget(path, specifier, rewrites, ModeDeclaration, loader)
			if ok {
				edits = append(edits, edit{
					start:   lineStart + uint32(m[2]),
					end:     lineStart + uint32(m[3]),
					replace: []byte(target),
				})
			}
		}
	}
	return edits
}
