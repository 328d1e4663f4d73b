package npmcompat

import (
	"bytes"
	"context"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/a-h/pkgpipe/modgraph"
)

// erasedNodeTypes are TypeScript constructs that erasable-syntax mode
// strips without needing a real type checker: they contribute nothing to
// the emitted JavaScript.
var erasedNodeTypes = map[string]bool{
	"type_annotation":                true,
	"type_alias_declaration":         true,
	"interface_declaration":          true,
	"ambient_declaration":            true,
	"type_parameters":                true,
	"type_arguments":                 true,
	"type_predicate_annotation":      true,
	"definite_assignment_assertion":  true,
}

// stripTypes transpiles TypeScript source to plain JavaScript by erasing
// type-only syntax, leaving runtime expressions untouched. It does not
// perform any code generation beyond deletion: no downleveling, no JSX
// transform, no enum/namespace lowering. Source accepted by the policy
// checks never contains those constructs, since they would already have
// been rejected as banned syntax or require a real type checker that
// this registry does not run.
func stripTypes(src []byte, mt modgraph.MediaType) ([]byte, error) {
	parser := sitter.NewParser()
	switch mt {
	case modgraph.MediaTypeTSX:
		parser.SetLanguage(tsx.GetLanguage())
	case modgraph.MediaTypeJSX:
		parser.SetLanguage(javascript.GetLanguage())
	default:
		parser.SetLanguage(typescript.GetLanguage())
	}

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var edits []edit
	collectErasures(tree.RootNode(), src, &edits)
	return applyEdits(src, edits), nil
}

type edit struct {
	start, end uint32
	replace    []byte
}

func collectErasures(node *sitter.Node, src []byte, edits *[]edit) {
	if node == nil {
		return
	}

	nodeType := node.Type()

	if erasedNodeTypes[nodeType] {
		*edits = append(*edits, edit{start: node.StartByte(), end: node.EndByte()})
		return
	}

	switch nodeType {
	case "as_expression", "satisfies_expression":
		expr := node.Child(0)
		if expr != nil {
			*edits = append(*edits, edit{start: expr.EndByte(), end: node.EndByte()})
			collectErasures(expr, src, edits)
		}
		return
	case "non_null_expression":
		expr := node.Child(0)
		if expr != nil {
			*edits = append(*edits, edit{start: expr.EndByte(), end: node.EndByte()})
			collectErasures(expr, src, edits)
		}
		return
	case "import_statement", "export_statement":
		text := strings.TrimSpace(node.Content(src))
		if strings.HasPrefix(text, "import type ") || strings.HasPrefix(text, "export type ") {
			*edits = append(*edits, edit{start: node.StartByte(), end: node.EndByte()})
			return
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		collectErasures(node.Child(i), src, edits)
	}
}

// applyEdits applies non-overlapping byte-range edits, sorted by start
// position, producing the rewritten source.
func applyEdits(src []byte, edits []edit) []byte {
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })

	var out bytes.Buffer
	var cursor uint32
	for _, e := range edits {
		if e.start < cursor {
			continue // nested edit already covered by an enclosing one
		}
		out.Write(src[cursor:e.start])
		out.Write(e.replace)
		cursor = e.end
	}
	out.Write(src[cursor:])
	return out.Bytes()
}
