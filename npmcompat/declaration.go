package npmcompat

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/a-h/pkgpipe/modgraph"
)

// projectDeclaration produces a best-effort .d.ts body for a TypeScript
// module that has no fast-check declaration module of its own: exported
// const/let/var declarations keep their written type annotation (or
// widen to "any" when none is written) and drop their initializer unless
// it is already a literal valid in an ambient context; exported function
// declarations keep their signature and drop their body; interfaces,
// type aliases, enums and ambient blocks are already declaration-safe
// and pass through unchanged. Module-private runtime statements
// contribute nothing to the public surface and are dropped rather than
// emitted as invalid ambient syntax. There is no embedded type checker
// here, so this never infers a type that isn't already written out.
func projectDeclaration(src []byte, mt modgraph.MediaType) ([]byte, error) {
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
	root := tree.RootNode()
	for i := 0; i < int(root.ChildCount()); i++ {
		collectDeclarationEdit(root.Child(i), src, &edits)
	}
	return applyEdits(src, edits), nil
}

// droppedTopLevelKinds are module-private runtime constructs with no
// exported surface: keeping them would either leak private
// implementation detail or, for statements with bodies, produce syntax
// that isn't legal in an ambient declaration.
var droppedTopLevelKinds = map[string]bool{
	"lexical_declaration":            true,
	"variable_declaration":           true,
	"function_declaration":           true,
	"generator_function_declaration": true,
	"class_declaration":              true,
	"expression_statement":           true,
	"if_statement":                   true,
	"for_statement":                  true,
	"for_in_statement":               true,
	"while_statement":                true,
	"do_statement":                   true,
	"try_statement":                  true,
	"switch_statement":               true,
	"labeled_statement":              true,
	"throw_statement":                true,
	"empty_statement":                true,
}

// passthroughTopLevelKinds are already declaration-safe regardless of
// whether they're exported, or are needed unchanged for later specifier
// rewriting.
var passthroughTopLevelKinds = map[string]bool{
	"import_statement":       true,
	"interface_declaration":  true,
	"type_alias_declaration": true,
	"enum_declaration":       true,
	"ambient_declaration":    true,
}

func collectDeclarationEdit(node *sitter.Node, src []byte, edits *[]edit) {
	switch {
	case node.Type() == "export_statement":
		collectExportDeclarationEdit(node, src, edits)
	case passthroughTopLevelKinds[node.Type()]:
		// Emitted unchanged.
	case droppedTopLevelKinds[node.Type()]:
		*edits = append(*edits, edit{start: node.StartByte(), end: node.EndByte()})
	}
}

func collectExportDeclarationEdit(node *sitter.Node, src []byte, edits *[]edit) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "lexical_declaration", "variable_declaration":
			collectExportedVariableEdit(child, src, edits)
			return
		case "function_declaration", "generator_function_declaration":
			collectExportedFunctionEdit(child, edits)
			return
		}
	}
	// class_declaration, interface_declaration, type_alias_declaration,
	// enum_declaration, ambient_declaration, export clauses, re-exports
	// and default exports: emitted unchanged. This projection only
	// narrows runtime bodies; it never rewrites syntax that is already
	// declaration-safe.
}

// collectExportedVariableEdit turns "export const hello: string = 'hi';"
// into "export declare const hello: string = 'hi';", keeping a literal
// initializer as-is since ambient const declarations may carry one; a
// non-literal initializer is dropped.
func collectExportedVariableEdit(declNode *sitter.Node, src []byte, edits *[]edit) {
	*edits = append(*edits, edit{start: declNode.StartByte(), end: declNode.StartByte(), replace: []byte("declare ")})

	for i := 0; i < int(declNode.ChildCount()); i++ {
		declarator := declNode.Child(i)
		if declarator.Type() != "variable_declarator" {
			continue
		}

		nameNode := declarator.ChildByFieldName("name")
		typeNode := declarator.ChildByFieldName("type")
		valueNode := declarator.ChildByFieldName("value")
		if valueNode == nil {
			continue
		}

		if isAmbientLiteral(valueNode) {
			if typeNode == nil && nameNode != nil {
				*edits = append(*edits, edit{start: nameNode.EndByte(), end: nameNode.EndByte(), replace: []byte(": any")})
			}
			continue
		}

		eqStart := findPrecedingEquals(src, declarator.StartByte(), valueNode.StartByte())
		replacement := []byte("")
		if typeNode == nil && nameNode != nil {
			replacement = []byte(": any")
		}
		*edits = append(*edits, edit{start: eqStart, end: valueNode.EndByte(), replace: replacement})
	}
}

// isAmbientLiteral reports whether n is a literal expression TypeScript
// permits as a const initializer in an ambient context.
func isAmbientLiteral(n *sitter.Node) bool {
	switch n.Type() {
	case "string", "number", "true", "false", "null", "template_string":
		return true
	case "unary_expression":
		op := n.ChildByFieldName("operator")
		arg := n.ChildByFieldName("argument")
		return op != nil && op.Type() == "-" && arg != nil && arg.Type() == "number"
	default:
		return false
	}
}

func firstChildOfType(node *sitter.Node, t string) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		if child := node.Child(i); child.Type() == t {
			return child
		}
	}
	return nil
}

func findPrecedingEquals(src []byte, lowerBound, upperBound uint32) uint32 {
	i := upperBound
	for i > lowerBound {
		i--
		if src[i] == '=' {
			return i
		}
	}
	return lowerBound
}

// collectExportedFunctionEdit turns "export function f(): number { ... }"
// into "export declare function f(): number;", widening to "any" when no
// return type was written. "declare async function" isn't valid, so an
// async keyword is replaced by "declare" rather than edited alongside it.
func collectExportedFunctionEdit(declNode *sitter.Node, edits *[]edit) {
	if async := firstChildOfType(declNode, "async"); async != nil {
		*edits = append(*edits, edit{start: async.StartByte(), end: async.EndByte(), replace: []byte("declare")})
	} else {
		*edits = append(*edits, edit{start: declNode.StartByte(), end: declNode.StartByte(), replace: []byte("declare ")})
	}

	body := declNode.ChildByFieldName("body")
	if body == nil {
		return
	}
	returnType := declNode.ChildByFieldName("return_type")
	replacement := []byte(";")
	start := body.StartByte()
	if returnType != nil {
		start = returnType.EndByte()
	} else {
		replacement = []byte(": any;")
		if params := declNode.ChildByFieldName("parameters"); params != nil {
			start = params.EndByte()
		}
	}
	*edits = append(*edits, edit{start: start, end: body.EndByte(), replace: replacement})
}
