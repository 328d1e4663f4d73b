package policy

import (
	"context"
	"testing"

	"github.com/a-h/pkgpipe/modgraph"
	"github.com/a-h/pkgpipe/pipelineerr"
)

func buildGraph(t *testing.T, files map[string][]byte, root string) *modgraph.Graph {
	t.Helper()
	b := modgraph.NewBuilder(files)
	graph, err := b.Build(context.Background(), []string{"file://" + root})
	if err != nil {
		t.Fatal(err)
	}
	return graph
}

func TestCheckGraphRejectsHttpImport(t *testing.T) {
	files := map[string][]byte{
		"/mod.ts": []byte("import 'https://example.com/x.js';\n"),
	}
	graph := buildGraph(t, files, "/mod.ts")
	err := CheckGraph(graph, files)
	var pe *pipelineerr.Error
	if err == nil || !asErr(err, &pe) || pe.Code != pipelineerr.CodeInvalidExternalImport {
		t.Fatalf("expected invalidExternalImport, got %v", err)
	}
}

func TestCheckGraphAllowsJsrNpmNodeData(t *testing.T) {
	files := map[string][]byte{
		"/mod.ts": []byte("import 'jsr:@scope/pkg@1'; import 'npm:lodash@4'; import 'node:fs'; import 'data:text/plain,x';\n"),
	}
	graph := buildGraph(t, files, "/mod.ts")
	if err := CheckGraph(graph, files); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckGraphRejectsBannedTripleSlashDirective(t *testing.T) {
	files := map[string][]byte{
		"/mod.ts": []byte(`/// <reference no-default-lib="true" />` + "\nexport const x = 1;\n"),
	}
	graph := buildGraph(t, files, "/mod.ts")
	err := CheckGraph(graph, files)
	var pe *pipelineerr.Error
	if err == nil || !asErr(err, &pe) || pe.Code != pipelineerr.CodeBannedTripleSlashDirectives {
		t.Fatalf("expected bannedTripleSlashDirectives, got %v", err)
	}
}

func TestCheckSyntaxRejectsDeclareGlobal(t *testing.T) {
	src := []byte("declare global {\n  interface Window {}\n}\n")
	err := checkSyntax(src, "/mod.ts", modgraph.MediaTypeTypeScript)
	var pe *pipelineerr.Error
	if err == nil || !asErr(err, &pe) || pe.Code != pipelineerr.CodeGlobalTypeAugmentation {
		t.Fatalf("expected globalTypeAugmentation, got %v", err)
	}
	if pe.Line != 1 {
		t.Errorf("expected error on line 1, got %d", pe.Line)
	}
}

func TestCheckSyntaxRejectsExportEquals(t *testing.T) {
	src := []byte("export = foo;\n")
	err := checkSyntax(src, "/mod.ts", modgraph.MediaTypeTypeScript)
	var pe *pipelineerr.Error
	if err == nil || !asErr(err, &pe) || pe.Code != pipelineerr.CodeCommonJS {
		t.Fatalf("expected commonJs, got %v", err)
	}
}

func TestCheckSyntaxAllowsPlainSource(t *testing.T) {
	src := []byte("export const hello: string = 'hi';\n")
	if err := checkSyntax(src, "/mod.ts", modgraph.MediaTypeTypeScript); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckTripleSlashDirectives(t *testing.T) {
	bad := []byte(`/// <reference no-default-lib="true" />` + "\n")
	if err := checkTripleSlashDirectives(bad, "/mod.ts"); err == nil {
		t.Fatal("expected bannedTripleSlashDirectives")
	}

	ok := []byte(`/// <reference types="./mod.d.ts" />` + "\n")
	if err := checkTripleSlashDirectives(ok, "/mod.ts"); err != nil {
		t.Fatalf("unexpected error for types reference: %v", err)
	}
}

func TestCheckImportAttributesRejectsAssert(t *testing.T) {
	src := []byte(`import data from './data.json' assert { type: 'json' };` + "\n")
	err := checkImportAttributes(src, "/mod.ts")
	var pe *pipelineerr.Error
	if err == nil || !asErr(err, &pe) || pe.Code != pipelineerr.CodeBannedImportAssertion {
		t.Fatalf("expected bannedImportAssertion, got %v", err)
	}
}

func TestCheckImportAttributesAllowsWith(t *testing.T) {
	src := []byte(`import data from './data.json' with { type: 'json' };` + "\n")
	if err := checkImportAttributes(src, "/mod.ts"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func asErr(err error, target **pipelineerr.Error) bool {
	pe, ok := err.(*pipelineerr.Error)
	if ok {
		*target = pe
	}
	return ok
}
