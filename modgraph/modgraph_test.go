package modgraph

import (
	"context"
	"testing"
)

func TestBuildStaticImport(t *testing.T) {
	files := map[string][]byte{
		"/mod.ts":  []byte("import { helper } from './util.ts';\nexport const hello: string = helper();\n"),
		"/util.ts": []byte("export function helper(): string { return 'hi'; }\n"),
	}
	b := NewBuilder(files)
	graph, err := b.Build(context.Background(), []string{"file:///mod.ts"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(graph.Modules) != 2 {
		t.Fatalf("expected 2 modules, got %d", len(graph.Modules))
	}
	mod, ok := graph.Modules["/mod.ts"]
	if !ok {
		t.Fatal("expected /mod.ts in graph")
	}
	if len(mod.Dependencies) != 1 || mod.Dependencies[0].Specifier != "./util.ts" {
		t.Fatalf("expected one dependency on ./util.ts, got %+v", mod.Dependencies)
	}
	if mod.Dependencies[0].Range.Line != 1 {
		t.Errorf("expected dependency on line 1, got %d", mod.Dependencies[0].Range.Line)
	}
}

func TestBuildHttpImportSurfacesAsDependency(t *testing.T) {
	files := map[string][]byte{
		"/mod.ts": []byte("import 'https://example.com/x.js';\n"),
	}
	b := NewBuilder(files)
	graph, err := b.Build(context.Background(), []string{"file:///mod.ts"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mod := graph.Modules["/mod.ts"]
	if len(mod.Dependencies) != 1 || mod.Dependencies[0].Specifier != "https://example.com/x.js" {
		t.Fatalf("expected dependency on the http specifier, got %+v", mod.Dependencies)
	}
}

func TestBuildMissingFileIsGraphError(t *testing.T) {
	files := map[string][]byte{
		"/mod.ts": []byte("import './missing.ts';\n"),
	}
	b := NewBuilder(files)
	_, err := b.Build(context.Background(), []string{"file:///mod.ts"})
	if err == nil {
		t.Fatal("expected a graphError for a dependency that does not resolve to an entrypoint root")
	}
}

func TestLoaderResolvesDataURL(t *testing.T) {
	loader := Loader{Files: map[string][]byte{}}
	result, ok := loader.Resolve("", "data:text/plain,hello")
	if !ok {
		t.Fatal("expected data: URL to resolve")
	}
	if string(result.Source) != "hello" {
		t.Errorf("expected decoded data 'hello', got %q", result.Source)
	}
}

func TestLoaderClassifiesExternalSchemes(t *testing.T) {
	loader := Loader{}
	for _, specifier := range []string{"https://x/y.js", "node:fs", "npm:lodash", "jsr:@scope/pkg"} {
		result, ok := loader.Resolve("", specifier)
		if !ok || !result.External {
			t.Errorf("expected %q to resolve as external", specifier)
		}
	}
}
