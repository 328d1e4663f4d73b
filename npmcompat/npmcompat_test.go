package npmcompat

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/a-h/pkgpipe/ident"
	"github.com/a-h/pkgpipe/modgraph"
)

func mustScope(t *testing.T, s string) ident.Scope {
	t.Helper()
	v, err := ident.NewScope(s)
	if err != nil {
		t.Fatalf("NewScope(%q): %v", s, err)
	}
	return v
}

func mustPackage(t *testing.T, s string) ident.Package {
	t.Helper()
	v, err := ident.NewPackage(s)
	if err != nil {
		t.Fatalf("NewPackage(%q): %v", s, err)
	}
	return v
}

func mustVersion(t *testing.T, s string) ident.Version {
	t.Helper()
	v, err := ident.NewVersion(s)
	if err != nil {
		t.Fatalf("NewVersion(%q): %v", s, err)
	}
	return v
}

func untar(t *testing.T, gzipped []byte) map[string][]byte {
	t.Helper()
	gzr, err := gzip.NewReader(bytes.NewReader(gzipped))
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	tr := tar.NewReader(gzr)
	out := make(map[string][]byte)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar read: %v", err)
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("tar content read: %v", err)
		}
		out[hdr.Name] = content
	}
	return out
}

func TestBuildEmitsRewrittenSourceAndTranspiledJs(t *testing.T) {
	files := map[string][]byte{
		"/mod.ts": []byte("import { helper } from './util.ts';\nexport const hello: string = helper();\n"),
		"/util.ts": []byte("export function helper(): string { return 'hi'; }\n"),
	}
	b := modgraph.NewBuilder(files)
	graph, err := b.Build(context.Background(), []string{"file:///mod.ts"})
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}

	out, err := Build(context.Background(), Input{
		Graph:           graph,
		Files:           files,
		Scope:           mustScope(t, "acme"),
		Package:         mustPackage(t, "widget"),
		Version:         mustVersion(t, "1.0.0"),
		Exports:         map[string]string{".": "./mod.ts"},
		EcosystemScope:  "jsr",
		RegistryBaseURL: "https://example.test",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	entries := untar(t, out.Tarball)

	if _, ok := entries["./package/mod.ts"]; !ok {
		t.Errorf("expected rewritten source at ./package/mod.ts, entries: %v", keysOf(entries))
	}
	if _, ok := entries["./package/mod.js"]; !ok {
		t.Errorf("expected transpiled js at ./package/mod.js, entries: %v", keysOf(entries))
	}
	transpiled := string(entries["./package/mod.js"])
	if strings.Contains(transpiled, ": string") {
		t.Errorf("expected type annotation stripped from transpiled output, got %q", transpiled)
	}

	var manifest packageJSON
	if err := json.Unmarshal(entries["./package/package.json"], &manifest); err != nil {
		t.Fatalf("unmarshal manifest: %v", err)
	}
	if manifest.Name != "@jsr/acme__widget" {
		t.Errorf("expected mapped name @jsr/acme__widget, got %q", manifest.Name)
	}
	if manifest.Version != "1.0.0" {
		t.Errorf("expected version 1.0.0, got %q", manifest.Version)
	}
	if manifest.JSRRevision != Revision {
		t.Errorf("expected revision %d, got %d", Revision, manifest.JSRRevision)
	}
}

func TestBuildProjectsDeclarationForPlainTypeScriptModule(t *testing.T) {
	files := map[string][]byte{
		"/mod.ts": []byte("export const hello: string = 'hi';\n"),
	}
	b := modgraph.NewBuilder(files)
	graph, err := b.Build(context.Background(), []string{"file:///mod.ts"})
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}

	out, err := Build(context.Background(), Input{
		Graph:           graph,
		Files:           files,
		Scope:           mustScope(t, "acme"),
		Package:         mustPackage(t, "widget"),
		Version:         mustVersion(t, "1.0.0"),
		Exports:         map[string]string{".": "./mod.ts"},
		EcosystemScope:  "jsr",
		RegistryBaseURL: "https://example.test",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	entries := untar(t, out.Tarball)
	declaration, ok := entries["./package/mod.d.ts"]
	if !ok {
		t.Fatalf("expected a projected declaration at ./package/mod.d.ts, entries: %v", keysOf(entries))
	}
	if !strings.Contains(string(declaration), "declare const hello: string") {
		t.Errorf("expected declared const with its type annotation, got %q", declaration)
	}
	if !strings.Contains(string(declaration), "'hi'") {
		t.Errorf("expected literal initializer preserved in ambient context, got %q", declaration)
	}

	var manifest packageJSON
	if err := json.Unmarshal(entries["./package/package.json"], &manifest); err != nil {
		t.Fatalf("unmarshal manifest: %v", err)
	}
	if manifest.Exports["."].Types != "./mod.d.ts" {
		t.Errorf("expected exports[\".\"].types to point at ./mod.d.ts, got %q", manifest.Exports["."].Types)
	}
}

func TestBuildProjectsDeclarationStripsFunctionBody(t *testing.T) {
	files := map[string][]byte{
		"/mod.ts": []byte("export function greet(name: string): string {\n  return 'hi ' + name;\n}\n\nfunction helper() {\n  return 1;\n}\n"),
	}
	b := modgraph.NewBuilder(files)
	graph, err := b.Build(context.Background(), []string{"file:///mod.ts"})
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}

	out, err := Build(context.Background(), Input{
		Graph:           graph,
		Files:           files,
		Scope:           mustScope(t, "acme"),
		Package:         mustPackage(t, "widget"),
		Version:         mustVersion(t, "1.0.0"),
		Exports:         map[string]string{".": "./mod.ts"},
		EcosystemScope:  "jsr",
		RegistryBaseURL: "https://example.test",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	entries := untar(t, out.Tarball)
	declaration := string(entries["./package/mod.d.ts"])
	if !strings.Contains(declaration, "declare function greet(name: string): string;") {
		t.Errorf("expected a bodyless declared function signature, got %q", declaration)
	}
	if strings.Contains(declaration, "return") {
		t.Errorf("expected function bodies stripped from the declaration, got %q", declaration)
	}
	if strings.Contains(declaration, "helper") {
		t.Errorf("expected the unexported helper dropped from the declaration, got %q", declaration)
	}
}

func TestBuildSkipsDeclarationProjectionWhenSelfTypesSpecifierPresent(t *testing.T) {
	files := map[string][]byte{
		"/mod.ts":   []byte("/// <reference types=\"./sibling.d.ts\" />\nexport const x = 1;\n"),
		"/sibling.d.ts": []byte("export declare const x: number;\n"),
	}
	b := modgraph.NewBuilder(files)
	graph, err := b.Build(context.Background(), []string{"file:///mod.ts"})
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}

	out, err := Build(context.Background(), Input{
		Graph:           graph,
		Files:           files,
		Scope:           mustScope(t, "acme"),
		Package:         mustPackage(t, "widget"),
		Version:         mustVersion(t, "1.0.0"),
		Exports:         map[string]string{".": "./mod.ts"},
		EcosystemScope:  "jsr",
		RegistryBaseURL: "https://example.test",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	entries := untar(t, out.Tarball)
	if _, ok := entries["./package/mod.d.ts"]; ok {
		t.Errorf("expected no projected ./package/mod.d.ts when a fast-check sibling exists, entries: %v", keysOf(entries))
	}
	if string(entries["./package/sibling.d.ts"]) != "export declare const x: number;\n" {
		t.Errorf("expected the hand-authored declaration sibling left untouched, got %q", entries["./package/sibling.d.ts"])
	}
}

func TestBuildDeletesTripleSlashReferenceInSourceMode(t *testing.T) {
	files := map[string][]byte{
		"/mod.ts":    []byte("/// <reference types=\"./mod.d.ts\" />\nexport const x = 1;\n"),
		"/mod.d.ts":  []byte("export declare const x: number;\n"),
	}
	b := modgraph.NewBuilder(files)
	graph, err := b.Build(context.Background(), []string{"file:///mod.ts"})
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}

	out, err := Build(context.Background(), Input{
		Graph:           graph,
		Files:           files,
		Scope:           mustScope(t, "acme"),
		Package:         mustPackage(t, "widget"),
		Version:         mustVersion(t, "1.0.0"),
		Exports:         map[string]string{".": "./mod.ts"},
		EcosystemScope:  "jsr",
		RegistryBaseURL: "https://example.test",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	entries := untar(t, out.Tarball)
	source := string(entries["./package/mod.ts"])
	if strings.Contains(source, "<reference") {
		t.Errorf("expected triple-slash reference deleted from source-mode output, got %q", source)
	}
}

func TestBuildPacksDeterministicFilenames(t *testing.T) {
	files := map[string][]byte{
		"/mod.js": []byte("export const x = 1;\n"),
	}
	b := modgraph.NewBuilder(files)
	graph, err := b.Build(context.Background(), []string{"file:///mod.js"})
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}

	out, err := Build(context.Background(), Input{
		Graph:           graph,
		Files:           files,
		Scope:           mustScope(t, "acme"),
		Package:         mustPackage(t, "widget"),
		Version:         mustVersion(t, "1.0.0"),
		Exports:         map[string]string{".": "./mod.js"},
		EcosystemScope:  "jsr",
		RegistryBaseURL: "https://example.test",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if out.Digest.Shasum == "" || out.Digest.Integrity == "" {
		t.Error("expected non-empty digest")
	}

	entries := untar(t, out.Tarball)
	for name := range entries {
		if !strings.HasPrefix(name, "./package/") {
			t.Errorf("expected every entry to be prefixed with ./package/, got %q", name)
		}
	}
}

func keysOf(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
