// Package npmcompat builds the npm-compatible view of a published
// package: a rewritten, re-emitted copy of its analysed sources packed
// into a gzipped tarball alongside a synthesised package.json, so the
// package can also be consumed from the npm ecosystem.
package npmcompat

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/a-h/pkgpipe/depcollect"
	"github.com/a-h/pkgpipe/ident"
	"github.com/a-h/pkgpipe/modgraph"
	"github.com/a-h/pkgpipe/npmcompat/digest"
	"github.com/a-h/pkgpipe/pipelineerr"
)

// Input is everything the builder needs to produce one package's
// npm-compat artifact.
type Input struct {
	Graph           *modgraph.Graph
	Files           map[string][]byte
	Scope           ident.Scope
	Package         ident.Package
	Version         ident.Version
	Exports         map[string]string
	Dependencies    []depcollect.Dependency
	EcosystemScope  string // e.g. "jsr"
	RegistryBaseURL string // e.g. "https://jsr.io"
}

// Output is the built artifact: the gzipped tarball, its digest, and the
// package.json bytes it embeds (also returned standalone for callers
// that want to inspect the manifest without unpacking the tarball).
type Output struct {
	Tarball     []byte
	Digest      digest.Digest
	Manifest    []byte
	PackageName string
}

// Build runs the full npm-compat pipeline over an already analysed
// module graph: rewrite table computation, per-module emission,
// manifest synthesis and deterministic packing.
func Build(ctx context.Context, in Input) (Output, error) {
	rewrites := ComputeRewrites(in.Graph)
	loader := modgraph.Loader{Files: in.Files}

	packageFiles := make(map[string][]byte)

	for path, module := range in.Graph.Modules {
		src, ok := in.Files[path]
		if !ok {
			continue
		}
		if err := emitModule(path, src, module, rewrites, loader, packageFiles); err != nil {
			return Output{}, err
		}
	}

	for path, content := range in.Files {
		if _, ok := packageFiles[path]; !ok {
			packageFiles[path] = content
		}
	}

	npmExports := buildExports(in.Exports, rewrites, loader)

	npmDependencies, err := buildDependencies(in.Dependencies, in.EcosystemScope)
	if err != nil {
		return Output{}, err
	}

	mappedName := MappedName(in.EcosystemScope, in.Scope, in.Package)

	manifest := packageJSON{
		Name:         mappedName,
		Version:      in.Version.String(),
		Type:         "module",
		Exports:      npmExports,
		Dependencies: npmDependencies,
		Homepage:     fmt.Sprintf("%s/@%s/%s", in.RegistryBaseURL, in.Scope, in.Package),
		JSRRevision:  Revision,
	}

	manifestBytes, err := marshalManifest(manifest)
	if err != nil {
		return Output{}, pipelineerr.SystemFatal(pipelineerr.CodeNpmTarballError, err)
	}
	packageFiles["/package.json"] = manifestBytes

	tarball, err := pack(packageFiles, time.Now())
	if err != nil {
		return Output{}, pipelineerr.SystemFatal(pipelineerr.CodeNpmTarballError, err)
	}

	sum, err := digest.Of(bytes.NewReader(tarball))
	if err != nil {
		return Output{}, pipelineerr.SystemFatal(pipelineerr.CodeNpmTarballError, err)
	}

	return Output{
		Tarball:     tarball,
		Digest:      sum,
		Manifest:    manifestBytes,
		PackageName: mappedName,
	}, nil
}

// emitModule writes one analysed module's rewritten representation(s)
// into packageFiles, per the emission table: .js/.d.ts are
// specifier-rewritten only, .jsx additionally emits a type-stripped
// JavaScript target, and .ts/.tsx additionally emit a type-stripped
// JavaScript target plus a projected .d.ts declaration (unless the
// module already names its own fast-check declaration sibling via a
// triple-slash reference).
func emitModule(path string, src []byte, module *modgraph.Module, rewrites Rewrites, loader modgraph.Loader, packageFiles map[string][]byte) error {
	switch module.MediaType {
	case modgraph.MediaTypeJavaScript:
		rewritten, err := rewriteSpecifiers(path, src, module.MediaType, rewrites, ModeSource, loader)
		if err != nil {
			return wrapEmitError(path, err)
		}
		packageFiles[path] = rewritten

	case modgraph.MediaTypeDts:
		rewritten, err := rewriteSpecifiers(path, src, module.MediaType, rewrites, ModeDeclaration, loader)
		if err != nil {
			return wrapEmitError(path, err)
		}
		packageFiles[path] = rewritten

	case modgraph.MediaTypeJSX:
		jsTarget := rewrites.Source[path]
		transpiled, err := emitTranspiled(path, src, module.MediaType, rewrites, loader)
		if err != nil {
			return wrapEmitError(path, err)
		}
		packageFiles[jsTarget] = transpiled

	case modgraph.MediaTypeTypeScript, modgraph.MediaTypeTSX:
		rewrittenSource, err := rewriteSpecifiers(path, src, module.MediaType, rewrites, ModeSource, loader)
		if err != nil {
			return wrapEmitError(path, err)
		}
		packageFiles[path] = rewrittenSource

		jsTarget := rewrites.Source[path]
		transpiled, err := emitTranspiled(path, src, module.MediaType, rewrites, loader)
		if err != nil {
			return wrapEmitError(path, err)
		}
		packageFiles[jsTarget] = transpiled

		if module.SelfTypesSpecifier == "" {
			declTarget := rewrites.Declaration[path]
			declaration, err := emitDeclaration(path, src, module.MediaType, rewrites, loader)
			if err != nil {
				return wrapEmitError(path, err)
			}
			packageFiles[declTarget] = declaration
		}
	}

	return nil
}

// emitTranspiled strips type-only syntax, then applies source-mode
// specifier rewriting to the stripped output so its import/export
// specifiers still point at this build's targets.
func emitTranspiled(path string, src []byte, mt modgraph.MediaType, rewrites Rewrites, loader modgraph.Loader) ([]byte, error) {
	stripped, err := stripTypes(src, mt)
	if err != nil {
		return nil, err
	}
	return rewriteSpecifiers(path, stripped, mt, rewrites, ModeSource, loader)
}

// emitDeclaration projects a .d.ts body from TypeScript source for a
// module with no fast-check declaration module of its own, then applies
// declaration-mode specifier rewriting so the projection's own imports
// and type references point at this build's targets.
func emitDeclaration(path string, src []byte, mt modgraph.MediaType, rewrites Rewrites, loader modgraph.Loader) ([]byte, error) {
	projected, err := projectDeclaration(src, mt)
	if err != nil {
		return nil, err
	}
	return rewriteSpecifiers(path, projected, mt, rewrites, ModeDeclaration, loader)
}

func wrapEmitError(path string, err error) error {
	if _, ok := err.(*pipelineerr.Error); ok {
		return err
	}
	return pipelineerr.SystemFatal(pipelineerr.CodeNpmTarballError, fmt.Errorf("emitting %s: %w", path, err))
}
