// Package manifest builds the public, client-facing JSON documents the
// registry serves out of the object store: the per-package manifest, the
// per-version manifest, and the npm-compat version manifest. Shapes
// follow the teacher's `npm/models` JSON struct-tag style.
package manifest

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/a-h/pkgpipe/ident"
	"github.com/a-h/pkgpipe/modgraph"
	"github.com/a-h/pkgpipe/registrydb"
)

// PerPackageManifest is the mutable, do-not-cache document describing a
// package's known versions. Served at "<scope>/<package>/meta.json".
type PerPackageManifest struct {
	Name     string           `json:"name"`
	Latest   string           `json:"latest,omitempty"`
	Versions []VersionSummary `json:"versions"`
}

// VersionSummary is one entry in a PerPackageManifest's version list.
type VersionSummary struct {
	Version string `json:"version"`
	Yanked  bool   `json:"yanked"`
}

// BuildPerPackageManifest computes the public package manifest from the
// full, unordered set of version rows registrydb holds. latest is the
// highest non-prerelease, unyanked version, or empty if none qualifies.
func BuildPerPackageManifest(scope ident.Scope, pkg ident.Package, versions []registrydb.Version) (PerPackageManifest, error) {
	m := PerPackageManifest{Name: fmt.Sprintf("@%s/%s", scope, pkg)}

	type parsed struct {
		v   ident.Version
		rec registrydb.Version
	}
	var all []parsed
	for _, rec := range versions {
		v, err := ident.NewVersion(rec.Version)
		if err != nil {
			return PerPackageManifest{}, fmt.Errorf("manifest: stored version %q is invalid: %w", rec.Version, err)
		}
		all = append(all, parsed{v: v, rec: rec})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].v.Compare(all[j].v) < 0 })

	var latest ident.Version
	haveLatest := false
	for _, p := range all {
		m.Versions = append(m.Versions, VersionSummary{Version: p.v.String(), Yanked: p.rec.Yanked})
		if p.rec.Yanked || p.v.Prerelease() {
			continue
		}
		if !haveLatest || p.v.Compare(latest) > 0 {
			latest = p.v
			haveLatest = true
		}
	}
	if haveLatest {
		m.Latest = latest.String()
	}
	return m, nil
}

// FileEntry is one entry in a PerVersionManifest's file manifest.
type FileEntry struct {
	Checksum string `json:"checksum"`
	Size     int64  `json:"size"`
}

// ModuleEntry is the compact per-module projection recorded in a
// PerVersionManifest, keyed by module path.
type ModuleEntry struct {
	MediaType string `json:"mediaType"`
}

// PerVersionManifest is the immutable, cache-forever document describing
// one published version. Served at "<scope>/<package>/<version>_meta.json".
type PerVersionManifest struct {
	Exports     map[string]string      `json:"exports"`
	Manifest    map[string]FileEntry   `json:"manifest"`
	ModuleGraph map[string]ModuleEntry `json:"moduleGraph"`
}

// BuildPerVersionManifest assembles the per-version manifest from the
// validated exports map, the persisted file records, and the analysed
// module graph. The manifest's keys equal the set of file paths exactly,
// per spec.md §8's testable property.
func BuildPerVersionManifest(exports map[string]string, files []registrydb.File, graph *modgraph.Graph) PerVersionManifest {
	m := PerVersionManifest{
		Exports:     exports,
		Manifest:    make(map[string]FileEntry, len(files)),
		ModuleGraph: make(map[string]ModuleEntry, len(graph.Modules)),
	}
	for _, f := range files {
		m.Manifest[f.Path] = FileEntry{Checksum: f.Checksum, Size: f.Size}
	}
	for path, module := range graph.Modules {
		m.ModuleGraph[path] = ModuleEntry{MediaType: mediaTypeName(module.MediaType)}
	}
	return m
}

func mediaTypeName(mt modgraph.MediaType) string {
	switch mt {
	case modgraph.MediaTypeJavaScript:
		return "javascript"
	case modgraph.MediaTypeJSX:
		return "jsx"
	case modgraph.MediaTypeTypeScript:
		return "typescript"
	case modgraph.MediaTypeTSX:
		return "tsx"
	case modgraph.MediaTypeDts:
		return "dts"
	default:
		return "unknown"
	}
}

// NpmVersionEntry is one version's entry in an NpmVersionManifest.
type NpmVersionEntry struct {
	Tarball   string `json:"tarball"`
	Shasum    string `json:"shasum"`
	Integrity string `json:"integrity"`
}

// NpmVersionManifest is the mutable, do-not-cache document listing every
// version's current-revision npm-compat artifact. Served at the mapped
// package name.
type NpmVersionManifest struct {
	Name     string                     `json:"name"`
	Versions map[string]NpmVersionEntry `json:"versions"`
}

// BuildNpmVersionManifest assembles the npm-compat version manifest from
// the current-revision tarball record for every known version.
func BuildNpmVersionManifest(mappedName string, records map[string]registrydb.NpmTarballRecord) NpmVersionManifest {
	m := NpmVersionManifest{Name: mappedName, Versions: make(map[string]NpmVersionEntry, len(records))}
	for version, rec := range records {
		m.Versions[version] = NpmVersionEntry{
			Tarball:   NpmTarballObjectKey(rec.Revision, mappedName, version),
			Shasum:    rec.Shasum,
			Integrity: rec.Integrity,
		}
	}
	return m
}

// PackageManifestObjectKey is the object-store key for a package's
// public manifest.
func PackageManifestObjectKey(scope ident.Scope, pkg ident.Package) string {
	return fmt.Sprintf("/%s/%s/meta.json", scope, pkg)
}

// VersionManifestObjectKey is the object-store key for a version's
// immutable public manifest.
func VersionManifestObjectKey(scope ident.Scope, pkg ident.Package, version ident.Version) string {
	return fmt.Sprintf("/%s/%s/%s_meta.json", scope, pkg, version)
}

// FileObjectKey is the object-store key for one package file, per
// spec.md §3 invariant 2.
func FileObjectKey(scope ident.Scope, pkg ident.Package, version ident.Version, path string) string {
	return fmt.Sprintf("/%s/%s/%s%s", scope, pkg, version, path)
}

// NpmTarballObjectKey is the object-store key for an npm-compat tarball
// at a specific revision, keeping older revisions addressable.
func NpmTarballObjectKey(revision int, mappedName, version string) string {
	return fmt.Sprintf("/~/%d/%s/%s.tgz", revision, mappedName, version)
}

// NpmManifestObjectKey is the object-store key for the npm-compat
// version manifest.
func NpmManifestObjectKey(mappedName string) string {
	return fmt.Sprintf("/%s", mappedName)
}

// Marshal renders v as indented JSON, the same formatting the teacher's
// own handlers use when serving metadata documents.
func Marshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
