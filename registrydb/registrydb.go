// Package registrydb is the typed gateway over the shared kv.Store for
// every entity the publish pipeline persists. It follows the key-segment
// convention the teacher's per-ecosystem db packages use (a path.Join of
// url.PathEscape'd segments under a fixed namespace prefix), generalised
// from two separate ad hoc gateways (npm/db, python/db) into the one flat
// key space the pipeline needs.
package registrydb

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/a-h/kv"

	"github.com/a-h/pkgpipe/ident"
)

// Gateway is the single entry point for reading and writing registry
// state. It owns no connection of its own; the kv.Store is shared across
// every publish in flight.
type Gateway struct {
	store kv.Store
	now   func() time.Time
}

// New constructs a Gateway over an already-initialised kv.Store.
func New(store kv.Store) *Gateway {
	return &Gateway{store: store, now: time.Now}
}

func escaped(segments ...string) string {
	escapedSegments := make([]string, len(segments))
	for i, s := range segments {
		escapedSegments[i] = url.PathEscape(s)
	}
	return path.Join(escapedSegments...)
}

// Scope is the durable record of a registered scope and its quotas.
type Scope struct {
	Name                  string
	OwnerUserID           string
	MaxPackages           int
	MaxNewPackagesPerWeek int
	MaxAttemptsPerWeek    int
}

func scopeKey(scope ident.Scope) string {
	return path.Join("/scope", escaped(scope.String()))
}

func (g *Gateway) PutScope(ctx context.Context, s Scope) error {
	return g.store.Put(ctx, scopeKey(mustScope(s.Name)), -1, s)
}

func (g *Gateway) GetScope(ctx context.Context, scope ident.Scope) (Scope, bool, error) {
	var s Scope
	_, ok, err := g.store.Get(ctx, scopeKey(scope), &s)
	return s, ok, err
}

// mustScope re-wraps an already-validated scope name for key building; it
// is only ever called with names that were themselves constructed via
// ident.NewScope before being stored.
func mustScope(name string) ident.Scope {
	s, _ := ident.NewScope(name)
	return s
}

// Package is the durable record of a package within a scope.
type Package struct {
	Scope       string
	Name        string
	Description string
	Repository  string
}

func packageKey(scope ident.Scope, pkg ident.Package) string {
	return path.Join("/package", escaped(scope.String(), pkg.String()))
}

func packagePrefix(scope ident.Scope) string {
	return path.Join("/package", escaped(scope.String())) + "/"
}

func (g *Gateway) PutPackage(ctx context.Context, p Package) error {
	scope, err := ident.NewScope(p.Scope)
	if err != nil {
		return err
	}
	pkg, err := ident.NewPackage(p.Name)
	if err != nil {
		return err
	}
	return g.store.Put(ctx, packageKey(scope, pkg), -1, p)
}

func (g *Gateway) GetPackage(ctx context.Context, scope ident.Scope, pkg ident.Package) (Package, bool, error) {
	var p Package
	_, ok, err := g.store.Get(ctx, packageKey(scope, pkg), &p)
	return p, ok, err
}

func (g *Gateway) ListPackages(ctx context.Context, scope ident.Scope) ([]Package, error) {
	rows, err := g.store.GetPrefix(ctx, packagePrefix(scope), 0, -1)
	if err != nil {
		return nil, err
	}
	return kv.ValuesOf[Package](rows)
}

// Version is the durable record of one published package version.
type Version struct {
	Scope      string
	Package    string
	Version    string
	Exports    map[string]string
	UsesNpm    bool
	ReadmePath string
	Yanked     bool
	CreatedAt  time.Time
}

func versionKey(scope ident.Scope, pkg ident.Package, version ident.Version) string {
	return path.Join("/version", escaped(scope.String(), pkg.String(), version.String()))
}

func versionPrefix(scope ident.Scope, pkg ident.Package) string {
	return path.Join("/version", escaped(scope.String(), pkg.String())) + "/"
}

// PutVersion inserts or overwrites a version record. Idempotence across
// retries falls out of every referenced file/tarball being
// content-addressed; the version row itself is simply upserted.
func (g *Gateway) PutVersion(ctx context.Context, scope ident.Scope, pkg ident.Package, version ident.Version, rec Version) error {
	return g.store.Put(ctx, versionKey(scope, pkg, version), -1, rec)
}

func (g *Gateway) GetVersion(ctx context.Context, scope ident.Scope, pkg ident.Package, version ident.Version) (Version, bool, error) {
	var rec Version
	_, ok, err := g.store.Get(ctx, versionKey(scope, pkg, version), &rec)
	return rec, ok, err
}

// ListVersions returns every version recorded for a package, in no
// particular order; callers that need "latest" ordering sort the result
// themselves using ident.Version.Compare.
func (g *Gateway) ListVersions(ctx context.Context, scope ident.Scope, pkg ident.Package) ([]Version, error) {
	rows, err := g.store.GetPrefix(ctx, versionPrefix(scope, pkg), 0, -1)
	if err != nil {
		return nil, err
	}
	return kv.ValuesOf[Version](rows)
}

// SetYanked flips a version's yanked flag; per spec.md §3 Lifecycle, this
// is the only mutation a Version undergoes once processed.
func (g *Gateway) SetYanked(ctx context.Context, scope ident.Scope, pkg ident.Package, version ident.Version, yanked bool) error {
	rec, ok, err := g.GetVersion(ctx, scope, pkg, version)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("version %s/%s@%s not found", scope, pkg, version)
	}
	rec.Yanked = yanked
	return g.PutVersion(ctx, scope, pkg, version, rec)
}

// File is one file belonging to a published version.
type File struct {
	Scope    string
	Package  string
	Version  string
	Path     string
	Size     int64
	Checksum string // hex sha256, per spec.md §3
}

func fileKey(scope ident.Scope, pkg ident.Package, version ident.Version, filePath ident.Path) string {
	return path.Join("/file", escaped(scope.String(), pkg.String(), version.String()), url.PathEscape(filePath.String()))
}

func filePrefix(scope ident.Scope, pkg ident.Package, version ident.Version) string {
	return path.Join("/file", escaped(scope.String(), pkg.String(), version.String())) + "/"
}

// PutFiles upserts every file record for a version. Each row is
// content-addressed by (scope, package, version, path), so re-running
// this after a crash produces the same rows.
func (g *Gateway) PutFiles(ctx context.Context, scope ident.Scope, pkg ident.Package, version ident.Version, files []File) error {
	for _, f := range files {
		filePath, err := ident.NewPath(f.Path)
		if err != nil {
			return err
		}
		if err := g.store.Put(ctx, fileKey(scope, pkg, version, filePath), -1, f); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) ListFiles(ctx context.Context, scope ident.Scope, pkg ident.Package, version ident.Version) ([]File, error) {
	rows, err := g.store.GetPrefix(ctx, filePrefix(scope, pkg, version), 0, -1)
	if err != nil {
		return nil, err
	}
	return kv.ValuesOf[File](rows)
}

// Dependency is one resolved jsr:/npm: dependency of a version.
type Dependency struct {
	Scope           string
	Package         string
	Version         string
	Kind            string // "jsr" or "npm"
	Name            string
	Constraint      string
	Subpath         string
	ResolvedVersion string
}

func dependencyKey(scope ident.Scope, pkg ident.Package, version ident.Version, index int) string {
	return path.Join("/dependency", escaped(scope.String(), pkg.String(), version.String()), fmt.Sprintf("%04d", index))
}

func dependencyPrefix(scope ident.Scope, pkg ident.Package, version ident.Version) string {
	return path.Join("/dependency", escaped(scope.String(), pkg.String(), version.String())) + "/"
}

// PutDependencies upserts the full, index-ordered dependency list for a
// version in one pass.
func (g *Gateway) PutDependencies(ctx context.Context, scope ident.Scope, pkg ident.Package, version ident.Version, deps []Dependency) error {
	for i, d := range deps {
		if err := g.store.Put(ctx, dependencyKey(scope, pkg, version, i), -1, d); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) ListDependencies(ctx context.Context, scope ident.Scope, pkg ident.Package, version ident.Version) ([]Dependency, error) {
	rows, err := g.store.GetPrefix(ctx, dependencyPrefix(scope, pkg, version), 0, -1)
	if err != nil {
		return nil, err
	}
	return kv.ValuesOf[Dependency](rows)
}

// NpmTarballRecord is the append-only record of one npm-compat build
// revision for a version.
type NpmTarballRecord struct {
	Scope     string
	Package   string
	Version   string
	Revision  int
	Shasum    string
	Integrity string
	Size      int64
}

func npmTarballKey(scope ident.Scope, pkg ident.Package, version ident.Version) string {
	return path.Join("/npmtarball", escaped(scope.String(), pkg.String(), version.String()))
}

// PutNpmTarballRecord upserts the current npm-compat record for a
// version. The revision is the Revision field stamped on the record by
// the caller; the kv row version of this key is not exposed.
func (g *Gateway) PutNpmTarballRecord(ctx context.Context, scope ident.Scope, pkg ident.Package, version ident.Version, rec NpmTarballRecord) error {
	return g.store.Put(ctx, npmTarballKey(scope, pkg, version), -1, rec)
}

func (g *Gateway) GetNpmTarballRecord(ctx context.Context, scope ident.Scope, pkg ident.Package, version ident.Version) (NpmTarballRecord, bool, error) {
	var rec NpmTarballRecord
	_, ok, err := g.store.Get(ctx, npmTarballKey(scope, pkg, version), &rec)
	return rec, ok, err
}

// TaskState is one of the five publishing-task lifecycle states.
type TaskState string

const (
	TaskPending    TaskState = "pending"
	TaskProcessing TaskState = "processing"
	TaskProcessed  TaskState = "processed"
	TaskSuccess    TaskState = "success"
	TaskFailure    TaskState = "failure"
)

// PublishingTask is the durable record driving one publish attempt.
type PublishingTask struct {
	ID             string
	Scope          string
	Package        string
	Version        string
	ConfigFilePath string
	UserID         string
	State          TaskState
	ErrorCode      string
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func taskKey(scope ident.Scope, pkg ident.Package, version ident.Version) string {
	return path.Join("/task", escaped(scope.String(), pkg.String(), version.String()))
}

func taskByIDKey(id string) string {
	return path.Join("/taskbyid", url.PathEscape(id))
}

// GetTask fetches the current task for (scope, package, version) along
// with the kv row version the orchestrator must echo back as
// expectedVersion on its next write, so a concurrent writer's update is
// not silently clobbered.
func (g *Gateway) GetTask(ctx context.Context, scope ident.Scope, pkg ident.Package, version ident.Version) (PublishingTask, int, bool, error) {
	var t PublishingTask
	rowVersion, ok, err := g.store.Get(ctx, taskKey(scope, pkg, version), &t)
	return t, rowVersion, ok, err
}

func (g *Gateway) GetTaskByID(ctx context.Context, id string) (PublishingTask, bool, error) {
	var key string
	_, ok, err := g.store.Get(ctx, taskByIDKey(id), &key)
	if err != nil || !ok {
		return PublishingTask{}, ok, err
	}
	var t PublishingTask
	_, ok, err = g.store.Get(ctx, key, &t)
	return t, ok, err
}

// PutTask writes the task row under both its (scope,package,version) key
// and its id-lookup key, using expectedVersion as a compare-and-swap
// guard (pass the value returned by the prior GetTask, or -1 for an
// unconditional create). The pointer-to-row-and-its-index-entry pattern
// mirrors how the per-id and per-name keys both need to stay in sync.
func (g *Gateway) PutTask(ctx context.Context, scope ident.Scope, pkg ident.Package, version ident.Version, expectedVersion int, t PublishingTask) error {
	key := taskKey(scope, pkg, version)
	if err := g.store.Put(ctx, key, expectedVersion, t); err != nil {
		return err
	}
	return g.store.Put(ctx, taskByIDKey(t.ID), -1, key)
}

// quota buckets are keyed by UTC calendar day, exactly as the teacher's
// downloadcounter keys download counts by day; a rolling 7-day count is
// the sum of the last 7 daily buckets' kv.Record.Version.
func quotaDayKey(kind, scope string, day time.Time) string {
	return path.Join("/quota", kind, escaped(scope), day.UTC().Format("2006-01-02"))
}

// IncrementAttemptQuota bumps today's publish-attempts counter for a
// scope. The kv store's auto-incrementing per-key version number doubles
// as the counter, so no separate value payload is needed.
func (g *Gateway) IncrementAttemptQuota(ctx context.Context, scope ident.Scope) error {
	return g.store.Put(ctx, quotaDayKey("attempt", scope.String(), g.now()), -1, "")
}

// IncrementNewPackageQuota bumps today's new-package counter for a scope.
func (g *Gateway) IncrementNewPackageQuota(ctx context.Context, scope ident.Scope) error {
	return g.store.Put(ctx, quotaDayKey("newpkg", scope.String(), g.now()), -1, "")
}

// RollingAttemptCount sums the publish-attempts counter over the last 7
// UTC calendar days, inclusive of today.
func (g *Gateway) RollingAttemptCount(ctx context.Context, scope ident.Scope) (int, error) {
	return g.rollingCount(ctx, "attempt", scope)
}

// RollingNewPackageCount sums the new-package counter over the last 7 UTC
// calendar days, inclusive of today.
func (g *Gateway) RollingNewPackageCount(ctx context.Context, scope ident.Scope) (int, error) {
	return g.rollingCount(ctx, "newpkg", scope)
}

func (g *Gateway) rollingCount(ctx context.Context, kind string, scope ident.Scope) (int, error) {
	now := g.now()
	total := 0
	for i := 0; i < 7; i++ {
		day := now.AddDate(0, 0, -i)
		version, ok, err := g.store.Get(ctx, quotaDayKey(kind, scope.String(), day), new(string))
		if err != nil {
			return 0, err
		}
		if ok {
			total += version
		}
	}
	return total, nil
}
