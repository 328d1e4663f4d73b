// Package orchestrator drives the publishing task state machine end to
// end: ingest, config parse, module analysis, policy checks, dependency
// collection, npm-compat build, then a crash-safe commit of the result
// and the manifest writes that follow it. Every step re-enters cleanly
// from a restart, per spec.md §4.9/§5.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/a-h/pkgpipe/depcollect"
	"github.com/a-h/pkgpipe/ident"
	"github.com/a-h/pkgpipe/ingest"
	"github.com/a-h/pkgpipe/manifest"
	"github.com/a-h/pkgpipe/metrics"
	"github.com/a-h/pkgpipe/modgraph"
	"github.com/a-h/pkgpipe/npmcompat"
	"github.com/a-h/pkgpipe/objectstore"
	"github.com/a-h/pkgpipe/pipelineerr"
	"github.com/a-h/pkgpipe/pkgconfig"
	"github.com/a-h/pkgpipe/policy"
	"github.com/a-h/pkgpipe/registrydb"
)

// Config holds the tunables spec.md §4.9/§5 leaves to the operator.
type Config struct {
	// MaxPublishAttemptsPerWeek is the rolling 7-day cap on task creation
	// per scope; 0 means unlimited.
	MaxPublishAttemptsPerWeek int
	// UploadConcurrency bounds in-flight object-store uploads, per
	// spec.md §5's "~1024 in flight" backpressure requirement.
	UploadConcurrency int
	// EcosystemScope and RegistryBaseURL feed the npm-compat manifest's
	// mapped name and homepage URL.
	EcosystemScope  string
	RegistryBaseURL string
}

func (c Config) uploadConcurrency() int {
	if c.UploadConcurrency <= 0 {
		return 1024
	}
	return c.UploadConcurrency
}

// Orchestrator is the single entry point for creating and driving
// publishing tasks.
type Orchestrator struct {
	db      *registrydb.Gateway
	objects objectstore.Store
	cfg     Config
	log     *slog.Logger
	metrics metrics.Metrics
}

// New constructs an Orchestrator over an already-initialised registrydb
// gateway and object store.
func New(db *registrydb.Gateway, objects objectstore.Store, cfg Config, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{db: db, objects: objects, cfg: cfg, log: log}
}

// WithMetrics attaches a Metrics instance the orchestrator reports
// publish outcomes and byte counters to. Safe to skip; nil-valued
// counters on a zero Metrics are no-ops.
func (o *Orchestrator) WithMetrics(m metrics.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// TarballObjectKey is the deterministic staging key a publish's uploaded
// tarball is read from, per spec.md §4.3 ("Downloads the tarball object
// at a deterministic key").
func TarballObjectKey(scope ident.Scope, pkg ident.Package, version ident.Version) string {
	return fmt.Sprintf("/_uploads/%s/%s/%s.tar.gz", scope, pkg, version)
}

// CreateTask creates a new publishing task for (scope, package, version),
// or returns the existing one if a non-failure task already exists for
// the same key — per spec.md §4.9, concurrent publishes of the same
// version are collapsed at creation time. Creating a genuinely new task
// increments the scope's rolling publish-attempts counter and aborts
// before any upload if that would exceed the configured quota.
func (o *Orchestrator) CreateTask(ctx context.Context, scope ident.Scope, pkg ident.Package, version ident.Version, configFilePath, userID string) (registrydb.PublishingTask, error) {
	existing, _, ok, err := o.db.GetTask(ctx, scope, pkg, version)
	if err != nil {
		return registrydb.PublishingTask{}, fmt.Errorf("orchestrator: checking for existing task: %w", err)
	}
	if ok && existing.State != registrydb.TaskFailure {
		return existing, nil
	}

	if o.cfg.MaxPublishAttemptsPerWeek > 0 {
		count, err := o.db.RollingAttemptCount(ctx, scope)
		if err != nil {
			return registrydb.PublishingTask{}, fmt.Errorf("orchestrator: reading attempt quota: %w", err)
		}
		if count >= o.cfg.MaxPublishAttemptsPerWeek {
			return registrydb.PublishingTask{}, pipelineerr.User(pipelineerr.CodePublishAttemptQuotaExceeded,
				fmt.Sprintf("scope %s has exceeded its rolling publish-attempts quota", scope))
		}
	}
	if err := o.db.IncrementAttemptQuota(ctx, scope); err != nil {
		return registrydb.PublishingTask{}, fmt.Errorf("orchestrator: incrementing attempt quota: %w", err)
	}

	now := time.Now()
	task := registrydb.PublishingTask{
		ID:             uuid.NewString(),
		Scope:          scope.String(),
		Package:        pkg.String(),
		Version:        version.String(),
		ConfigFilePath: configFilePath,
		UserID:         userID,
		State:          registrydb.TaskPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	// -1 here is an unconditional create, matching every other row's
	// upsert pattern; the failure-task case above is the one place a row
	// may already exist at this key, and Put with -1 simply overwrites it,
	// which is the desired "new attempt replaces the dead one" behaviour.
	if err := o.db.PutTask(ctx, scope, pkg, version, -1, task); err != nil {
		return registrydb.PublishingTask{}, fmt.Errorf("orchestrator: creating task: %w", err)
	}
	return task, nil
}

// RunPublish drives a task from wherever it currently sits through to
// success or failure. It is safe to call repeatedly after a crash: each
// stage re-derives its inputs from durable state rather than from
// in-memory continuation.
func (o *Orchestrator) RunPublish(ctx context.Context, scope ident.Scope, pkg ident.Package, version ident.Version) error {
	task, rowVersion, ok, err := o.db.GetTask(ctx, scope, pkg, version)
	if err != nil {
		return fmt.Errorf("orchestrator: loading task: %w", err)
	}
	if !ok {
		return fmt.Errorf("orchestrator: no task for %s/%s@%s", scope, pkg, version)
	}

	started := time.Now()

	switch task.State {
	case registrydb.TaskSuccess, registrydb.TaskFailure:
		return nil
	case registrydb.TaskPending:
		task.State = registrydb.TaskProcessing
		task.UpdatedAt = time.Now()
		if err := o.db.PutTask(ctx, scope, pkg, version, rowVersion, task); err != nil {
			return fmt.Errorf("orchestrator: transitioning to processing: %w", err)
		}
		rowVersion++
	case registrydb.TaskProcessing:
		// Resume in place; nothing to transition.
	case registrydb.TaskProcessed:
		return o.promote(ctx, scope, pkg, version)
	}

	outcome, perr := o.process(ctx, scope, pkg, version, task)
	if perr != nil {
		if pe, ok := perr.(*pipelineerr.Error); ok && pipelineerr.IsUserFatal(perr) {
			o.metrics.IncrementPolicyRejection(ctx, string(pe.Code))
		}
		err := o.handleStageError(ctx, scope, pkg, version, rowVersion, task, perr)
		if pipelineerr.IsUserFatal(err) {
			o.metrics.IncrementTaskOutcome(ctx, "failure", time.Since(started).Seconds())
		}
		return err
	}
	o.metrics.IncrementIngestedBytes(ctx, totalFileBytes(outcome.files))
	o.metrics.IncrementNpmTarballBytes(ctx, int64(len(outcome.npmTarballBytes)))

	if err := o.commitProcessed(ctx, scope, pkg, version, rowVersion, task, outcome); err != nil {
		return fmt.Errorf("orchestrator: committing processed state: %w", err)
	}

	if err := o.promote(ctx, scope, pkg, version); err != nil {
		return err
	}
	o.metrics.IncrementTaskOutcome(ctx, "success", time.Since(started).Seconds())
	return nil
}

func totalFileBytes(files []registrydb.File) int64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}

func (o *Orchestrator) handleStageError(ctx context.Context, scope ident.Scope, pkg ident.Package, version ident.Version, rowVersion int, task registrydb.PublishingTask, stageErr error) error {
	switch {
	case pipelineerr.IsRetryable(stageErr):
		task.State = registrydb.TaskPending
		task.UpdatedAt = time.Now()
		if err := o.db.PutTask(ctx, scope, pkg, version, rowVersion, task); err != nil {
			return fmt.Errorf("orchestrator: reverting to pending: %w", err)
		}
		return stageErr
	case pipelineerr.IsUserFatal(stageErr):
		var code pipelineerr.Code
		if pe, ok := stageErr.(*pipelineerr.Error); ok {
			code = pe.Code
		}
		task.State = registrydb.TaskFailure
		task.ErrorCode = string(code)
		task.ErrorMessage = stageErr.Error()
		task.UpdatedAt = time.Now()
		if err := o.db.PutTask(ctx, scope, pkg, version, rowVersion, task); err != nil {
			return fmt.Errorf("orchestrator: recording failure: %w", err)
		}
		return stageErr
	default:
		// System/fatal: leave the task in processing for operator
		// intervention, per spec.md §7.
		return stageErr
	}
}

// publishOutcome is everything a successful pipeline run produces, ready
// to commit in a single crash-safe step.
type publishOutcome struct {
	version      registrydb.Version
	files        []registrydb.File
	dependencies []registrydb.Dependency
	npmTarball   registrydb.NpmTarballRecord
	npmTarballBytes []byte
	fileContents map[string][]byte
	graph        *modgraph.Graph
	exports      map[string]string
	mappedName   string
}

// process runs every pipeline stage up to (but not including) the
// durable commit. A stage failure returns a *pipelineerr.Error the
// caller classifies to decide the task's next state.
func (o *Orchestrator) process(ctx context.Context, scope ident.Scope, pkg ident.Package, version ident.Version, task registrydb.PublishingTask) (publishOutcome, error) {
	r, ok, err := o.objects.Get(ctx, TarballObjectKey(scope, pkg, version))
	if err != nil {
		return publishOutcome{}, pipelineerr.SystemRetryable(pipelineerr.CodeInvalidPath, err)
	}
	if !ok {
		return publishOutcome{}, pipelineerr.User(pipelineerr.CodeInvalidPath, "no uploaded tarball found for this task")
	}
	defer r.Close()

	ingested, err := ingest.Ingest(ctx, r)
	if err != nil {
		return publishOutcome{}, err
	}

	configData, err := pkgconfig.Lookup(ingested.Contents, task.ConfigFilePath)
	if err != nil {
		return publishOutcome{}, err
	}
	cfg, err := pkgconfig.Parse(configData, scope, pkg, version, ingested.Contents)
	if err != nil {
		return publishOutcome{}, err
	}

	roots := make([]string, 0, len(cfg.Exports))
	for _, target := range cfg.Exports {
		// Exports values are validated "./relative-file" forms; the
		// module graph's file map is keyed by absolute "/relative-file"
		// paths, the same normalisation pkgconfig applies when checking
		// an export resolves to an uploaded file.
		roots = append(roots, "file://"+strings.TrimPrefix(target, "."))
	}
	builder := modgraph.NewBuilder(ingested.Contents)
	graph, err := builder.Build(ctx, roots)
	if err != nil {
		return publishOutcome{}, pipelineerr.User(pipelineerr.CodeGraphError, err.Error())
	}

	if err := policy.CheckGraph(graph, ingested.Contents); err != nil {
		return publishOutcome{}, err
	}

	deps, err := depcollect.Collect(ctx, graph, registryVersions{db: o.db})
	if err != nil {
		return publishOutcome{}, err
	}

	built, err := npmcompat.Build(ctx, npmcompat.Input{
		Graph:           graph,
		Files:           ingested.Contents,
		Scope:           scope,
		Package:         pkg,
		Version:         version,
		Exports:         cfg.Exports,
		Dependencies:    deps,
		EcosystemScope:  o.cfg.EcosystemScope,
		RegistryBaseURL: o.cfg.RegistryBaseURL,
	})
	if err != nil {
		return publishOutcome{}, err
	}

	files := make([]registrydb.File, 0, len(ingested.Files))
	for _, f := range ingested.Files {
		files = append(files, registrydb.File{
			Scope:    scope.String(),
			Package:  pkg.String(),
			Version:  version.String(),
			Path:     f.Path.String(),
			Size:     f.Size,
			Checksum: hex.EncodeToString(f.Hash[:]),
		})
	}

	depRows := make([]registrydb.Dependency, 0, len(deps))
	for _, d := range deps {
		kind := "npm"
		if d.Specifier.Kind == depcollect.KindJSR {
			kind = "jsr"
		}
		depRows = append(depRows, registrydb.Dependency{
			Scope:           scope.String(),
			Package:         pkg.String(),
			Version:         version.String(),
			Kind:            kind,
			Name:            d.Specifier.Name,
			Constraint:      d.Specifier.Constraint,
			Subpath:         d.Specifier.Subpath,
			ResolvedVersion: d.ResolvedVersion,
		})
	}

	return publishOutcome{
		version: registrydb.Version{
			Scope:     scope.String(),
			Package:   pkg.String(),
			Version:   version.String(),
			Exports:   cfg.Exports,
			UsesNpm:   true,
			CreatedAt: time.Now(),
		},
		files:           files,
		dependencies:    depRows,
		npmTarball: registrydb.NpmTarballRecord{
			Scope:     scope.String(),
			Package:   pkg.String(),
			Version:   version.String(),
			Revision:  npmcompat.Revision,
			Shasum:    built.Digest.Shasum,
			Integrity: built.Digest.Integrity,
			Size:      int64(len(built.Tarball)),
		},
		npmTarballBytes: built.Tarball,
		fileContents:    ingested.Contents,
		graph:           graph,
		exports:         cfg.Exports,
		mappedName:      built.PackageName,
	}, nil
}

// commitProcessed uploads the package files and the npm tarball, upserts
// the version, file, dependency and npm tarball rows, puts the
// per-version manifest, and only then CAS-writes the task state as
// processed. No separate journal value is written and these are separate
// writes, not one atomic commit: a crash part-way leaves the task in
// processing, and the next RunPublish reprocesses it and repeats every
// write. Every key written before the state change is either
// content-addressed or an unconditional upsert.
func (o *Orchestrator) commitProcessed(ctx context.Context, scope ident.Scope, pkg ident.Package, version ident.Version, rowVersion int, task registrydb.PublishingTask, outcome publishOutcome) error {
	if err := o.uploadFiles(ctx, scope, pkg, version, outcome.fileContents, outcome.files); err != nil {
		return pipelineerr.SystemRetryable(pipelineerr.CodeNpmTarballError, err)
	}
	if err := o.objects.Put(ctx, manifest.NpmTarballObjectKey(outcome.npmTarball.Revision, outcome.mappedName, version.String()),
		bytesReader(outcome.npmTarballBytes), objectstore.PutOptions{ContentType: "application/gzip", CacheControl: objectstore.CacheControlImmutable}); err != nil {
		return pipelineerr.SystemRetryable(pipelineerr.CodeNpmTarballError, err)
	}

	if err := o.db.PutVersion(ctx, scope, pkg, version, outcome.version); err != nil {
		return err
	}
	if err := o.db.PutFiles(ctx, scope, pkg, version, outcome.files); err != nil {
		return err
	}
	if err := o.db.PutDependencies(ctx, scope, pkg, version, outcome.dependencies); err != nil {
		return err
	}
	if err := o.db.PutNpmTarballRecord(ctx, scope, pkg, version, outcome.npmTarball); err != nil {
		return err
	}

	versionManifest := manifest.BuildPerVersionManifest(outcome.exports, outcome.files, outcome.graph)
	versionManifestBytes, err := manifest.Marshal(versionManifest)
	if err != nil {
		return err
	}
	if err := o.objects.Put(ctx, manifest.VersionManifestObjectKey(scope, pkg, version), bytesReader(versionManifestBytes),
		objectstore.PutOptions{ContentType: "application/json", CacheControl: objectstore.CacheControlImmutable}); err != nil {
		return pipelineerr.SystemRetryable(pipelineerr.CodeNpmTarballError, err)
	}

	task.State = registrydb.TaskProcessed
	task.UpdatedAt = time.Now()
	return o.db.PutTask(ctx, scope, pkg, version, rowVersion, task)
}

// uploadFiles uploads every ingested file to its content-addressed
// object key with bounded concurrency, per spec.md §5's backpressure
// requirement, mirroring the teacher's npm/download.Downloader
// semaphore-channel pattern.
func (o *Orchestrator) uploadFiles(ctx context.Context, scope ident.Scope, pkg ident.Package, version ident.Version, contents map[string][]byte, files []registrydb.File) error {
	sem := make(chan struct{}, o.cfg.uploadConcurrency())
	var wg sync.WaitGroup
	errs := make(chan error, len(files))

	for _, f := range files {
		data := contents[f.Path]
		key := manifest.FileObjectKey(scope, pkg, version, f.Path)
		wg.Add(1)
		sem <- struct{}{}
		go func(key string, data []byte) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := o.objects.Put(ctx, key, bytesReader(data), objectstore.PutOptions{
				ContentType:  contentTypeOf(key, data),
				CacheControl: objectstore.CacheControlImmutable,
			}); err != nil {
				errs <- err
			}
		}(key, data)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// promote writes the public per-package manifest from the committed set
// of versions, then flips the task to success. Per spec.md §5, the
// manifest rewrite is strictly after processed and before success.
func (o *Orchestrator) promote(ctx context.Context, scope ident.Scope, pkg ident.Package, version ident.Version) error {
	if err := o.RegeneratePackageManifest(ctx, scope, pkg); err != nil {
		return fmt.Errorf("orchestrator: regenerating package manifest: %w", err)
	}

	task, rowVersion, ok, err := o.db.GetTask(ctx, scope, pkg, version)
	if err != nil {
		return err
	}
	if !ok || task.State != registrydb.TaskProcessed {
		return nil
	}
	task.State = registrydb.TaskSuccess
	task.UpdatedAt = time.Now()
	return o.db.PutTask(ctx, scope, pkg, version, rowVersion, task)
}

// RegeneratePackageManifest rewrites a package's public manifest from
// the current, committed set of versions. Called after every successful
// publish and after every yank toggle, per spec.md §3 invariant 4.
func (o *Orchestrator) RegeneratePackageManifest(ctx context.Context, scope ident.Scope, pkg ident.Package) error {
	versions, err := o.db.ListVersions(ctx, scope, pkg)
	if err != nil {
		return err
	}
	m, err := manifest.BuildPerPackageManifest(scope, pkg, versions)
	if err != nil {
		return err
	}
	data, err := manifest.Marshal(m)
	if err != nil {
		return err
	}
	return o.objects.Put(ctx, manifest.PackageManifestObjectKey(scope, pkg), bytesReader(data),
		objectstore.PutOptions{ContentType: "application/json", CacheControl: objectstore.CacheControlNone})
}

// SetYanked toggles a version's yanked flag and regenerates the
// package's public manifest, per spec.md §3 invariant 4 and §8's
// yank/unyank round-trip law.
func (o *Orchestrator) SetYanked(ctx context.Context, scope ident.Scope, pkg ident.Package, version ident.Version, yanked bool) error {
	if err := o.db.SetYanked(ctx, scope, pkg, version, yanked); err != nil {
		return err
	}
	return o.RegeneratePackageManifest(ctx, scope, pkg)
}

// RebuildNpmCompat regenerates the npm-compat artifact for an already
// published, successful version at the current builder revision. This is
// the lazy, one-version-at-a-time migration path spec.md §9's open
// question defers to the operator rather than a background sweeper: it
// is invoked explicitly (by CLI or admin action), never run automatically
// when npmcompat.Revision changes, to avoid a thundering herd across
// every published version on a revision bump.
func (o *Orchestrator) RebuildNpmCompat(ctx context.Context, scope ident.Scope, pkg ident.Package, version ident.Version) error {
	v, ok, err := o.db.GetVersion(ctx, scope, pkg, version)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("orchestrator: no version %s/%s@%s to rebuild", scope, pkg, version)
	}

	files, err := o.db.ListFiles(ctx, scope, pkg, version)
	if err != nil {
		return err
	}
	contents := make(map[string][]byte, len(files))
	for _, f := range files {
		r, ok, err := o.objects.Get(ctx, manifest.FileObjectKey(scope, pkg, version, f.Path))
		if err != nil {
			return pipelineerr.SystemRetryable(pipelineerr.CodeNpmTarballError, err)
		}
		if !ok {
			return fmt.Errorf("orchestrator: file object missing for %s", f.Path)
		}
		data, err := readAll(r)
		r.Close()
		if err != nil {
			return err
		}
		contents[f.Path] = data
	}

	roots := make([]string, 0, len(v.Exports))
	for _, target := range v.Exports {
		roots = append(roots, "file://"+strings.TrimPrefix(target, "."))
	}
	builder := modgraph.NewBuilder(contents)
	graph, err := builder.Build(ctx, roots)
	if err != nil {
		return err
	}

	deps, err := o.db.ListDependencies(ctx, scope, pkg, version)
	if err != nil {
		return err
	}
	collected := make([]depcollect.Dependency, 0, len(deps))
	for _, d := range deps {
		kind := depcollect.KindNPM
		if d.Kind == "jsr" {
			kind = depcollect.KindJSR
		}
		collected = append(collected, depcollect.Dependency{
			Specifier:       depcollect.Specifier{Kind: kind, Name: d.Name, Constraint: d.Constraint, Subpath: d.Subpath},
			ResolvedVersion: d.ResolvedVersion,
		})
	}

	built, err := npmcompat.Build(ctx, npmcompat.Input{
		Graph:           graph,
		Files:           contents,
		Scope:           scope,
		Package:         pkg,
		Version:         version,
		Exports:         v.Exports,
		Dependencies:    collected,
		EcosystemScope:  o.cfg.EcosystemScope,
		RegistryBaseURL: o.cfg.RegistryBaseURL,
	})
	if err != nil {
		return err
	}

	rec := registrydb.NpmTarballRecord{
		Scope:     scope.String(),
		Package:   pkg.String(),
		Version:   version.String(),
		Revision:  npmcompat.Revision,
		Shasum:    built.Digest.Shasum,
		Integrity: built.Digest.Integrity,
		Size:      int64(len(built.Tarball)),
	}
	if err := o.objects.Put(ctx, manifest.NpmTarballObjectKey(rec.Revision, built.PackageName, version.String()), bytesReader(built.Tarball),
		objectstore.PutOptions{ContentType: "application/gzip", CacheControl: objectstore.CacheControlImmutable}); err != nil {
		return pipelineerr.SystemRetryable(pipelineerr.CodeNpmTarballError, err)
	}
	return o.db.PutNpmTarballRecord(ctx, scope, pkg, version, rec)
}

// registryVersions adapts registrydb to depcollect.PackageVersions.
type registryVersions struct {
	db *registrydb.Gateway
}

func (r registryVersions) Versions(ctx context.Context, scoped ident.ScopedPackage) ([]depcollect.PublishedVersion, error) {
	rows, err := r.db.ListVersions(ctx, scoped.Scope, scoped.Package)
	if err != nil {
		return nil, err
	}
	out := make([]depcollect.PublishedVersion, 0, len(rows))
	for _, rec := range rows {
		v, err := ident.NewVersion(rec.Version)
		if err != nil {
			continue
		}
		out = append(out, depcollect.PublishedVersion{Version: v, Exports: rec.Exports, Yanked: rec.Yanked})
	}
	return out, nil
}

func contentTypeOf(key string, data []byte) string {
	switch {
	case hasAnySuffix(key, ".json"):
		return "application/json"
	case hasAnySuffix(key, ".js", ".mjs", ".cjs"):
		return "text/javascript"
	case hasAnySuffix(key, ".ts", ".mts", ".tsx", ".d.ts", ".d.mts"):
		return "application/typescript"
	case hasAnySuffix(key, ".svg"):
		return "image/svg+xml"
	case looksLikeSVG(data):
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}

// looksLikeSVG sniffs for an SVG document in files that don't carry a
// .svg extension: a leading "<svg" root element, or an XML prolog whose
// document closes with "</svg>".
func looksLikeSVG(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n﻿")
	if bytes.HasPrefix(trimmed, []byte("<svg")) {
		return true
	}
	if bytes.HasPrefix(trimmed, []byte("<?xml")) && bytes.Contains(data, []byte("</svg>")) {
		return true
	}
	return false
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if len(s) >= len(suf) && s[len(s)-len(suf):] == suf {
			return true
		}
	}
	return false
}

func bytesReader(data []byte) *bytes.Reader {
	return bytes.NewReader(data)
}

func readAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(r)
}
