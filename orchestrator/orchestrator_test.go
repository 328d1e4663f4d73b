package orchestrator

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"testing"

	"github.com/a-h/pkgpipe/ident"
	"github.com/a-h/pkgpipe/objectstore"
	"github.com/a-h/pkgpipe/pipelineerr"
	"github.com/a-h/pkgpipe/registrydb"
	"github.com/a-h/pkgpipe/store"
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

func newOrchestrator(t *testing.T, cfg Config) (*Orchestrator, objectstore.Store) {
	t.Helper()
	s, closer, err := store.New(context.Background(), "sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = closer() })
	objects := objectstore.NewFileSystem(t.TempDir())
	return New(registrydb.New(s), objects, cfg, nil), objects
}

func buildTarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Size: int64(len(content)), Mode: 0o644, Typeflag: tar.TypeReg}); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("tar write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func TestHappyPathPublishReachesSuccess(t *testing.T) {
	ctx := context.Background()
	o, objects := newOrchestrator(t, Config{EcosystemScope: "jsr", RegistryBaseURL: "https://example.test"})

	scope := mustScope(t, "scope")
	pkg := mustPackage(t, "foo")
	version := mustVersion(t, "1.2.3")

	tarball := buildTarball(t, map[string]string{
		"jsr.json": `{"name":"@scope/foo","version":"1.2.3","exports":"./mod.ts"}`,
		"mod.ts":   "export const hello: string = 'hi';",
	})
	if err := objects.Put(ctx, TarballObjectKey(scope, pkg, version), bytes.NewReader(tarball), objectstore.PutOptions{}); err != nil {
		t.Fatalf("staging tarball upload: %v", err)
	}

	task, err := o.CreateTask(ctx, scope, pkg, version, "/jsr.json", "user-1")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.State != registrydb.TaskPending {
		t.Fatalf("expected pending task, got %s", task.State)
	}

	if err := o.RunPublish(ctx, scope, pkg, version); err != nil {
		t.Fatalf("RunPublish: %v", err)
	}

	final, _, ok, err := o.db.GetTask(ctx, scope, pkg, version)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if !ok {
		t.Fatal("expected task to exist")
	}
	if final.State != registrydb.TaskSuccess {
		t.Fatalf("expected success, got %s (%s: %s)", final.State, final.ErrorCode, final.ErrorMessage)
	}

	files, err := o.db.ListFiles(ctx, scope, pkg, version)
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files recorded, got %d", len(files))
	}

	rec, ok, err := o.db.GetNpmTarballRecord(ctx, scope, pkg, version)
	if err != nil {
		t.Fatalf("GetNpmTarballRecord: %v", err)
	}
	if !ok {
		t.Fatal("expected npm tarball record to exist")
	}
	if rec.Shasum == "" || rec.Integrity == "" {
		t.Error("expected non-empty digest on npm tarball record")
	}

	if _, ok, err := objects.Get(ctx, "/scope/foo/meta.json"); err != nil || !ok {
		t.Errorf("expected per-package manifest to exist: ok=%v err=%v", ok, err)
	}
	if _, ok, err := objects.Get(ctx, "/scope/foo/1.2.3_meta.json"); err != nil || !ok {
		t.Errorf("expected per-version manifest to exist: ok=%v err=%v", ok, err)
	}
}

func TestCreateTaskCollapsesConcurrentSameVersion(t *testing.T) {
	ctx := context.Background()
	o, _ := newOrchestrator(t, Config{})
	scope := mustScope(t, "scope")
	pkg := mustPackage(t, "foo")
	version := mustVersion(t, "1.0.0")

	first, err := o.CreateTask(ctx, scope, pkg, version, "/jsr.json", "user-1")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	second, err := o.CreateTask(ctx, scope, pkg, version, "/jsr.json", "user-1")
	if err != nil {
		t.Fatalf("CreateTask (second): %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected the same task, got %s and %s", first.ID, second.ID)
	}
}

func TestCreateTaskRejectsOverQuota(t *testing.T) {
	ctx := context.Background()
	o, _ := newOrchestrator(t, Config{MaxPublishAttemptsPerWeek: 1})
	scope := mustScope(t, "scope")

	if _, err := o.CreateTask(ctx, scope, mustPackage(t, "foo"), mustVersion(t, "1.0.0"), "/jsr.json", "user-1"); err != nil {
		t.Fatalf("first CreateTask: %v", err)
	}
	_, err := o.CreateTask(ctx, scope, mustPackage(t, "bar"), mustVersion(t, "1.0.0"), "/jsr.json", "user-1")
	if err == nil {
		t.Fatal("expected quota error")
	}
	if !pipelineerr.IsUserFatal(err) {
		t.Errorf("expected a user-fatal quota error, got %v", err)
	}
}

func TestMissingConfigFileFailsTask(t *testing.T) {
	ctx := context.Background()
	o, objects := newOrchestrator(t, Config{EcosystemScope: "jsr", RegistryBaseURL: "https://example.test"})

	scope := mustScope(t, "scope")
	pkg := mustPackage(t, "foo")
	version := mustVersion(t, "1.0.0")

	tarball := buildTarball(t, map[string]string{"mod.ts": "export const x = 1;"})
	if err := objects.Put(ctx, TarballObjectKey(scope, pkg, version), bytes.NewReader(tarball), objectstore.PutOptions{}); err != nil {
		t.Fatalf("staging tarball upload: %v", err)
	}

	if _, err := o.CreateTask(ctx, scope, pkg, version, "/jsr.json", "user-1"); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := o.RunPublish(ctx, scope, pkg, version); err == nil {
		t.Fatal("expected RunPublish to fail")
	}

	final, _, ok, err := o.db.GetTask(ctx, scope, pkg, version)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if !ok {
		t.Fatal("expected task to exist")
	}
	if final.State != registrydb.TaskFailure {
		t.Fatalf("expected failure, got %s", final.State)
	}
	if final.ErrorCode != string(pipelineerr.CodeMissingConfigFile) {
		t.Errorf("expected missingConfigFile code, got %s", final.ErrorCode)
	}
}
