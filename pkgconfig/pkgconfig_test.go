package pkgconfig

import (
	"testing"

	"github.com/a-h/pkgpipe/ident"
	"github.com/a-h/pkgpipe/pipelineerr"
)

func mustScope(t *testing.T, s string) ident.Scope {
	t.Helper()
	v, err := ident.NewScope(s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func mustPackage(t *testing.T, s string) ident.Package {
	t.Helper()
	v, err := ident.NewPackage(s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func mustVersion(t *testing.T, s string) ident.Version {
	t.Helper()
	v, err := ident.NewVersion(s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestParseHappyPath(t *testing.T) {
	data := []byte(`{
		// config for @scope/foo
		"name": "@scope/foo",
		"version": "1.2.3",
		"exports": "./mod.ts"
	}`)
	files := map[string][]byte{"/mod.ts": []byte("export const hello = 'hi';")}

	cfg, err := Parse(data, mustScope(t, "scope"), mustPackage(t, "foo"), mustVersion(t, "1.2.3"), files)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Exports["."] != "./mod.ts" {
		t.Errorf("expected exports[.] = ./mod.ts, got %q", cfg.Exports["."])
	}
}

func TestParseNameMismatch(t *testing.T) {
	data := []byte(`{"name":"@other/foo","version":"1.2.3","exports":"./mod.ts"}`)
	files := map[string][]byte{"/mod.ts": []byte("x")}
	_, err := Parse(data, mustScope(t, "scope"), mustPackage(t, "foo"), mustVersion(t, "1.2.3"), files)
	var pe *pipelineerr.Error
	if err == nil || !asErr(err, &pe) || pe.Code != pipelineerr.CodeConfigFileNameMismatch {
		t.Fatalf("expected configFileNameMismatch, got %v", err)
	}
}

func TestParseVersionMismatch(t *testing.T) {
	data := []byte(`{"name":"@scope/foo","version":"9.9.9","exports":"./mod.ts"}`)
	files := map[string][]byte{"/mod.ts": []byte("x")}
	_, err := Parse(data, mustScope(t, "scope"), mustPackage(t, "foo"), mustVersion(t, "1.2.3"), files)
	var pe *pipelineerr.Error
	if err == nil || !asErr(err, &pe) || pe.Code != pipelineerr.CodeConfigFileVersionMismatch {
		t.Fatalf("expected configFileVersionMismatch, got %v", err)
	}
}

func TestParseExportsObjectForm(t *testing.T) {
	data := []byte(`{"name":"@scope/foo","version":"1.2.3","exports":{".":"./mod.ts","./util":"./util.ts"}}`)
	files := map[string][]byte{"/mod.ts": []byte("x"), "/util.ts": []byte("x")}
	cfg, err := Parse(data, mustScope(t, "scope"), mustPackage(t, "foo"), mustVersion(t, "1.2.3"), files)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Exports) != 2 {
		t.Fatalf("expected 2 exports, got %d", len(cfg.Exports))
	}
}

func TestParseExportsMissingFile(t *testing.T) {
	data := []byte(`{"name":"@scope/foo","version":"1.2.3","exports":"./missing.ts"}`)
	files := map[string][]byte{}
	_, err := Parse(data, mustScope(t, "scope"), mustPackage(t, "foo"), mustVersion(t, "1.2.3"), files)
	var pe *pipelineerr.Error
	if err == nil || !asErr(err, &pe) || pe.Code != pipelineerr.CodeConfigFileExportsInvalid {
		t.Fatalf("expected configFileExportsInvalid, got %v", err)
	}
}

func TestParseExportsRejectsDisallowedCharacter(t *testing.T) {
	data := []byte(`{"name":"@scope/foo","version":"1.2.3","exports":{"./foo@bar":"./mod.ts"}}`)
	files := map[string][]byte{"/mod.ts": []byte("x")}
	_, err := Parse(data, mustScope(t, "scope"), mustPackage(t, "foo"), mustVersion(t, "1.2.3"), files)
	var pe *pipelineerr.Error
	if err == nil || !asErr(err, &pe) || pe.Code != pipelineerr.CodeConfigFileExportsInvalid {
		t.Fatalf("expected configFileExportsInvalid for a disallowed character, got %v", err)
	}
}

func TestParseExportsRejectsTripleDotSegment(t *testing.T) {
	data := []byte(`{"name":"@scope/foo","version":"1.2.3","exports":{"./.../bar":"./mod.ts"}}`)
	files := map[string][]byte{"/mod.ts": []byte("x")}
	_, err := Parse(data, mustScope(t, "scope"), mustPackage(t, "foo"), mustVersion(t, "1.2.3"), files)
	var pe *pipelineerr.Error
	if err == nil || !asErr(err, &pe) || pe.Code != pipelineerr.CodeConfigFileExportsInvalid {
		t.Fatalf("expected configFileExportsInvalid for a dot-only segment, got %v", err)
	}
}

func TestParseEmptyExports(t *testing.T) {
	data := []byte(`{"name":"@scope/foo","version":"1.2.3"}`)
	_, err := Parse(data, mustScope(t, "scope"), mustPackage(t, "foo"), mustVersion(t, "1.2.3"), nil)
	var pe *pipelineerr.Error
	if err == nil || !asErr(err, &pe) || pe.Code != pipelineerr.CodeConfigFileExportsInvalid {
		t.Fatalf("expected configFileExportsInvalid, got %v", err)
	}
}

func asErr(err error, target **pipelineerr.Error) bool {
	pe, ok := err.(*pipelineerr.Error)
	if ok {
		*target = pe
	}
	return ok
}
