package ingest

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"testing"

	"github.com/a-h/pkgpipe/pipelineerr"
)

func buildTarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for name, content := range files {
		hdr := &tar.Header{
			Name:     name,
			Mode:     0644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestIngestHappyPath(t *testing.T) {
	tb := buildTarball(t, map[string]string{
		"./jsr.json": `{"name":"@scope/foo","version":"1.2.3","exports":"./mod.ts"}`,
		"./mod.ts":   `export const hello: string = 'hi';`,
	})

	result, err := Ingest(context.Background(), bytes.NewReader(tb))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(result.Files))
	}
	if _, ok := result.Contents["/jsr.json"]; !ok {
		t.Errorf("expected /jsr.json in contents")
	}
	if _, ok := result.Contents["/mod.ts"]; !ok {
		t.Errorf("expected /mod.ts in contents")
	}
}

func TestIngestRejectsCaseInsensitiveDuplicate(t *testing.T) {
	tb := buildTarball(t, map[string]string{
		"/README.md": "a",
		"/readme.md": "b",
	})
	_, err := Ingest(context.Background(), bytes.NewReader(tb))
	if err == nil {
		t.Fatal("expected error")
	}
	var pe *pipelineerr.Error
	if !asErr(err, &pe) || pe.Code != pipelineerr.CodeCaseInsensitiveDuplicatePath {
		t.Fatalf("expected caseInsensitiveDuplicatePath, got %v", err)
	}
}

func TestIngestRejectsGitPath(t *testing.T) {
	tb := buildTarball(t, map[string]string{"/.git/config": "x"})
	_, err := Ingest(context.Background(), bytes.NewReader(tb))
	var pe *pipelineerr.Error
	if !asErr(err, &pe) || pe.Code != pipelineerr.CodeInvalidGitPath {
		t.Fatalf("expected invalidGitPath, got %v", err)
	}
}

func TestIngestRejectsOversizedFile(t *testing.T) {
	big := make([]byte, MaxFileSize+1)
	tb := buildTarball(t, map[string]string{"/big.bin": string(big)})
	_, err := Ingest(context.Background(), bytes.NewReader(tb))
	var pe *pipelineerr.Error
	if !asErr(err, &pe) || pe.Code != pipelineerr.CodeFileTooLarge {
		t.Fatalf("expected fileTooLarge, got %v", err)
	}
}

func TestIngestRejectsSymlink(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	_ = tw.WriteHeader(&tar.Header{
		Name:     "/link",
		Typeflag: tar.TypeSymlink,
		Linkname: "/target",
	})
	tw.Close()
	gw.Close()

	_, err := Ingest(context.Background(), bytes.NewReader(buf.Bytes()))
	var pe *pipelineerr.Error
	if !asErr(err, &pe) || pe.Code != pipelineerr.CodeLinkInTarball {
		t.Fatalf("expected linkInTarball, got %v", err)
	}
}

func asErr(err error, target **pipelineerr.Error) bool {
	pe, ok := err.(*pipelineerr.Error)
	if ok {
		*target = pe
	}
	return ok
}
