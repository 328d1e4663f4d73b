package objectstore

import (
	"bytes"
	"context"
	"io"
	"testing"
)

func TestFileSystemPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs := NewFileSystem(t.TempDir())

	if err := fs.Put(ctx, "/scope/pkg/1.0.0/mod.ts", bytes.NewReader([]byte("export {}")), PutOptions{ContentType: "application/typescript"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	r, ok, err := fs.Get(ctx, "/scope/pkg/1.0.0/mod.ts")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected object to exist")
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "export {}" {
		t.Errorf("unexpected contents: %q", data)
	}
}

func TestFileSystemGetMissingReturnsNotOK(t *testing.T) {
	fs := NewFileSystem(t.TempDir())
	_, ok, err := fs.Get(context.Background(), "/does/not/exist")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("expected ok=false for a missing object")
	}
}

func TestFileSystemGetStreamOffset(t *testing.T) {
	ctx := context.Background()
	fs := NewFileSystem(t.TempDir())
	if err := fs.Put(ctx, "/file.bin", bytes.NewReader([]byte("0123456789")), PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	r, ok, err := fs.GetStream(ctx, "/file.bin", 5)
	if err != nil {
		t.Fatalf("GetStream: %v", err)
	}
	if !ok {
		t.Fatal("expected object to exist")
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "56789" {
		t.Errorf("expected tail from offset 5, got %q", data)
	}
}

func TestCacheControlHeader(t *testing.T) {
	if got := CacheControlImmutable.Header(); got == "" {
		t.Error("expected a non-empty immutable cache-control header")
	}
	if got := CacheControlNone.Header(); got != "no-cache" {
		t.Errorf("expected no-cache, got %q", got)
	}
}
