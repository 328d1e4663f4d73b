// Package ingest unpacks a published tarball into an in-memory file map,
// validating every entry against the package path grammar and the
// registry's size budgets.
package ingest

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"io"
	"strings"

	"github.com/a-h/pkgpipe/ident"
	"github.com/a-h/pkgpipe/pipelineerr"
)

const (
	// MaxFileSize is the per-file byte budget.
	MaxFileSize = 20 * 1024 * 1024
	// MaxTotalSize is the cumulative byte budget across all files in a
	// publish.
	MaxTotalSize = 20 * 1024 * 1024
)

// FileInfo describes one ingested file.
type FileInfo struct {
	Path ident.Path
	Size int64
	Hash [sha256.Size]byte
}

// Result is the outcome of ingesting a tarball: an ordered list of files
// plus the file contents keyed by path string.
type Result struct {
	Files    []FileInfo
	Contents map[string][]byte
}

// Ingest reads a gzip-compressed POSIX tar stream and builds a Result.
// Every failure is a *pipelineerr.Error with a stable code: malformed
// input is user/fatal, read failures off r are system/retryable.
func Ingest(ctx context.Context, r io.Reader) (Result, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return Result{}, pipelineerr.User(pipelineerr.CodeInvalidPath, "tarball is not a valid gzip stream")
	}
	defer gr.Close()

	tr := tar.NewReader(gr)

	result := Result{Contents: make(map[string][]byte)}
	seen := make(map[string]ident.Path)
	var total int64

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, pipelineerr.SystemRetryable(pipelineerr.CodeInvalidPath, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			continue
		case tar.TypeReg, tar.TypeRegA:
			// fall through to file handling below
		case tar.TypeSymlink, tar.TypeLink:
			return Result{}, pipelineerr.User(pipelineerr.CodeLinkInTarball, "tarball must not contain links")
		default:
			return Result{}, pipelineerr.User(pipelineerr.CodeInvalidEntryType, "tarball entries must be regular files or directories")
		}

		normalized := normalizePath(hdr.Name)
		if strings.HasPrefix(normalized, "/.git/") || normalized == "/.git" {
			return Result{}, pipelineerr.User(pipelineerr.CodeInvalidGitPath, "tarball must not contain .git entries")
		}

		path, err := ident.NewPath(normalized)
		if err != nil {
			return Result{}, pipelineerr.UserAt(pipelineerr.CodeInvalidPath, err.Error(), normalized, 0, 0)
		}

		ci := path.CaseInsensitive()
		if existing, ok := seen[ci.Key()]; ok {
			return Result{}, pipelineerr.User(pipelineerr.CodeCaseInsensitiveDuplicatePath,
				"tarball contains both "+existing.String()+" and "+path.String()+", which collide case-insensitively")
		}
		seen[ci.Key()] = path

		if hdr.Size > MaxFileSize {
			return Result{}, pipelineerr.User(pipelineerr.CodeFileTooLarge, path.String()+" exceeds the per-file size limit of 20 MiB")
		}

		buf := new(bytes.Buffer)
		buf.Grow(int(hdr.Size))
		n, err := io.CopyN(buf, tr, hdr.Size)
		if err != nil && err != io.EOF {
			return Result{}, pipelineerr.SystemRetryable(pipelineerr.CodeInvalidPath, err)
		}
		if n != hdr.Size {
			return Result{}, pipelineerr.SystemRetryable(pipelineerr.CodeInvalidPath, io.ErrUnexpectedEOF)
		}

		total += n
		if total > MaxTotalSize {
			return Result{}, pipelineerr.User(pipelineerr.CodePackageTooLarge, "tarball contents exceed the total size limit of 20 MiB")
		}

		content := buf.Bytes()
		result.Files = append(result.Files, FileInfo{
			Path: path,
			Size: n,
			Hash: sha256.Sum256(content),
		})
		result.Contents[path.String()] = content
	}

	return result, nil
}

// normalizePath tolerates a leading "./" and ensures the result starts
// with a single "/".
func normalizePath(name string) string {
	name = strings.TrimPrefix(name, "./")
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return name
}
