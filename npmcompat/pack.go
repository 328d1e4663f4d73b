package npmcompat

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"sort"
	"time"
)

// pack builds a deterministic, gzipped tar of files: entries sorted by
// path, fixed mode, "./package" path prefix, single mtime for the whole
// archive.
func pack(files map[string][]byte, mtime time.Time) ([]byte, error) {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)

	for _, p := range paths {
		content := files[p]
		header := &tar.Header{
			Name:     "./package" + p,
			Size:     int64(len(content)),
			Mode:     0o777,
			ModTime:  mtime,
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(header); err != nil {
			return nil, err
		}
		if _, err := tw.Write(content); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gzw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
