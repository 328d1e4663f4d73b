// Package digest computes the shasum (SHA-1 hex) and integrity
// (SHA-512 base64) digests npm registry manifests record for a tarball,
// in a single pass over the bytes.
package digest

import (
	"crypto/sha1"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// Digest holds both digests of the same byte stream.
type Digest struct {
	Shasum    string // hex-encoded SHA-1, as npm's "shasum" field
	Integrity string // "sha512-<base64>", as npm's "integrity" field
}

// Digester accumulates both hashes as bytes are written to it, so a
// tarball can be digested while it is being packed rather than read
// twice.
type Digester struct {
	sha1   hash.Hash
	sha512 hash.Hash
	w      io.Writer
}

// New returns a Digester; writes to it are fanned out to both hashers
// via io.MultiWriter.
func New() *Digester {
	d := &Digester{sha1: sha1.New(), sha512: sha512.New()}
	d.w = io.MultiWriter(d.sha1, d.sha512)
	return d
}

func (d *Digester) Write(p []byte) (int, error) {
	return d.w.Write(p)
}

// Sum returns the digests computed so far.
func (d *Digester) Sum() Digest {
	return Digest{
		Shasum:    hex.EncodeToString(d.sha1.Sum(nil)),
		Integrity: fmt.Sprintf("sha512-%s", base64.StdEncoding.EncodeToString(d.sha512.Sum(nil))),
	}
}

// Of digests r in one pass, discarding the bytes it reads.
func Of(r io.Reader) (Digest, error) {
	d := New()
	if _, err := io.Copy(d, r); err != nil {
		return Digest{}, err
	}
	return d.Sum(), nil
}
