package ident

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Version is a validated, normalized semver version, such as "1.2.3" or
// "0.0.0-alpha.0". It is never prefixed with a "v".
type Version struct {
	v        *semver.Version
	original string
}

// NewVersion validates and constructs a Version.
//
// The specifier must parse as standard semver and must already be in its
// normalized form: "v1.2.3" and " 1.2.3" are both rejected, even though
// they would parse, because the registry requires the storage key and the
// specifier a consumer used to publish to match byte for byte.
func NewVersion(specified string) (Version, error) {
	v, err := semver.NewVersion(specified)
	if err != nil {
		return Version{}, fmt.Errorf("invalid semver version %q: %w", specified, err)
	}
	normalized := v.String()
	if normalized != specified {
		return Version{}, fmt.Errorf("version must be normalized: expected %q, got %q", normalized, specified)
	}
	return Version{v: v, original: specified}, nil
}

func (ver Version) String() string { return ver.original }

// Semver exposes the underlying parsed version for constraint matching.
func (ver Version) Semver() *semver.Version { return ver.v }

// Compare orders two versions per semver precedence rules.
func (ver Version) Compare(other Version) int { return ver.v.Compare(other.v) }

// Prerelease reports whether the version has a prerelease component, e.g.
// "1.0.0-rc.1".
func (ver Version) Prerelease() bool { return ver.v.Prerelease() != "" }
