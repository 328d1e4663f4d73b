package ident

import (
	"fmt"
	"sort"
	"strings"
)

// Path is a validated package-relative path, such as "/foo/bar.ts". It is
// always prefixed with a slash and never ends with one.
//
// Paths are case sensitive: comparison and hashing preserve case. Use
// CaseInsensitivePath when a case-insensitive comparison is required, to
// avoid publishing two files that collide on case-insensitive filesystems.
type Path struct {
	path string
}

const (
	maxPathLength          = 155
	maxLastComponentLength = 95
)

var windowsReservedNames = []string{
	"aux", "com1", "com2", "com3", "com4", "com5", "com6", "com7", "com8",
	"com9", "con", "lpt1", "lpt2", "lpt3", "lpt4", "lpt5", "lpt6", "lpt7",
	"lpt8", "lpt9", "nul", "prn",
}

// NewPath validates and constructs a Path.
func NewPath(p string) (Path, error) {
	if len(p) > maxPathLength {
		return Path{}, fmt.Errorf("package path must be at most %d characters long, but is %d characters long", maxPathLength, len(p))
	}
	if len(p) == 0 || p[0] != '/' {
		return Path{}, fmt.Errorf("package path %q must be prefixed with a slash", p)
	}

	components := strings.Split(p[1:], "/")

	var last string
	for i, component := range components {
		last = component
		if component == "" {
			if i == len(components)-1 {
				return Path{}, fmt.Errorf("package path %q must not end with a slash", p)
			}
			return Path{}, fmt.Errorf("package path %q must not contain empty components", p)
		}
		if component == "." || component == ".." {
			return Path{}, fmt.Errorf("package path %q must not contain dot segments like '.' or '..'", p)
		}
		if err := validPathChars(component); err != nil {
			return Path{}, err
		}

		basename := component
		if idx := strings.LastIndexByte(component, '.'); idx >= 0 {
			if idx == len(component)-1 {
				return Path{}, fmt.Errorf("path segment must not end in a dot (found %q)", component)
			}
			basename = component[:idx]
		}

		lowerBasename := strings.ToLower(basename)
		if isWindowsReservedName(lowerBasename) {
			return Path{}, fmt.Errorf("package path must not contain windows reserved names like 'CON' or 'PRN' (found %q)", component)
		}

		if i == 0 && strings.EqualFold(component, "_dist") {
			return Path{}, fmt.Errorf("package path must not start with /_dist/, as this is the directory reserved for generated npm-compat files")
		}
	}

	if len(last) > maxLastComponentLength {
		return Path{}, fmt.Errorf("the last path component must be at most %d characters long, but is %d characters long", maxLastComponentLength, len(last))
	}

	return Path{path: p}, nil
}

func validPathChars(component string) error {
	for _, c := range component {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			continue
		case strings.ContainsRune("$()+-.@[]_{}~", c):
			continue
		case c == '\\' || c == ':':
			return fmt.Errorf("package path must not contain windows path separators like '\\' or ':' (found %q)", c)
		case strings.ContainsRune(`<>"|?*`, c):
			return fmt.Errorf("package path must not contain windows reserved characters like '<', '>', '\"', '|', '?', or '*' (found %q)", c)
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			return fmt.Errorf("package path must not contain whitespace (found %q)", c)
		case c == '%' || c == '#':
			return fmt.Errorf("package path must not contain special URL characters (found %q)", c)
		default:
			return fmt.Errorf("package path must not contain invalid characters (found %q)", c)
		}
	}
	return nil
}

func isWindowsReservedName(lowerBasename string) bool {
	i := sort.SearchStrings(windowsReservedNames, lowerBasename)
	return i < len(windowsReservedNames) && windowsReservedNames[i] == lowerBasename
}

func (p Path) String() string { return p.path }

// CaseInsensitive projects p into a form suitable for case-insensitive
// comparison and hashing.
func (p Path) CaseInsensitive() CaseInsensitivePath {
	return CaseInsensitivePath{lower: strings.ToLower(p.path), original: p}
}

// CaseInsensitivePath wraps a Path for case-insensitive comparison, used
// to detect files that would collide on a case-insensitive filesystem.
type CaseInsensitivePath struct {
	lower    string
	original Path
}

// Key returns a string suitable for use as a map key for deduplication.
func (c CaseInsensitivePath) Key() string { return c.lower }

// Path returns the original, case-preserved Path.
func (c CaseInsensitivePath) Path() Path { return c.original }

// IsReadme reports whether this is a top-level README file, matching
// "/readme.md", "/readme.txt" or "/readme.markdown" case-insensitively.
func (c CaseInsensitivePath) IsReadme() bool {
	idx := strings.LastIndexByte(c.lower, '/')
	dir, base := c.lower[:idx], c.lower[idx+1:]
	if dir != "" {
		return false
	}
	dotIdx := strings.LastIndexByte(base, '.')
	if dotIdx < 0 {
		return false
	}
	name, ext := base[:dotIdx], base[dotIdx+1:]
	if name != "readme" {
		return false
	}
	switch ext {
	case "md", "txt", "markdown":
		return true
	}
	return false
}
