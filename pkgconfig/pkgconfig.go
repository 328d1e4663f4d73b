// Package pkgconfig parses and validates the JSON-with-comments config
// file that declares a package's name, version and exports map.
package pkgconfig

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/a-h/pkgpipe/ident"
	"github.com/a-h/pkgpipe/pipelineerr"
)

// Raw is the on-disk shape of the config file before exports validation.
type Raw struct {
	Name    string          `json:"name"`
	Version string          `json:"version"`
	Exports json.RawMessage `json:"exports"`
}

// Config is a validated config file: name/version have been matched
// against the publish task and exports has been normalized to a map.
type Config struct {
	Scope   ident.Scope
	Package ident.Package
	Version ident.Version
	// Exports maps an export key ("." or "./subpath") to the package-
	// relative source path ("./relative-file") it points at.
	Exports map[string]string
}

// Lookup resolves the config file contents from the ingested file map.
// A missing config file is a fatal, user-attributable error.
func Lookup(files map[string][]byte, configFilePath string) ([]byte, error) {
	data, ok := files[configFilePath]
	if !ok {
		return nil, pipelineerr.User(pipelineerr.CodeMissingConfigFile, "package does not contain a config file at "+configFilePath)
	}
	return data, nil
}

// Parse parses and validates raw config file bytes against the expected
// (scope, package, version) of the publish task, and checks that every
// exports value resolves to a path present in files.
func Parse(data []byte, wantScope ident.Scope, wantPackage ident.Package, wantVersion ident.Version, files map[string][]byte) (Config, error) {
	stripped := jsonc.ToJSON(data)

	var raw Raw
	if err := json.Unmarshal(stripped, &raw); err != nil {
		return Config{}, pipelineerr.User(pipelineerr.CodeInvalidConfigFile, "config file is not valid JSON: "+err.Error())
	}

	scoped, err := ident.ParseScopedPackage(raw.Name)
	if err != nil {
		return Config{}, pipelineerr.User(pipelineerr.CodeInvalidConfigFile, "config file \"name\" is invalid: "+err.Error())
	}
	if scoped.Scope.String() != wantScope.String() || scoped.Package.String() != wantPackage.String() {
		return Config{}, pipelineerr.User(pipelineerr.CodeConfigFileNameMismatch,
			"config file declares "+scoped.String()+", which does not match the publish target")
	}

	if raw.Version != wantVersion.String() {
		return Config{}, pipelineerr.User(pipelineerr.CodeConfigFileVersionMismatch,
			"config file declares version "+raw.Version+", which does not match the publish target")
	}

	exports, err := parseExports(raw.Exports)
	if err != nil {
		return Config{}, err
	}
	if len(exports) == 0 {
		return Config{}, pipelineerr.User(pipelineerr.CodeConfigFileExportsInvalid, "config file must declare at least one export")
	}

	for key, target := range exports {
		normalized := normalizeRelative(target)
		if _, ok := files[normalized]; !ok {
			return Config{}, pipelineerr.User(pipelineerr.CodeConfigFileExportsInvalid,
				"export \""+key+"\" points at "+target+", which is not a file in the package")
		}
	}

	return Config{
		Scope:   wantScope,
		Package: wantPackage,
		Version: wantVersion,
		Exports: exports,
	}, nil
}

// parseExports handles the three permitted shapes: absent, string, object.
func parseExports(raw json.RawMessage) (map[string]string, error) {
	if len(raw) == 0 {
		return map[string]string{}, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if err := validateExportValue(asString); err != nil {
			return nil, err
		}
		return map[string]string{".": asString}, nil
	}

	var asObject map[string]string
	if err := json.Unmarshal(raw, &asObject); err != nil {
		return nil, pipelineerr.User(pipelineerr.CodeConfigFileExportsInvalid, "\"exports\" must be a string or an object mapping export keys to relative file paths")
	}

	exports := make(map[string]string, len(asObject))
	for key, value := range asObject {
		if err := validateExportKey(key); err != nil {
			return nil, err
		}
		if err := validateExportValue(value); err != nil {
			return nil, err
		}
		exports[key] = value
	}
	return exports, nil
}

// validateExportKey checks key is "." or "./subpath" with a restricted
// alphabet, no empty or dot-only segments, and no trailing slash.
func validateExportKey(key string) error {
	if key == "." {
		return nil
	}
	if !strings.HasPrefix(key, "./") {
		return pipelineerr.User(pipelineerr.CodeConfigFileExportsInvalid, "export key \""+key+"\" must be \".\" or start with \"./\"")
	}
	if strings.HasSuffix(key, "/") {
		return pipelineerr.User(pipelineerr.CodeConfigFileExportsInvalid, "export key \""+key+"\" must not end with a slash")
	}
	segments := strings.Split(strings.TrimPrefix(key, "./"), "/")
	for _, seg := range segments {
		if seg == "" || isDotOnlySegment(seg) {
			return pipelineerr.User(pipelineerr.CodeConfigFileExportsInvalid, "export key \""+key+"\" must not contain empty or dot-only segments")
		}
		for _, c := range seg {
			if !exportKeyCharAllowed(c) {
				return pipelineerr.User(pipelineerr.CodeConfigFileExportsInvalid, "export key \""+key+"\" contains a disallowed character")
			}
		}
	}
	return nil
}

// isDotOnlySegment reports whether seg consists entirely of dots (".",
// "..", "...", ...), which would otherwise resolve as a path traversal
// or no-op segment.
func isDotOnlySegment(seg string) bool {
	for _, c := range seg {
		if c != '.' {
			return false
		}
	}
	return true
}

func exportKeyCharAllowed(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '.', c == '-':
		return true
	}
	return false
}

// validateExportValue checks value begins with "./", has an extension,
// and does not end with a slash.
func validateExportValue(value string) error {
	if !strings.HasPrefix(value, "./") {
		return pipelineerr.User(pipelineerr.CodeConfigFileExportsInvalid, "export value \""+value+"\" must start with \"./\"")
	}
	if strings.HasSuffix(value, "/") {
		return pipelineerr.User(pipelineerr.CodeConfigFileExportsInvalid, "export value \""+value+"\" must not end with a slash")
	}
	base := value[strings.LastIndexByte(value, '/')+1:]
	if !strings.Contains(base, ".") {
		return pipelineerr.User(pipelineerr.CodeConfigFileExportsInvalid, "export value \""+value+"\" must have a file extension")
	}
	return nil
}

// normalizeRelative turns "./mod.ts" into the file-map key "/mod.ts".
func normalizeRelative(value string) string {
	return "/" + strings.TrimPrefix(value, "./")
}
