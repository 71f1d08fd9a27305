package migrations

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

const (
	staticDataParentDir = "share"
	migrationsDirName   = "ysql_migrations"

	scriptSuffix = ".sql"
)

// Migration scripts are named V<major>[.<minor>]__<ordinal>__<description>.sql.
// The ordinal is an opaque unique integer and does not participate in
// ordering.
var filenamePattern = regexp.MustCompile(`V(\d+)(\.(\d+))?__\d+__[_0-9A-Za-z]+\.sql`)

// Script is a single migration script discovered on disk. Its content is
// read lazily, when the script is applied.
type Script struct {
	Version  Version
	Filename string
	Path     string
}

// Registry is the ordered set of migration scripts available in the
// migrations directory. It is built once at startup and never mutated
// afterwards.
type Registry struct {
	fs      afero.Fs
	dir     string
	scripts map[Version]Script
	order   []Version
}

// NewRegistry scans dir for migration scripts and validates their names.
// Entries without a .sql suffix are ignored; every remaining entry must
// conform to the filename pattern. At least one script must be present.
func NewRegistry(fsys afero.Fs, dir string) (*Registry, error) {
	exists, err := afero.DirExists(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to check migrations directory %q: %w", dir, err)
	}
	if !exists {
		return nil, fmt.Errorf("migrations directory %q not found", dir)
	}

	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations directory %q: %w", dir, err)
	}

	scripts := make(map[Version]Script)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(name), scriptSuffix) {
			continue
		}

		version, err := ParseFilename(name)
		if err != nil {
			return nil, err
		}

		// A later file with the same version replaces the earlier entry.
		scripts[version] = Script{
			Version:  version,
			Filename: name,
			Path:     filepath.Join(dir, name),
		}
	}

	if len(scripts) == 0 {
		return nil, fmt.Errorf("no migrations found in %q", dir)
	}

	order := make([]Version, 0, len(scripts))
	for version := range scripts {
		order = append(order, version)
	}
	sort.Slice(order, func(i, j int) bool {
		return order[i].Less(order[j])
	})

	return &Registry{
		fs:      fsys,
		dir:     dir,
		scripts: scripts,
		order:   order,
	}, nil
}

// ParseFilename extracts the version encoded in a migration script name.
// A missing minor component defaults to 0.
func ParseFilename(name string) (Version, error) {
	match := filenamePattern.FindStringSubmatch(name)
	if match == nil {
		return Version{}, fmt.Errorf("migration %q does not conform to the filename pattern", name)
	}

	major, err := strconv.Atoi(match[1])
	if err != nil {
		return Version{}, fmt.Errorf("migration %q has an invalid major version: %w", name, err)
	}
	minor := 0
	if match[3] != "" {
		minor, err = strconv.Atoi(match[3])
		if err != nil {
			return Version{}, fmt.Errorf("migration %q has an invalid minor version: %w", name, err)
		}
	}

	return Version{Major: major, Minor: minor}, nil
}

// Len returns the number of distinct script versions.
func (r *Registry) Len() int {
	return len(r.order)
}

// Latest returns the highest version among the registered scripts.
func (r *Registry) Latest() Version {
	return r.order[len(r.order)-1]
}

// Next returns the script with the smallest version strictly greater
// than after. The second return value is false when no such script
// exists.
func (r *Registry) Next(after Version) (Script, bool) {
	for _, version := range r.order {
		if after.Less(version) {
			return r.scripts[version], true
		}
	}
	return Script{}, false
}

// Read loads the full content of a script.
func (r *Registry) Read(script Script) ([]byte, error) {
	content, err := afero.ReadFile(r.fs, script.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration %q: %w", script.Filename, err)
	}
	return content, nil
}

// DiscoverDir locates the migrations directory by walking up from the
// executable's directory until a share/ysql_migrations directory is
// found, mirroring how the rest of the distribution locates its static
// data.
func DiscoverDir(fsys afero.Fs) (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to determine executable path: %w", err)
	}

	dir := filepath.Dir(exe)
	for {
		candidate := filepath.Join(dir, staticDataParentDir, migrationsDirName)
		exists, err := afero.DirExists(fsys, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check for migrations directory %q: %w", candidate, err)
		}
		if exists {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("no share/ysql_migrations directory found relative to the executable")
		}
		dir = parent
	}
}
