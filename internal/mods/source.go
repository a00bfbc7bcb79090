package mods

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrFileNotFound reports that a mod exists but does not contain the
// requested file. Callers distinguish it from real I/O failures.
var ErrFileNotFound = errors.New("file not found")

// ErrUnknownMod reports a file request against a mod the source does not
// carry.
var ErrUnknownMod = errors.New("unknown mod")

// Source hands script text to the engine. It is the boundary to the
// external mod-file accessor; the engine never touches archives or
// directories itself.
type Source interface {
	// Script returns the entry script a mod provides for a phase. The
	// second result is false when the mod simply has no script for that
	// phase, which is not an error.
	Script(mod string, phase Phase) (string, bool, error)
	// ReadFile returns the content of a file inside a mod, using
	// slash-separated paths relative to the mod root. A missing file is
	// ErrFileNotFound; a missing mod is ErrUnknownMod.
	ReadFile(mod, path string) (string, error)
}

// MemSource is an in-memory Source keyed by mod name and relative path.
// Used by tests and embedded fixtures.
type MemSource map[string]map[string]string

// Add stores a file under the given mod, creating the mod on first use.
func (s MemSource) Add(mod, path, content string) MemSource {
	files, ok := s[mod]
	if !ok {
		files = make(map[string]string)
		s[mod] = files
	}
	files[path] = content
	return s
}

func (s MemSource) Script(mod string, phase Phase) (string, bool, error) {
	files, ok := s[mod]
	if !ok {
		return "", false, nil
	}
	src, ok := files[phase.Filename()]
	return src, ok, nil
}

func (s MemSource) ReadFile(mod, path string) (string, error) {
	files, ok := s[mod]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownMod, mod)
	}
	content, ok := files[path]
	if !ok {
		return "", fmt.Errorf("__%s__/%s: %w", mod, path, ErrFileNotFound)
	}
	return content, nil
}

// infoJSON mirrors the subset of a mod's info.json the engine needs.
type infoJSON struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Dependencies []string `json:"dependencies"`
}

// DirSource serves mod files from a directory of unpacked mod folders,
// each carrying an info.json at its root. Archive access is handled by
// external tooling; only plain directories are supported here.
type DirSource struct {
	dirs map[string]string // mod name -> absolute folder path
}

// LoadDir scans root for mod folders and returns the discovered mods
// (sorted by name for determinism) together with a Source serving their
// files. Folders without an info.json are skipped.
func LoadDir(root string) ([]Mod, *DirSource, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, fmt.Errorf("reading mod directory: %w", err)
	}

	src := &DirSource{dirs: make(map[string]string)}
	var found []Mod
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		raw, err := os.ReadFile(filepath.Join(dir, "info.json"))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s/info.json: %w", entry.Name(), err)
		}

		var info infoJSON
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, nil, fmt.Errorf("parsing %s/info.json: %w", entry.Name(), err)
		}
		if info.Name == "" {
			return nil, nil, fmt.Errorf("%s/info.json: missing mod name", entry.Name())
		}

		deps, err := ParseDependencies(info.Dependencies)
		if err != nil {
			return nil, nil, fmt.Errorf("%s/info.json: %w", entry.Name(), err)
		}

		src.dirs[info.Name] = dir
		found = append(found, Mod{
			Name:         info.Name,
			Version:      info.Version,
			Dependencies: deps,
		})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found, src, nil
}

func (s *DirSource) Script(mod string, phase Phase) (string, bool, error) {
	content, err := s.ReadFile(mod, phase.Filename())
	if errors.Is(err, ErrFileNotFound) || errors.Is(err, ErrUnknownMod) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return content, true, nil
}

func (s *DirSource) ReadFile(mod, path string) (string, error) {
	dir, ok := s.dirs[mod]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownMod, mod)
	}
	// Paths come from scripts; keep them inside the mod folder.
	clean := filepath.Clean(filepath.FromSlash(path))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("__%s__/%s: %w", mod, path, ErrFileNotFound)
	}
	raw, err := os.ReadFile(filepath.Join(dir, clean))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("__%s__/%s: %w", mod, path, ErrFileNotFound)
	}
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
