// Package modctx scopes one mod's script execution: it resolves module
// imports against the mod and its declared dependencies, and carries the
// controlled file surface privileged scripts may touch. A Context is
// rebuilt for every (mod, phase) execution; the import scope never
// changes across phases but the sandbox bound to it does.
package modctx

import (
	"errors"
	"fmt"
	"strings"

	"github.com/modforge/datastage/internal/mods"
)

// ErrModuleNotFound reports that an import matched no file in the
// requesting mod or any of its declared dependencies.
var ErrModuleNotFound = errors.New("module not found")

// Import is a resolved module import ready to be loaded.
type Import struct {
	// Mod is the mod whose root satisfied the import.
	Mod string
	// Path is the slash-separated file path inside that mod.
	Path string
	// Chunk is the diagnostic chunk name, "__mod__/path.lua".
	Chunk string
	// Source is the script text with any UTF-8 BOM already stripped.
	Source string
}

// Context binds one mod's execution to its import scope and identity.
type Context struct {
	mod      mods.Mod
	scope    []string // search order: own root first, then declared deps
	src      mods.Source
	versions map[string]string
	written  map[string]string
}

// New builds the context for executing mod against the given active mod
// set. The active list supplies the version table exposed to scripts as
// the mods global.
func New(mod mods.Mod, active []mods.Mod, src mods.Source) *Context {
	versions := make(map[string]string, len(active))
	for _, m := range active {
		versions[m.Name] = m.Version
	}

	scope := append([]string{mod.Name}, mod.ScopeNames()...)

	return &Context{
		mod:      mod,
		scope:    scope,
		src:      src,
		versions: versions,
		written:  make(map[string]string),
	}
}

// Mod returns the mod this context executes.
func (c *Context) Mod() mods.Mod {
	return c.mod
}

// Versions returns the active mod name to version table.
func (c *Context) Versions() map[string]string {
	return c.versions
}

// ResolveImport resolves a require()d module name. Both dotted
// ("a.b.c") and slashed ("a/b/c") forms are accepted, with or without a
// trailing ".lua". Search order is the requesting mod's own root, then
// each declared dependency root in declaration order. Dependencies the
// source does not carry are skipped; explicit relative or absolute paths
// are rejected outright.
func (c *Context) ResolveImport(requested string) (Import, error) {
	path, err := normalizeImport(requested)
	if err != nil {
		return Import{}, err
	}

	for _, owner := range c.scope {
		content, err := c.src.ReadFile(owner, path)
		if errors.Is(err, mods.ErrFileNotFound) || errors.Is(err, mods.ErrUnknownMod) {
			continue
		}
		if err != nil {
			return Import{}, err
		}
		return Import{
			Mod:    owner,
			Path:   path,
			Chunk:  fmt.Sprintf("__%s__/%s", owner, path),
			Source: stripBOM(content),
		}, nil
	}

	return Import{}, fmt.Errorf("%w: %s", ErrModuleNotFound, requested)
}

// ReadFile reads a data file through the same scoped search as imports.
// Only privileged sandboxes expose this to scripts.
func (c *Context) ReadFile(path string) (string, error) {
	if strings.Contains(path, "..") || strings.HasPrefix(path, "/") || strings.HasPrefix(path, `\`) {
		return "", fmt.Errorf("%w: %s", mods.ErrFileNotFound, path)
	}
	for _, owner := range c.scope {
		content, err := c.src.ReadFile(owner, path)
		if errors.Is(err, mods.ErrFileNotFound) || errors.Is(err, mods.ErrUnknownMod) {
			continue
		}
		if err != nil {
			return "", err
		}
		return stripBOM(content), nil
	}
	return "", fmt.Errorf("%w: %s", mods.ErrFileNotFound, path)
}

// WriteFile captures a script-written file. Nothing ever reaches the
// real filesystem; the capture is inspectable after the run.
func (c *Context) WriteFile(path, data string, appendTo bool) {
	if appendTo {
		c.written[path] += data
		return
	}
	c.written[path] = data
}

// Written returns the files captured by WriteFile, keyed by path.
func (c *Context) Written() map[string]string {
	return c.written
}

// normalizeImport converts a module name into a mod-relative file path.
func normalizeImport(requested string) (string, error) {
	if strings.Contains(requested, "..") {
		return "", fmt.Errorf("%w: explicit relative paths are not allowed: %s", ErrModuleNotFound, requested)
	}
	if strings.HasPrefix(requested, "/") || strings.HasPrefix(requested, `\`) {
		return "", fmt.Errorf("%w: absolute paths are not allowed: %s", ErrModuleNotFound, requested)
	}

	var parts []string
	if strings.ContainsAny(requested, `/\`) {
		parts = strings.FieldsFunc(requested, func(r rune) bool { return r == '/' || r == '\\' })
	} else {
		parts = strings.FieldsFunc(requested, func(r rune) bool { return r == '.' })
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: empty module name", ErrModuleNotFound)
	}

	// Tolerate an explicit ".lua" suffix on the final segment.
	last := parts[len(parts)-1]
	parts[len(parts)-1] = strings.TrimSuffix(last, ".lua")
	if parts[len(parts)-1] == "" {
		return "", fmt.Errorf("%w: empty module name", ErrModuleNotFound)
	}

	return strings.Join(parts, "/") + ".lua", nil
}

// stripBOM drops a leading UTF-8 byte order mark. Mod files written on
// Windows frequently carry one.
func stripBOM(s string) string {
	return strings.TrimPrefix(s, "\xef\xbb\xbf")
}
