// Package resolver implements the dependency-closure solver shared by the
// Arch, Debian, and Alpine distribution plugins, plus the Plugin interface
// and registry dispatched by the update/build workflows.
package resolver

import (
	"context"
	"sort"

	shellquote "github.com/kballard/go-shellquote"

	"github.com/reproenv/repro-env/internal/logging"
	"github.com/reproenv/repro-env/internal/lockfile"
	"github.com/reproenv/repro-env/internal/reproerr"
)

// Entry is one package's metadata as parsed from a distribution index:
// enough to resolve its dependency edges and emit a LockedPackage.
type Entry struct {
	Name     string
	Version  string
	Provides []string
	// Depends is a set of requirement groups. Each group is tried
	// left-to-right as alternatives (Debian's "a | b" syntax); every other
	// distribution produces single-element groups.
	Depends [][]string

	// Build is passed through into StagedPackage.Extra at resolve time so
	// callers can stash whatever per-entry data their Stage step needs
	// (archive URL, sha256, signature) without this package knowing about it.
	Locked lockfile.Package
}

// Index is an in-memory name/provides table built from one or more fetched
// repository indices.
type Index struct {
	entries   map[string]*Entry
	providers map[string][]string
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{
		entries:   make(map[string]*Entry),
		providers: make(map[string][]string),
	}
}

// Add registers an entry, indexing it under its own name and every name in
// Provides. Re-adding the same name overwrites the previous entry (used
// when a later repository in priority order should win, e.g. Arch's
// core/extra precedence).
func (ix *Index) Add(e *Entry) {
	ix.entries[e.Name] = e
	ix.providers[e.Name] = appendUnique(ix.providers[e.Name], e.Name)
	for _, p := range e.Provides {
		ix.providers[p] = appendUnique(ix.providers[p], e.Name)
	}
}

func appendUnique(list []string, name string) []string {
	for _, existing := range list {
		if existing == name {
			return list
		}
	}
	return append(list, name)
}

// Lookup returns the entry registered under exactly this name (not
// provides).
func (ix *Index) Lookup(name string) (*Entry, bool) {
	e, ok := ix.entries[name]
	return e, ok
}

// resolveSymbol maps a package name or virtual-provides symbol to the
// concrete package name that should satisfy it, applying spec.md §4.5's
// tie-break rule: prefer the provider whose own name matches the symbol,
// otherwise fail with AmbiguousProvider.
func (ix *Index) resolveSymbol(symbol string) (string, error) {
	if _, ok := ix.entries[symbol]; ok {
		return symbol, nil
	}

	candidates := ix.providers[symbol]
	switch len(candidates) {
	case 0:
		return "", reproerr.Resolve("unknown package or dependency: " + symbol)
	case 1:
		return candidates[0], nil
	default:
		for _, c := range candidates {
			if c == symbol {
				return c, nil
			}
		}
		return "", reproerr.AmbiguousProvider(symbol, candidates)
	}
}

// resolveGroup tries each alternative in a dependency group in order,
// returning the first that resolves.
func (ix *Index) resolveGroup(group []string) (string, error) {
	var lastErr error
	for _, alt := range group {
		name, err := ix.resolveSymbol(alt)
		if err == nil {
			return name, nil
		}
		lastErr = err
	}
	return "", lastErr
}

// Closure performs a breadth-first walk from requested over Depends edges,
// returning every transitively required entry (invariant 4: the result is
// closed under dependency). Requested names that are actually virtual
// symbols are resolved the same way dependency edges are.
func (ix *Index) Closure(requested []string) ([]*Entry, error) {
	visited := make(map[string]bool)
	queue := make([]string, len(requested))
	copy(queue, requested)

	var result []*Entry
	for len(queue) > 0 {
		symbol := queue[0]
		queue = queue[1:]

		name, err := ix.resolveSymbol(symbol)
		if err != nil {
			return nil, err
		}
		if visited[name] {
			continue
		}
		visited[name] = true

		entry := ix.entries[name]
		result = append(result, entry)

		for _, group := range entry.Depends {
			depName, err := ix.resolveGroup(group)
			if err != nil {
				return nil, err
			}
			if !visited[depName] {
				queue = append(queue, depName)
			}
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// ResolveRequest carries the inputs a Plugin.Resolve call needs.
type ResolveRequest struct {
	Image        string
	Dependencies []string
	Keep         bool

	// ReadImageFile reads a single file out of the base image's filesystem,
	// e.g. /etc/pacman.conf or /etc/apk/repositories. The workflow layer
	// backs this with a short-lived container that is torn down as soon as
	// Resolve returns — plugins never manage container lifecycle directly.
	ReadImageFile func(ctx context.Context, path string) ([]byte, error)
}

// StagedPackage pairs a locked package with the container-visible path of
// its staged artifact under the workflow's /extra bind-mount (e.g.
// "/extra/rust-1.75.0-1-x86_64.pkg.tar.zst"), not a host cache path: the
// workflow layer copies each downloaded artifact out of the content-
// addressed cache into a throwaway staging directory before mounting it in,
// so Stage never needs to know where the cache itself lives.
type StagedPackage struct {
	Locked    lockfile.Package
	CachePath string
}

// Container is the narrow surface a Plugin.Stage implementation needs from
// the container orchestrator, kept as an interface here to avoid an import
// cycle with internal/container (which depends on nothing in resolver).
type Container interface {
	Exec(ctx context.Context, cmd []string) error
}

// Plugin is the per-distribution capability pair: resolve requested
// packages into a closed, locked set, and stage+install locked packages
// inside a running container.
type Plugin interface {
	System() string
	Resolve(ctx context.Context, req ResolveRequest) ([]lockfile.Package, error)
	Stage(ctx context.Context, c Container, pkgs []StagedPackage) error
}

// LogInstallCommand emits a shell-quoted rendering of an install command at
// debug level, so a verbose user can see the exact argv about to run inside
// the container before a Plugin.Stage implementation executes it.
func LogInstallCommand(cmd []string) {
	logging.Debug("running install command", "cmd", shellquote.Join(cmd...))
}

var registry = map[string]Plugin{}

// Register adds a plugin to the dispatch table, keyed by its System().
// Called from each subpackage's init().
func Register(p Plugin) {
	registry[p.System()] = p
}

// Lookup returns the registered plugin for a manifest's packages.system
// value.
func Lookup(system string) (Plugin, error) {
	p, ok := registry[system]
	if !ok {
		return nil, reproerr.Resolve("unknown package system: " + system)
	}
	return p, nil
}
