// Package assets keeps cooked meshes in memory, keyed by normalized path.
package assets

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/exp/maps"

	"github.com/Faultbox/meshcook/internal/logger"
	"github.com/Faultbox/meshcook/internal/mesh"
)

// MeshSource produces a cooked mesh for a geometry file or a mesh blob.
type MeshSource interface {
	Obtain(path string) (*mesh.Mesh, error)
}

// ReleaseHook is called for every mesh the registry drops, after
// mesh.Release. Renderers use it to free GPU buffers.
type ReleaseHook func(key string, m *mesh.Mesh)

// Option configures a Registry.
type Option func(*Registry)

// WithRoots sets the directory roots stripped from paths when forming keys.
// Pass both the source and the content root so a geometry file and its
// mesh blob share one key.
func WithRoots(roots ...string) Option {
	return func(r *Registry) {
		r.roots = append(r.roots, roots...)
	}
}

// WithReleaseHook installs a hook called for every released mesh.
func WithReleaseHook(h ReleaseHook) Option {
	return func(r *Registry) {
		r.onRelease = h
	}
}

// Registry owns loaded meshes. Lookup-or-insert runs under one mutex, so
// concurrent requests for the same key load it once.
type Registry struct {
	source    MeshSource
	roots     []string
	onRelease ReleaseHook

	meshes map[string]*mesh.Mesh
	mu     sync.Mutex

	// Stats
	hits   int
	misses int
}

// NewRegistry creates an empty registry backed by source.
func NewRegistry(source MeshSource, opts ...Option) *Registry {
	r := &Registry{
		source: source,
		meshes: make(map[string]*mesh.Mesh),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Key returns the registry key for a path.
func (r *Registry) Key(p string) string {
	return NormalizeKey(p, r.roots...)
}

// GetOrLoad returns the mesh registered for path, loading it through the
// source on a miss. A hit returns the stored instance itself.
func (r *Registry) GetOrLoad(p string) (*mesh.Mesh, error) {
	key := r.Key(p)

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.meshes[key]; ok {
		r.hits++
		return m, nil
	}
	r.misses++

	m, err := r.source.Obtain(p)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", key, err)
	}
	r.meshes[key] = m

	logger.Named("assets").Debug("registered mesh",
		zap.String("key", key),
		zap.String("path", p),
		zap.Int("vertices", len(m.Vertices)))
	return m, nil
}

// Get returns the mesh registered for path without loading.
func (r *Registry) Get(p string) (*mesh.Mesh, bool) {
	key := r.Key(p)

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.meshes[key]
	if ok {
		r.hits++
	} else {
		r.misses++
	}
	return m, ok
}

// Add registers m under the key for path, releasing any previous instance.
func (r *Registry) Add(p string, m *mesh.Mesh) {
	key := r.Key(p)

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.meshes[key]; ok && prev != m {
		r.release(key, prev)
	}
	r.meshes[key] = m
}

// Remove releases and drops the mesh registered for path.
func (r *Registry) Remove(p string) bool {
	key := r.Key(p)

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.meshes[key]
	if !ok {
		return false
	}
	r.release(key, m)
	delete(r.meshes, key)
	return true
}

// Clear releases every mesh and empties the registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, m := range r.meshes {
		r.release(key, m)
	}
	r.meshes = make(map[string]*mesh.Mesh)
	r.hits = 0
	r.misses = 0
}

func (r *Registry) release(key string, m *mesh.Mesh) {
	m.Release()
	if r.onRelease != nil {
		r.onRelease(key, m)
	}
	logger.Named("assets").Debug("released mesh", zap.String("key", key))
}

// Len returns the number of registered meshes.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.meshes)
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	keys := maps.Keys(r.meshes)
	r.mu.Unlock()

	sort.Strings(keys)
	return keys
}

// Stats returns registry statistics.
func (r *Registry) Stats() (hits, misses int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits, r.misses
}

// NormalizeKey converts p to forward slashes, strips the longest matching
// root and removes the extension. "data/props/crate.obj" and
// "content/props/crate.cmesh" both map to "props/crate" with roots
// "data" and "content". Roots are compared in absolute form, so "." is the
// working directory and nested roots resolve to the innermost one.
func NormalizeKey(p string, roots ...string) string {
	key := cleanSlash(p)

	best := -1
	for _, root := range roots {
		if root == "" {
			continue
		}
		if rel, n, ok := matchRoot(p, root); ok && n > best {
			key, best = rel, n
		}
	}

	return strings.TrimSuffix(key, path.Ext(key))
}

func cleanSlash(p string) string {
	return path.Clean(strings.ReplaceAll(filepath.ToSlash(p), "\\", "/"))
}

// matchRoot strips root from p and reports the length of the matched root.
// Both sides are made absolute first; if that fails they are compared as
// written.
func matchRoot(p, root string) (rel string, n int, ok bool) {
	absPath, errPath := filepath.Abs(p)
	absRoot, errRoot := filepath.Abs(root)
	if errPath != nil || errRoot != nil {
		r := cleanSlash(root)
		rel, ok = stripRoot(cleanSlash(p), r)
		return rel, len(r), ok
	}
	r := cleanSlash(absRoot)
	rel, ok = stripRoot(cleanSlash(absPath), r)
	return rel, len(r), ok
}

func stripRoot(key, root string) (string, bool) {
	if root == "." || root == "" {
		return key, false
	}
	if root == "/" {
		return strings.TrimPrefix(key, "/"), strings.HasPrefix(key, "/")
	}
	if strings.HasPrefix(key, root+"/") {
		return key[len(root)+1:], true
	}
	return key, false
}
