package assets

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/meshcook/internal/cache"
	"github.com/Faultbox/meshcook/internal/mesh"
)

type fakeSource struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func (s *fakeSource) Obtain(p string) (*mesh.Mesh, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[p]++
	if s.err != nil {
		return nil, s.err
	}
	return &mesh.Mesh{
		Vertices: make([]mesh.Vertex, 3),
		Indices:  []uint32{0, 1, 2},
		Groups:   []mesh.Group{{IndexCount: 3}},
		Source:   p,
	}, nil
}

func (s *fakeSource) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func TestNormalizeKey(t *testing.T) {
	roots := []string{"data", "content"}

	tests := []struct {
		path string
		want string
	}{
		{"data/props/crate.obj", "props/crate"},
		{"content/props/crate.cmesh", "props/crate"},
		{`data\props\crate.obj`, "props/crate"},
		{"./data/props/../props/crate.obj", "props/crate"},
		{"props/crate", "props/crate"},
		{"database/crate.obj", "database/crate"},
		{"other/rock.obj", "other/rock"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeKey(tt.path, roots...))
		})
	}
}

func TestNormalizeKey_LongestRootWins(t *testing.T) {
	tests := []struct {
		name  string
		roots []string
		path  string
		want  string
	}{
		{"nested source", []string{"assets", "assets/cooked"}, "assets/props/crate.obj", "props/crate"},
		{"nested content", []string{"assets", "assets/cooked"}, "assets/cooked/props/crate.cmesh", "props/crate"},
		{"nested content reversed", []string{"assets/cooked", "assets"}, "assets/cooked/props/crate.cmesh", "props/crate"},
		{"dot source", []string{".", "content"}, "props/crate.obj", "props/crate"},
		{"dot content", []string{".", "content"}, "content/props/crate.cmesh", "props/crate"},
		{"dot prefixed", []string{".", "content"}, "./props/crate.obj", "props/crate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeKey(tt.path, tt.roots...))
		})
	}
}

func TestNormalizeKey_AbsoluteRoot(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "props", "crate.obj")
	assert.Equal(t, "props/crate", NormalizeKey(p, dir))
}

func TestGetOrLoad_SameInstance(t *testing.T) {
	src := &fakeSource{}
	r := NewRegistry(src, WithRoots("data", "content"))

	a, err := r.GetOrLoad("data/props/crate.obj")
	require.NoError(t, err)
	b, err := r.GetOrLoad("content/props/crate.cmesh")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, src.total())
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []string{"props/crate"}, r.Keys())

	hits, misses := r.Stats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}

func TestGetOrLoad_Error(t *testing.T) {
	boom := errors.New("boom")
	r := NewRegistry(&fakeSource{err: boom})

	m, err := r.GetOrLoad("rock.obj")
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, m)
	assert.Zero(t, r.Len())
}

func TestGetOrLoad_Concurrent(t *testing.T) {
	src := &fakeSource{}
	r := NewRegistry(src)

	var wg sync.WaitGroup
	results := make([]*mesh.Mesh, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := r.GetOrLoad("props/crate.obj")
			assert.NoError(t, err)
			results[i] = m
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, src.total())
	for _, m := range results {
		assert.Same(t, results[0], m)
	}
}

func TestAdd_ReleasesPrevious(t *testing.T) {
	var released []string
	r := NewRegistry(&fakeSource{}, WithReleaseHook(func(key string, _ *mesh.Mesh) {
		released = append(released, key)
	}))

	first, err := r.GetOrLoad("props/crate.obj")
	require.NoError(t, err)

	second := &mesh.Mesh{Indices: []uint32{0, 0, 0}, Vertices: make([]mesh.Vertex, 1)}
	r.Add("props/crate.cmesh", second)

	assert.Nil(t, first.Vertices, "previous instance is released")
	assert.Equal(t, []string{"props/crate"}, released)

	got, ok := r.Get("props/crate")
	require.True(t, ok)
	assert.Same(t, second, got)

	// Re-adding the same instance must not release it.
	r.Add("props/crate", second)
	assert.NotNil(t, second.Vertices)
	assert.Len(t, released, 1)
}

func TestClear(t *testing.T) {
	released := 0
	r := NewRegistry(&fakeSource{}, WithReleaseHook(func(string, *mesh.Mesh) { released++ }))

	var loaded []*mesh.Mesh
	for _, p := range []string{"a.obj", "b.obj", "c.obj"} {
		m, err := r.GetOrLoad(p)
		require.NoError(t, err)
		loaded = append(loaded, m)
	}

	r.Clear()
	assert.Zero(t, r.Len())
	assert.Equal(t, 3, released)
	for _, m := range loaded {
		assert.Nil(t, m.Indices)
	}
	hits, misses := r.Stats()
	assert.Zero(t, hits)
	assert.Zero(t, misses)
}

func TestRemove(t *testing.T) {
	r := NewRegistry(&fakeSource{})
	_, err := r.GetOrLoad("a.obj")
	require.NoError(t, err)

	assert.True(t, r.Remove("a"))
	assert.False(t, r.Remove("a"))
	_, ok := r.Get("a.obj")
	assert.False(t, ok)
}

func TestRegistry_WithCacheManager(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	contentDir := filepath.Join(root, "content")
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "props"), 0755))

	obj := "v 0 0 0\nv 1 0 0\nv 0 1 0\nvt 0 0\nvt 1 0\nvt 0 1\nf 1/1 2/2 3/3\n"
	source := filepath.Join(dataDir, "props", "tri.obj")
	require.NoError(t, os.WriteFile(source, []byte(obj), 0644))

	opts := cache.DefaultOptions()
	opts.SourceRoot = dataDir
	opts.ContentRoot = contentDir
	mgr := cache.NewManager(opts)

	r := NewRegistry(mgr, WithRoots(dataDir, contentDir))

	fromSource, err := r.GetOrLoad(source)
	require.NoError(t, err)
	fromBlob, err := r.GetOrLoad(filepath.Join(contentDir, "props", "tri.cmesh"))
	require.NoError(t, err)

	assert.Same(t, fromSource, fromBlob)
	assert.Equal(t, []string{"props/tri"}, r.Keys())
	assert.Equal(t, 1, fromSource.TriangleCount())
}
