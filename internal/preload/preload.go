// Package preload cooks a source tree and registers every cooked mesh.
//
// Phase 1 walks the source directory: geometry files are cooked through a
// worker pool and image files are handed to the texture loader. Phase 2
// walks the content directory and registers every mesh blob, one at a time.
package preload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/glob"
	"go.uber.org/zap"

	"github.com/Faultbox/meshcook/internal/cache"
	"github.com/Faultbox/meshcook/internal/logger"
	"github.com/Faultbox/meshcook/internal/mesh"
)

// Cooker produces cooked artifacts for a geometry file.
type Cooker interface {
	Cook(source string) (cache.CookResult, error)
	CookForce(source string) (cache.CookResult, error)
}

// TextureLoader receives every image file found in the source tree.
type TextureLoader interface {
	Load(path string) error
}

// Registrar takes ownership of cooked meshes.
type Registrar interface {
	GetOrLoad(path string) (*mesh.Mesh, error)
}

// Options configures a preload run.
type Options struct {
	SourceDir  string
	ContentDir string

	GeometryPatterns []string // matched against file names, e.g. "*.obj"
	ImagePatterns    []string
	MeshExt          string

	Workers int
	Force   bool // cook even when artifacts are current
}

// Kind classifies a preloaded file.
type Kind int

const (
	KindGeometry Kind = iota
	KindImage
	KindMesh
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindGeometry:
		return "geometry"
	case KindImage:
		return "image"
	case KindMesh:
		return "mesh"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Result holds the outcome of processing one file.
type Result struct {
	Path    string
	Kind    Kind
	Success bool
	Skipped bool // geometry whose artifacts were current
	Bytes   int64
	Error   string
}

// Summary aggregates a preload run.
type Summary struct {
	Results []Result

	Cooked     int
	Skipped    int
	Images     int
	Registered int
	Failed     int
	Bytes      int64
	Elapsed    time.Duration
}

func (s *Summary) add(r Result) {
	s.Results = append(s.Results, r)
	if !r.Success {
		s.Failed++
		return
	}
	switch r.Kind {
	case KindGeometry:
		if r.Skipped {
			s.Skipped++
		} else {
			s.Cooked++
			s.Bytes += r.Bytes
		}
	case KindImage:
		s.Images++
	case KindMesh:
		s.Registered++
	}
}

// Failures returns the failed results.
func (s *Summary) Failures() []Result {
	var out []Result
	for _, r := range s.Results {
		if !r.Success {
			out = append(out, r)
		}
	}
	return out
}

type matcher struct {
	globs []glob.Glob
}

func compilePatterns(patterns []string) (*matcher, error) {
	m := &matcher{}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// match tests the slash-separated relative path and the file name, each
// as-is and lowercased.
func (m *matcher) match(rel string) bool {
	name := rel[strings.LastIndex(rel, "/")+1:]
	for _, g := range m.globs {
		if g.Match(name) || g.Match(strings.ToLower(name)) || g.Match(rel) || g.Match(strings.ToLower(rel)) {
			return true
		}
	}
	return false
}

type job struct {
	path string
	kind Kind
}

// Run executes both phases. Per-file failures are reported in the summary;
// the returned error covers bad patterns, an unreadable source tree and
// cancellation.
func Run(ctx context.Context, cooker Cooker, textures TextureLoader, registry Registrar, opts Options) (*Summary, error) {
	log := logger.Named("preload")
	start := time.Now()

	geometry, err := compilePatterns(opts.GeometryPatterns)
	if err != nil {
		return nil, err
	}
	images, err := compilePatterns(opts.ImagePatterns)
	if err != nil {
		return nil, err
	}
	if opts.MeshExt == "" {
		opts.MeshExt = cache.DefaultMeshExt
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	jobs, err := collectSources(opts.SourceDir, geometry, images, textures != nil)
	if err != nil {
		return nil, err
	}
	log.Info("preload phase 1",
		zap.String("source", opts.SourceDir),
		zap.Int("files", len(jobs)),
		zap.Int("workers", opts.Workers))

	summary := &Summary{}
	for _, r := range runJobs(ctx, jobs, opts, cooker, textures) {
		summary.add(r)
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	blobs, err := collectBlobs(opts.ContentDir, opts.MeshExt)
	if err != nil {
		return summary, err
	}
	log.Info("preload phase 2", zap.String("content", opts.ContentDir), zap.Int("meshes", len(blobs)))

	for _, p := range blobs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		r := Result{Path: p, Kind: KindMesh}
		if _, err := registry.GetOrLoad(p); err != nil {
			r.Error = err.Error()
			log.Warn("registering mesh failed", zap.String("path", p), zap.Error(err))
		} else {
			r.Success = true
		}
		summary.add(r)
	}

	summary.Elapsed = time.Since(start)
	log.Info("preload complete",
		zap.Int("cooked", summary.Cooked),
		zap.Int("skipped", summary.Skipped),
		zap.Int("images", summary.Images),
		zap.Int("registered", summary.Registered),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

func collectSources(root string, geometry, images *matcher, withImages bool) ([]job, error) {
	var jobs []job
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		switch {
		case geometry.match(rel):
			jobs = append(jobs, job{path: p, kind: KindGeometry})
		case withImages && images.match(rel):
			jobs = append(jobs, job{path: p, kind: KindImage})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return jobs, nil
}

func collectBlobs(root, ext string) ([]string, error) {
	var blobs []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ext) {
			blobs = append(blobs, p)
		}
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return blobs, nil
}

// runJobs processes jobs on a worker pool. Each file goes to exactly one
// worker; results keep the job order.
func runJobs(ctx context.Context, jobs []job, opts Options, cooker Cooker, textures TextureLoader) []Result {
	results := make([]Result, len(jobs))
	var processed atomic.Int64

	jobChan := make(chan int, opts.Workers*2)
	var wg sync.WaitGroup

	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobChan {
				results[idx] = processJob(jobs[idx], opts, cooker, textures)
				processed.Add(1)
			}
		}()
	}

	sent := 0
send:
	for i := range jobs {
		select {
		case <-ctx.Done():
			break send
		case jobChan <- i:
			sent++
		}
	}
	close(jobChan)
	wg.Wait()

	logger.Named("preload").Debug("phase 1 finished", zap.Int64("processed", processed.Load()), zap.Int("total", len(jobs)))
	return results[:sent]
}

func processJob(j job, opts Options, cooker Cooker, textures TextureLoader) Result {
	r := Result{Path: j.path, Kind: j.kind}

	switch j.kind {
	case KindGeometry:
		cook := cooker.Cook
		if opts.Force {
			cook = cooker.CookForce
		}
		res, err := cook(j.path)
		if err != nil {
			r.Error = err.Error()
			logger.Named("preload").Warn("cook failed", zap.String("path", j.path), zap.Error(err))
			return r
		}
		r.Skipped = res.Skipped
		r.Bytes = res.Bytes
	case KindImage:
		if err := textures.Load(j.path); err != nil {
			r.Error = err.Error()
			return r
		}
	}

	r.Success = true
	return r
}
