// Package cache decides whether cooked mesh blobs are current and produces
// or loads them.
package cache

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/meshcook/internal/logger"
	"github.com/Faultbox/meshcook/internal/mesh"
	"github.com/Faultbox/meshcook/pkg/formats"
)

// Cache errors.
var (
	ErrArtifact         = errors.New("cooked artifact I/O failure")
	ErrUnsupportedAsset = errors.New("unsupported asset type")
)

// Default artifact extensions.
const (
	DefaultMeshExt     = ".cmesh"
	DefaultMaterialExt = ".cmat"
	GeometryExt        = ".obj"
)

// Options configures a Manager.
type Options struct {
	SourceRoot  string // authored tree
	ContentRoot string // cooked tree mirroring SourceRoot

	RightHanded           bool
	DefaultMaterial       string
	DefaultBumpMultiplier float32

	MeshExt     string
	MaterialExt string
}

// DefaultOptions returns options rooted at the working directory.
func DefaultOptions() Options {
	b := mesh.DefaultBuildOptions()
	return Options{
		SourceRoot:            ".",
		ContentRoot:           ".",
		DefaultMaterial:       b.DefaultMaterial,
		DefaultBumpMultiplier: b.DefaultBumpMultiplier,
		MeshExt:               DefaultMeshExt,
		MaterialExt:           DefaultMaterialExt,
	}
}

// Artifacts names the two blobs cooked from one geometry file.
type Artifacts struct {
	Mesh      string
	Materials string
}

// CookResult describes one Cook call.
type CookResult struct {
	Source    string
	Artifacts Artifacts
	Skipped   bool // artifacts were current

	Vertices  int
	Triangles int
	Groups    int
	Bytes     int64 // combined size of both blobs
}

// Manager owns the cooked blob tree.
type Manager struct {
	opts Options
}

// NewManager creates a Manager. Empty extensions fall back to the defaults.
func NewManager(opts Options) *Manager {
	if opts.MeshExt == "" {
		opts.MeshExt = DefaultMeshExt
	}
	if opts.MaterialExt == "" {
		opts.MaterialExt = DefaultMaterialExt
	}
	return &Manager{opts: opts}
}

// Options returns the manager configuration.
func (m *Manager) Options() Options {
	return m.opts
}

// BuildOptions returns the pipeline options derived from the manager configuration.
func (m *Manager) BuildOptions() mesh.BuildOptions {
	return mesh.BuildOptions{
		RightHanded:           m.opts.RightHanded,
		DefaultMaterial:       m.opts.DefaultMaterial,
		DefaultBumpMultiplier: m.opts.DefaultBumpMultiplier,
	}
}

// ArtifactsFor maps SourceRoot/rel/name.obj to ContentRoot/rel/name.cmesh
// and .cmat. Sources outside SourceRoot land directly under ContentRoot.
func (m *Manager) ArtifactsFor(source string) Artifacts {
	rel := filepath.Base(source)
	if r, err := relativeTo(m.opts.SourceRoot, source); err == nil {
		rel = r
	}
	stem := filepath.Join(m.opts.ContentRoot, strings.TrimSuffix(rel, filepath.Ext(rel)))
	return Artifacts{
		Mesh:      stem + m.opts.MeshExt,
		Materials: stem + m.opts.MaterialExt,
	}
}

// artifactsForBlob returns the pair a mesh blob belongs to.
func (m *Manager) artifactsForBlob(meshPath string) Artifacts {
	stem := strings.TrimSuffix(meshPath, filepath.Ext(meshPath))
	return Artifacts{Mesh: meshPath, Materials: stem + m.opts.MaterialExt}
}

func relativeTo(root, path string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", path, root)
	}
	return rel, nil
}

// IsStale reports whether the artifacts must be regenerated. Every
// ambiguity, including filesystem errors, resolves to stale.
func (m *Manager) IsStale(source string, a Artifacts) bool {
	log := logger.Named("cache")
	stale := func(reason string, fields ...zap.Field) bool {
		log.Debug("stale: "+reason, append([]zap.Field{zap.String("source", source)}, fields...)...)
		return true
	}

	meshInfo, err := os.Stat(a.Mesh)
	if err != nil {
		return stale("mesh artifact missing", zap.Error(err))
	}
	if _, err := os.Stat(a.Materials); err != nil {
		return stale("material artifact missing", zap.Error(err))
	}
	built := meshInfo.ModTime()

	srcInfo, err := os.Stat(source)
	if err != nil {
		return stale("source unreadable", zap.Error(err))
	}
	if srcInfo.ModTime().After(built) {
		return stale("source newer than artifact", zap.Time("source_mtime", srcInfo.ModTime()), zap.Time("artifact_mtime", built))
	}

	deps, err := formats.ScanOBJDependencies(source)
	if err != nil {
		return stale("dependency scan failed", zap.Error(err))
	}
	for _, dep := range deps {
		info, err := os.Stat(dep)
		if err != nil {
			return stale("material library missing", zap.String("dependency", dep), zap.Error(err))
		}
		if info.ModTime().After(built) {
			return stale("material library newer than artifact", zap.String("dependency", dep))
		}
	}
	return false
}

// Build runs the full pipeline for a geometry file without touching the cache.
func (m *Manager) Build(source string) (*mesh.Mesh, error) {
	return mesh.BuildFile(source, m.BuildOptions())
}

// Cook regenerates the artifacts of a geometry file when they are stale.
func (m *Manager) Cook(source string) (CookResult, error) {
	_, res, err := m.cook(source, false)
	return res, err
}

// CookForce regenerates the artifacts regardless of staleness.
func (m *Manager) CookForce(source string) (CookResult, error) {
	_, res, err := m.cook(source, true)
	return res, err
}

// cook returns the built mesh when it ran the pipeline, nil when skipped.
func (m *Manager) cook(source string, force bool) (*mesh.Mesh, CookResult, error) {
	log := logger.Named("cache")
	a := m.ArtifactsFor(source)
	res := CookResult{Source: source, Artifacts: a}

	if !force && !m.IsStale(source, a) {
		log.Debug("artifacts current, skipping", zap.String("source", source))
		res.Skipped = true
		return nil, res, nil
	}

	start := time.Now()
	built, err := m.Build(source)
	if err != nil {
		return nil, res, err
	}

	n, err := m.writeArtifacts(a, built)
	if err != nil {
		removeArtifacts(a)
		log.Error("writing artifacts failed", zap.String("source", source), zap.Error(err))
		return nil, res, fmt.Errorf("%w: %v", ErrArtifact, err)
	}

	res.Vertices = len(built.Vertices)
	res.Triangles = built.TriangleCount()
	res.Groups = len(built.Groups)
	res.Bytes = n

	log.Info("cooked",
		zap.String("source", source),
		zap.String("mesh", a.Mesh),
		zap.Int("vertices", res.Vertices),
		zap.Int("triangles", res.Triangles),
		zap.Duration("elapsed", time.Since(start)))
	return built, res, nil
}

func (m *Manager) writeArtifacts(a Artifacts, built *mesh.Mesh) (int64, error) {
	var meshBuf, matBuf bytes.Buffer
	if err := EncodeMesh(&meshBuf, built); err != nil {
		return 0, err
	}
	if err := EncodeMaterials(&matBuf, built.Materials); err != nil {
		return 0, err
	}

	if err := writeFileAtomic(a.Mesh, meshBuf.Bytes()); err != nil {
		return 0, err
	}
	if err := writeFileAtomic(a.Materials, matBuf.Bytes()); err != nil {
		return 0, err
	}
	return int64(meshBuf.Len() + matBuf.Len()), nil
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place, creating parent directories as needed.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func removeArtifacts(a Artifacts) {
	for _, p := range []string{a.Mesh, a.Materials} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Named("cache").Warn("removing partial artifact", zap.String("path", p), zap.Error(err))
		}
	}
}

// Load reads both blobs of an asset. A failure on either is a full failure.
func (m *Manager) Load(a Artifacts) (*mesh.Mesh, error) {
	meshData, err := os.ReadFile(a.Mesh)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifact, err)
	}
	matData, err := os.ReadFile(a.Materials)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifact, err)
	}

	loaded, err := DecodeMesh(meshData)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifact, a.Mesh, err)
	}
	mats, err := DecodeMaterials(matData)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifact, a.Materials, err)
	}
	loaded.Materials = mats

	if err := loaded.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifact, a.Mesh, err)
	}
	return loaded, nil
}

// Obtain returns the cooked mesh for either a geometry file or a mesh blob.
// Geometry files are cooked first when stale.
func (m *Manager) Obtain(path string) (*mesh.Mesh, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case GeometryExt:
		built, res, err := m.cook(path, false)
		if err != nil {
			return nil, err
		}
		if built != nil {
			return built, nil
		}
		return m.Load(res.Artifacts)
	case strings.ToLower(m.opts.MeshExt):
		return m.Load(m.artifactsForBlob(path))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAsset, path)
	}
}
