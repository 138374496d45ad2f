package mesh

import (
	"errors"
	"fmt"
	"math"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Faultbox/meshcook/internal/logger"
	"github.com/Faultbox/meshcook/pkg/formats"
)

// BuildFile parses a geometry file and its material libraries and cooks them.
// A missing material library only degrades the result; an unreadable or
// empty geometry file fails.
func BuildFile(objPath string, opts BuildOptions) (*Mesh, error) {
	log := logger.Named("mesh")

	raw, err := formats.ParseOBJFile(objPath, formats.OBJOptions{RightHanded: opts.RightHanded})
	if err != nil {
		return nil, err
	}

	var mats []formats.Material
	for _, lib := range raw.MaterialLibs {
		libMats, err := formats.ParseMTLFile(lib, formats.MTLOptions{DefaultBumpMultiplier: opts.DefaultBumpMultiplier})
		if err != nil {
			if !errors.Is(err, formats.ErrMissingMaterialLib) {
				return nil, err
			}
			log.Warn("continuing without material library", zap.String("source", objPath), zap.Error(err))
			continue
		}
		mats = append(mats, libMats...)
	}
	if len(raw.MaterialLibs) == 0 {
		log.Debug("no material library referenced", zap.String("source", objPath))
	}

	m, err := Build(raw, mats, opts)
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", objPath, err)
	}
	m.Source = filepath.ToSlash(objPath)
	m.Materials = ResolveTextures(m.Materials, filepath.Dir(objPath))

	log.Debug("built mesh",
		zap.String("source", objPath),
		zap.Int("corners", raw.CornerCount()),
		zap.Int("vertices", len(m.Vertices)),
		zap.Int("groups", len(m.Groups)),
		zap.Int("materials", len(m.Materials)))
	return m, nil
}

// Build runs the cook pipeline on a parsed model: default material
// synthesis, material cross-reference, tangent space, welding and the group
// table.
func Build(raw *formats.RawModel, mats []formats.Material, opts BuildOptions) (*Mesh, error) {
	if err := validateRaw(raw); err != nil {
		return nil, err
	}

	hasMaterials := len(mats) > 0
	mats = EnsureDefaultMaterial(raw, mats, opts)
	formats.ResolveGroupMaterials(raw, mats)

	tangents, bitangents, skipped := BuildTangents(raw)
	if skipped > 0 {
		logger.Named("mesh").Debug("degenerate UV triangles skipped for tangents", zap.Int("count", skipped))
	}
	vertices, indices := Weld(raw, tangents, bitangents)

	groups := make([]Group, raw.GroupCount())
	for g := range groups {
		start := raw.GroupStarts[g]
		groups[g] = Group{
			StartIndex: uint32(start),
			IndexCount: uint32(raw.GroupStarts[g+1] - start),
			Material:   raw.MaterialNames[g],
		}
		if idx := raw.GroupMaterials[g]; idx >= 0 {
			groups[g].Material = mats[idx].Name
		}
	}

	m := &Mesh{
		Vertices:     vertices,
		Indices:      indices,
		Groups:       groups,
		Materials:    mats,
		Bounds:       computeBounds(vertices),
		HasMaterials: hasMaterials,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// EnsureDefaultMaterial synthesizes one descriptor when a model has groups
// but no materials, and names every unnamed group after it.
func EnsureDefaultMaterial(raw *formats.RawModel, mats []formats.Material, opts BuildOptions) []formats.Material {
	if len(mats) > 0 || raw.GroupCount() == 0 {
		return mats
	}

	name := opts.DefaultMaterial
	if name == "" {
		name = DefaultBuildOptions().DefaultMaterial
	}
	mats = []formats.Material{formats.NewMaterial(name, formats.MTLOptions{DefaultBumpMultiplier: opts.DefaultBumpMultiplier})}

	for g := range raw.MaterialNames {
		if raw.MaterialNames[g] == "" {
			raw.MaterialNames[g] = name
		}
	}
	return mats
}

// ResolveTextures joins every relative texture path onto baseDir. The input
// slice is not modified.
func ResolveTextures(mats []formats.Material, baseDir string) []formats.Material {
	out := make([]formats.Material, len(mats))
	base := filepath.ToSlash(baseDir)
	for i, m := range mats {
		for slot, tex := range m.Textures {
			if tex == "" || path.IsAbs(tex) || filepath.IsAbs(tex) {
				continue
			}
			m.Textures[slot] = path.Join(base, tex)
		}
		out[i] = m
	}
	return out
}

func validateRaw(raw *formats.RawModel) error {
	corners := raw.CornerCount()
	if corners == 0 {
		return formats.ErrNoGeometry
	}
	if corners%3 != 0 || len(raw.TexIndices) != corners || len(raw.NormIndices) != corners {
		return fmt.Errorf("%w: corner arrays are inconsistent", ErrInvalidMesh)
	}
	for c := 0; c < corners; c++ {
		if int(raw.PosIndices[c]) >= len(raw.Positions) ||
			int(raw.TexIndices[c]) >= len(raw.TexCoords) ||
			int(raw.NormIndices[c]) >= len(raw.Normals) {
			return fmt.Errorf("%w: corner %d references a missing attribute", ErrInvalidMesh, c)
		}
	}

	starts := raw.GroupStarts
	if len(starts) < 2 || starts[0] != 0 || starts[len(starts)-1] != corners || len(raw.MaterialNames) != len(starts)-1 {
		return fmt.Errorf("%w: group table does not cover the model", ErrInvalidMesh)
	}
	for i := 1; i < len(starts); i++ {
		if starts[i] < starts[i-1] {
			return fmt.Errorf("%w: group starts decrease at %d", ErrInvalidMesh, i)
		}
	}
	return nil
}

func computeBounds(vertices []Vertex) Bounds {
	if len(vertices) == 0 {
		return Bounds{}
	}
	b := Bounds{
		Min: [3]float32{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
		Max: [3]float32{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
	}
	for i := range vertices {
		updateBounds(&b, vertices[i].Position)
	}
	return b
}
