// Package mesh turns raw OBJ models into welded, tangent-space annotated
// meshes ready for GPU upload.
package mesh

import (
	"errors"
	"fmt"

	"github.com/Faultbox/meshcook/pkg/formats"
)

// ErrInvalidMesh reports a broken index or group invariant.
var ErrInvalidMesh = errors.New("invalid mesh")

// Vertex is a welded mesh vertex.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	TexCoord [2]float32
	Tangent  [4]float32 // xyz direction, w = ±1 handedness
}

// VertexKey identifies a raw corner by its position, texcoord and normal
// indices. Two corners weld iff their keys are equal.
type VertexKey struct {
	Pos  uint32
	Tex  uint32
	Norm uint32
}

// Group is a contiguous index range drawn with one material.
type Group struct {
	StartIndex uint32
	IndexCount uint32
	Material   string
}

// Bounds holds the axis-aligned bounding box of the mesh.
type Bounds struct {
	Min [3]float32
	Max [3]float32
}

// Mesh is a cooked mesh: welded vertices, triangle indices, the group table
// and the material descriptors it references.
type Mesh struct {
	Vertices  []Vertex
	Indices   []uint32
	Groups    []Group
	Materials []formats.Material
	Bounds    Bounds

	Source       string // geometry file the mesh was cooked from
	HasMaterials bool   // material data came from a material file
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// Material returns the descriptor a group renders with, or nil.
func (m *Mesh) Material(g Group) *formats.Material {
	for i := range m.Materials {
		if m.Materials[i].Name == g.Material {
			return &m.Materials[i]
		}
	}
	return nil
}

// Validate checks the index and group invariants.
func (m *Mesh) Validate() error {
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("%w: %d indices is not a multiple of 3", ErrInvalidMesh, len(m.Indices))
	}
	for i, idx := range m.Indices {
		if int(idx) >= len(m.Vertices) {
			return fmt.Errorf("%w: index %d references vertex %d of %d", ErrInvalidMesh, i, idx, len(m.Vertices))
		}
	}

	var total uint64
	for i, g := range m.Groups {
		if uint64(g.StartIndex)+uint64(g.IndexCount) > uint64(len(m.Indices)) {
			return fmt.Errorf("%w: group %d overruns the index buffer", ErrInvalidMesh, i)
		}
		total += uint64(g.IndexCount)
	}
	if total != uint64(len(m.Indices)) {
		return fmt.Errorf("%w: groups cover %d of %d indices", ErrInvalidMesh, total, len(m.Indices))
	}
	return nil
}

// Release drops the mesh buffers.
func (m *Mesh) Release() {
	m.Vertices = nil
	m.Indices = nil
	m.Groups = nil
	m.Materials = nil
}

// BuildOptions contains options for the cook pipeline.
type BuildOptions struct {
	// RightHanded flips Y and triangle winding for right-handed sources.
	RightHanded bool
	// DefaultMaterial names the descriptor synthesized when a model has
	// groups but no materials.
	DefaultMaterial string
	// DefaultBumpMultiplier is used when a -bm option is malformed.
	DefaultBumpMultiplier float32
}

// DefaultBuildOptions returns the standard pipeline options.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		DefaultMaterial:       "DefaultMaterial",
		DefaultBumpMultiplier: 1.0,
	}
}
