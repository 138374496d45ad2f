package mesh

import "github.com/Faultbox/meshcook/pkg/formats"

// Weld deduplicates raw corners into a compact vertex buffer. Corners weld
// iff their VertexKeys are equal. A welded vertex takes its tangent from the
// first corner that created it; later corners with the same key only reuse
// its index. The output is deterministic for a given input.
func Weld(raw *formats.RawModel, tangents, bitangents [][3]float32) ([]Vertex, []uint32) {
	corners := raw.CornerCount()

	lookup := make(map[VertexKey]uint32, corners)
	vertices := make([]Vertex, 0, corners/2+1)
	indices := make([]uint32, 0, corners)

	for c := 0; c < corners; c++ {
		key := VertexKey{Pos: raw.PosIndices[c], Tex: raw.TexIndices[c], Norm: raw.NormIndices[c]}

		idx, seen := lookup[key]
		if !seen {
			idx = uint32(len(vertices))
			lookup[key] = idx
			normal := raw.Normals[key.Norm]
			vertices = append(vertices, Vertex{
				Position: raw.Positions[key.Pos],
				Normal:   normal,
				TexCoord: raw.TexCoords[key.Tex],
				Tangent:  finalizeTangent(tangents[c], bitangents[c], normal),
			})
		}
		indices = append(indices, idx)
	}

	return vertices, indices
}
