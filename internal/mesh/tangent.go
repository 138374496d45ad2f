package mesh

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/meshcook/pkg/formats"
)

// degenerateUV is the smallest |det| of a triangle's UV matrix that is
// still inverted. Triangles below it contribute no tangent.
const degenerateUV = 1e-10

// BuildTangents computes per-triangle tangent and bitangent vectors and
// accumulates them into every corner of the triangle. The result has one
// entry per raw corner. It also returns how many triangles were skipped for
// a degenerate UV mapping.
func BuildTangents(raw *formats.RawModel) (tangents, bitangents [][3]float32, skipped int) {
	corners := raw.CornerCount()
	tangents = make([][3]float32, corners)
	bitangents = make([][3]float32, corners)

	for c := 0; c+2 < corners; c += 3 {
		p0 := raw.Positions[raw.PosIndices[c]]
		p1 := raw.Positions[raw.PosIndices[c+1]]
		p2 := raw.Positions[raw.PosIndices[c+2]]
		uv0 := raw.TexCoords[raw.TexIndices[c]]
		uv1 := raw.TexCoords[raw.TexIndices[c+1]]
		uv2 := raw.TexCoords[raw.TexIndices[c+2]]

		e1 := sub(p1, p0)
		e2 := sub(p2, p0)
		du1, dv1 := uv1[0]-uv0[0], uv1[1]-uv0[1]
		du2, dv2 := uv2[0]-uv0[0], uv2[1]-uv0[1]

		det := du1*dv2 - du2*dv1
		if math32.Abs(det) < degenerateUV {
			skipped++
			continue
		}
		r := 1 / det

		t := scale(sub(scale(e1, dv2), scale(e2, dv1)), r)
		b := scale(sub(scale(e2, du1), scale(e1, du2)), r)

		for k := 0; k < 3; k++ {
			tangents[c+k] = add(tangents[c+k], t)
			bitangents[c+k] = add(bitangents[c+k], b)
		}
	}

	return tangents, bitangents, skipped
}

// finalizeTangent Gram-Schmidt orthogonalizes t against n and encodes the
// bitangent direction as the w sign.
func finalizeTangent(t, b, n [3]float32) [4]float32 {
	tn, ok := Normalize(sub(t, scale(n, Dot(t, n))))
	if !ok {
		tn = perpendicular(n)
	}

	w := float32(-1)
	if Dot(Cross(tn, n), b) > 0 {
		w = 1
	}
	return [4]float32{tn[0], tn[1], tn[2], w}
}
