package mesh

import "github.com/chewxy/math32"

// Cross computes the cross product of two 3D vectors.
func Cross(a, b [3]float32) [3]float32 {
	return [3]float32{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// Dot computes the dot product of two 3D vectors.
func Dot(a, b [3]float32) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func add(a, b [3]float32) [3]float32 {
	return [3]float32{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

func sub(a, b [3]float32) [3]float32 {
	return [3]float32{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func scale(v [3]float32, s float32) [3]float32 {
	return [3]float32{v[0] * s, v[1] * s, v[2] * s}
}

// Normalize returns a unit vector in the same direction as v. ok is false
// when v is too short to have a direction.
func Normalize(v [3]float32) (n [3]float32, ok bool) {
	length := math32.Sqrt(Dot(v, v))
	if length < 1e-12 {
		return [3]float32{}, false
	}
	return [3]float32{v[0] / length, v[1] / length, v[2] / length}, true
}

// perpendicular returns some unit vector orthogonal to n.
func perpendicular(n [3]float32) [3]float32 {
	axis := [3]float32{1, 0, 0}
	if math32.Abs(n[0]) > math32.Abs(n[1]) && math32.Abs(n[0]) > math32.Abs(n[2]) {
		axis = [3]float32{0, 1, 0}
	}
	p, ok := Normalize(Cross(n, axis))
	if !ok {
		return [3]float32{1, 0, 0}
	}
	return p
}

func updateBounds(b *Bounds, p [3]float32) {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] {
			b.Min[i] = p[i]
		}
		if p[i] > b.Max[i] {
			b.Max[i] = p[i]
		}
	}
}
