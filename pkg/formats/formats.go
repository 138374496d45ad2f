// Package formats provides parsers for the Wavefront geometry (.obj) and
// material (.mtl) text formats consumed by the cooker.
package formats

import (
	"errors"
	"strconv"
	"strings"
)

// Import errors.
var (
	// ErrOpenGeometry means the geometry file could not be opened; the asset fails.
	ErrOpenGeometry = errors.New("cannot open geometry file")
	// ErrNoGeometry means the geometry file produced no triangles; the asset fails.
	ErrNoGeometry = errors.New("geometry file contains no triangles")
	// ErrMissingMaterialLib means the material file is absent or unreadable.
	// Geometry is still usable; callers continue with zero materials.
	ErrMissingMaterialLib = errors.New("material library unavailable")
)

// splitKeyword splits a trimmed line into its leading keyword and the rest.
func splitKeyword(line string) (keyword, rest string) {
	idx := strings.IndexAny(line, " \t")
	if idx < 0 {
		return line, ""
	}
	return line[:idx], strings.TrimSpace(line[idx+1:])
}

// parseFloats parses exactly n leading whitespace-separated floats from s.
// Extra trailing fields (such as a vertex weight) are ignored.
func parseFloats(s string, n int) ([]float32, error) {
	fields := strings.Fields(s)
	if len(fields) < n {
		return nil, errors.New("expected " + strconv.Itoa(n) + " values, got " + strconv.Itoa(len(fields)))
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(v)
	}
	return out, nil
}

// normalizeSlashes converts backslash separators to forward slashes.
func normalizeSlashes(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}
