package formats

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/meshcook/internal/logger"
)

// maxLineSize bounds a single OBJ/MTL line; long face lines are legal.
const maxLineSize = 1 << 20

// OBJOptions controls coordinate conventions and path resolution during import.
type OBJOptions struct {
	// RightHanded negates Y on positions and normals and swaps the winding of
	// every emitted triangle so the result stays consistently wound.
	RightHanded bool
	// BaseDir resolves the mtllib reference. ParseOBJFile sets it to the
	// geometry file's directory.
	BaseDir string
}

// RawModel is an un-welded OBJ model: flat attribute pools plus one index
// triple per triangle corner.
type RawModel struct {
	Positions [][3]float32
	TexCoords [][2]float32 // V already flipped to a top-left origin
	Normals   [][3]float32

	// Parallel per-corner indices; length is always a multiple of 3.
	PosIndices  []uint32
	TexIndices  []uint32
	NormIndices []uint32

	// MaterialNames holds the usemtl name of every group ("" for the implicit group).
	MaterialNames []string
	// GroupStarts holds the first corner of every group plus a trailing
	// sentinel equal to the corner count.
	GroupStarts []int
	// GroupMaterials maps every group to a material index, -1 when the group
	// has none. Filled by ResolveGroupMaterials.
	GroupMaterials []int

	// MaterialLibs holds the resolved paths named by the first mtllib
	// directive, one per token. MaterialLib is the first of them.
	MaterialLibs []string
	MaterialLib  string
	HasMaterials bool
}

// CornerCount returns the number of triangle corners.
func (m *RawModel) CornerCount() int {
	return len(m.PosIndices)
}

// TriangleCount returns the number of triangles.
func (m *RawModel) TriangleCount() int {
	return len(m.PosIndices) / 3
}

// GroupCount returns the number of groups (excluding the sentinel).
func (m *RawModel) GroupCount() int {
	if len(m.GroupStarts) == 0 {
		return 0
	}
	return len(m.GroupStarts) - 1
}

// ParseOBJFile parses an OBJ file from disk. An unopenable file is fatal and
// reported as ErrOpenGeometry.
func ParseOBJFile(path string, opts OBJOptions) (*RawModel, error) {
	f, err := os.Open(path)
	if err != nil {
		logger.Named("obj").Error("cannot open geometry file", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %v", ErrOpenGeometry, path, err)
	}
	defer f.Close()

	if opts.BaseDir == "" {
		opts.BaseDir = filepath.Dir(path)
	}

	raw, err := ParseOBJ(f, opts)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return raw, nil
}

// ParseOBJ parses OBJ text. Only v, vt, vn, f, mtllib and usemtl are
// interpreted; every other directive (including g) is logged and skipped.
func ParseOBJ(r io.Reader, opts OBJOptions) (*RawModel, error) {
	p := &objParser{
		opts: opts,
		raw:  &RawModel{},
		log:  logger.Named("obj"),
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		p.line++
		p.parseLine(strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading OBJ line %d: %w", p.line, err)
	}

	if p.raw.CornerCount() == 0 {
		return nil, ErrNoGeometry
	}
	p.finish()

	return p.raw, nil
}

type objParser struct {
	opts OBJOptions
	raw  *RawModel
	log  *zap.Logger
	line int

	corner [][3]uint32 // scratch for the current face
}

func (p *objParser) parseLine(line string) {
	if line == "" || line[0] == '#' {
		return
	}

	keyword, rest := splitKeyword(line)
	switch keyword {
	case "v":
		v, err := parseFloats(rest, 3)
		if err != nil {
			p.skip("malformed position", err)
			return
		}
		if p.opts.RightHanded {
			v[1] = -v[1]
		}
		p.raw.Positions = append(p.raw.Positions, [3]float32{v[0], v[1], v[2]})
	case "vt":
		v, err := parseFloats(rest, 2)
		if err != nil {
			p.skip("malformed texcoord", err)
			return
		}
		p.raw.TexCoords = append(p.raw.TexCoords, [2]float32{v[0], 1 - v[1]})
	case "vn":
		v, err := parseFloats(rest, 3)
		if err != nil {
			p.skip("malformed normal", err)
			return
		}
		if p.opts.RightHanded {
			v[1] = -v[1]
		}
		p.raw.Normals = append(p.raw.Normals, [3]float32{v[0], v[1], v[2]})
	case "f":
		p.parseFace(rest)
	case "g":
		// Grouping follows usemtl boundaries instead.
	case "mtllib":
		if len(p.raw.MaterialLibs) > 0 {
			return
		}
		for _, tok := range strings.Fields(rest) {
			p.raw.MaterialLibs = append(p.raw.MaterialLibs, filepath.Join(p.opts.BaseDir, filepath.FromSlash(normalizeSlashes(tok))))
		}
		if len(p.raw.MaterialLibs) > 0 {
			p.raw.MaterialLib = p.raw.MaterialLibs[0]
			p.raw.HasMaterials = true
		}
	case "usemtl":
		p.raw.MaterialNames = append(p.raw.MaterialNames, rest)
		p.raw.GroupStarts = append(p.raw.GroupStarts, p.raw.CornerCount())
	default:
		p.log.Debug("ignoring directive", zap.Int("line", p.line), zap.String("directive", keyword))
	}
}

// parseFace fan-triangulates one polygon. Faces with a bad corner are
// dropped whole so the corner arrays never reference missing data.
func (p *objParser) parseFace(rest string) {
	tokens := strings.Fields(rest)
	if len(tokens) < 3 {
		p.skip("face needs at least 3 corners", fmt.Errorf("got %d", len(tokens)))
		return
	}

	p.corner = p.corner[:0]
	for _, tok := range tokens {
		c, err := p.parseCorner(tok)
		if err != nil {
			p.skip("malformed face corner "+strconv.Quote(tok), err)
			return
		}
		p.corner = append(p.corner, c)
	}

	for i := 1; i+1 < len(p.corner); i++ {
		if p.opts.RightHanded {
			p.emit(p.corner[0], p.corner[i+1], p.corner[i])
		} else {
			p.emit(p.corner[0], p.corner[i], p.corner[i+1])
		}
	}
}

func (p *objParser) emit(corners ...[3]uint32) {
	for _, c := range corners {
		p.raw.PosIndices = append(p.raw.PosIndices, c[0])
		p.raw.TexIndices = append(p.raw.TexIndices, c[1])
		p.raw.NormIndices = append(p.raw.NormIndices, c[2])
	}
}

// parseCorner parses "p", "p/t", "p//n" or "p/t/n" into 0-based indices.
// Absent texcoord/normal parts map to index 0, which always exists once
// finish has added placeholders.
func (p *objParser) parseCorner(tok string) ([3]uint32, error) {
	var out [3]uint32
	parts := strings.Split(tok, "/")
	if len(parts) > 3 {
		return out, fmt.Errorf("too many components")
	}

	counts := [3]int{len(p.raw.Positions), len(p.raw.TexCoords), len(p.raw.Normals)}
	for i := 0; i < 3; i++ {
		if i >= len(parts) || parts[i] == "" {
			if i == 0 {
				return out, fmt.Errorf("missing position index")
			}
			continue
		}
		idx, err := resolveIndex(parts[i], counts[i])
		if err != nil {
			if i == 0 || counts[i] > 0 {
				return out, err
			}
			// Channel has no records yet; fall through to the placeholder.
			continue
		}
		out[i] = idx
	}
	return out, nil
}

// resolveIndex converts a 1-based (or negative, relative) OBJ index to 0-based.
func resolveIndex(s string, count int) (uint32, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	switch {
	case n > 0:
		n--
	case n < 0:
		n += count
	default:
		return 0, fmt.Errorf("index 0 is invalid")
	}
	if n < 0 || n >= count {
		return 0, fmt.Errorf("index %s out of range (%d records)", s, count)
	}
	return uint32(n), nil
}

// finish closes the group table and adds channel placeholders.
func (p *objParser) finish() {
	raw := p.raw

	if len(raw.TexCoords) == 0 {
		raw.TexCoords = append(raw.TexCoords, [2]float32{})
	}
	if len(raw.Normals) == 0 {
		raw.Normals = append(raw.Normals, [3]float32{})
	}

	// Corners before the first usemtl (or a file without any) form an
	// implicit unnamed group. When the first usemtl starts at corner 0 no
	// empty leading group is kept.
	if len(raw.GroupStarts) == 0 || raw.GroupStarts[0] > 0 {
		raw.GroupStarts = append([]int{0}, raw.GroupStarts...)
		raw.MaterialNames = append([]string{""}, raw.MaterialNames...)
	}
	raw.GroupStarts = append(raw.GroupStarts, raw.CornerCount())
}

func (p *objParser) skip(reason string, err error) {
	p.log.Warn("skipping OBJ line", zap.Int("line", p.line), zap.String("reason", reason), zap.Error(err))
}

// ScanOBJDependencies returns the canonical, de-duplicated paths of every
// material library an OBJ file references (every token of every mtllib
// line), without parsing geometry.
func ScanOBJDependencies(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	baseDir := filepath.Dir(path)
	seen := make(map[string]bool)
	var deps []string

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "mtllib") {
			continue
		}
		keyword, rest := splitKeyword(line)
		if keyword != "mtllib" {
			continue
		}
		for _, tok := range strings.Fields(rest) {
			dep, err := filepath.Abs(filepath.Join(baseDir, filepath.FromSlash(normalizeSlashes(tok))))
			if err != nil {
				return nil, err
			}
			if !seen[dep] {
				seen[dep] = true
				deps = append(deps, dep)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return deps, nil
}
