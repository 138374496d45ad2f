package formats

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/meshcook/internal/logger"
)

// TextureSlot identifies one of the texture references a material can carry.
type TextureSlot int

const (
	TextureDiffuse          TextureSlot = iota // map_Kd
	TextureNormal                              // map_Bump / bump
	TextureTransparency                        // map_d
	TextureAmbient                             // map_Ka
	TextureSpecular                            // map_Ks
	TextureSpecularExponent                    // map_Ns
	TextureEmissive                            // map_Ke
	TextureSlotCount
)

// String returns the MTL directive for the slot.
func (s TextureSlot) String() string {
	switch s {
	case TextureDiffuse:
		return "map_Kd"
	case TextureNormal:
		return "map_Bump"
	case TextureTransparency:
		return "map_d"
	case TextureAmbient:
		return "map_Ka"
	case TextureSpecular:
		return "map_Ks"
	case TextureSpecularExponent:
		return "map_Ns"
	case TextureEmissive:
		return "map_Ke"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// textureDirectives maps lowercased texture directives to their slot.
var textureDirectives = map[string]TextureSlot{
	"map_kd":   TextureDiffuse,
	"map_bump": TextureNormal,
	"bump":     TextureNormal,
	"map_d":    TextureTransparency,
	"map_ka":   TextureAmbient,
	"map_ks":   TextureSpecular,
	"map_ns":   TextureSpecularExponent,
	"map_ke":   TextureEmissive,
}

// Material is one newmtl block of an MTL file.
type Material struct {
	Name string

	Diffuse      [3]float32 // Kd
	Ambient      [3]float32 // Ka
	Emissive     [3]float32 // Ke
	Specular     [3]float32 // Ks
	Transmission [3]float32 // Tf

	Transparency     float32 // 0 = opaque; Tr directly, d as 1-d
	OpticalDensity   float32 // Ni
	SpecularExponent float32 // Ns
	Illum            int32
	BumpMultiplier   float32 // -bm on map_Bump

	// Textures holds one path per TextureSlot, "" when unset. Paths use
	// forward slashes and are relative until resolved against the asset dir.
	Textures [TextureSlotCount]string
}

// Texture returns the texture path stored in a slot.
func (m *Material) Texture(slot TextureSlot) string {
	if slot < 0 || slot >= TextureSlotCount {
		return ""
	}
	return m.Textures[slot]
}

// MTLOptions holds fallbacks used when option values are malformed.
type MTLOptions struct {
	DefaultBumpMultiplier float32
}

// DefaultMTLOptions returns the standard fallbacks.
func DefaultMTLOptions() MTLOptions {
	return MTLOptions{DefaultBumpMultiplier: 1.0}
}

// NewMaterial returns a material with the given name and neutral defaults.
func NewMaterial(name string, opts MTLOptions) Material {
	return Material{
		Name:           name,
		Diffuse:        [3]float32{1, 1, 1},
		OpticalDensity: 1,
		BumpMultiplier: opts.DefaultBumpMultiplier,
	}
}

// ParseMTLFile parses an MTL file from disk. A missing or unreadable file is
// reported as ErrMissingMaterialLib.
func ParseMTLFile(path string, opts MTLOptions) ([]Material, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingMaterialLib, path, err)
	}
	defer f.Close()

	mats, err := ParseMTL(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingMaterialLib, path, err)
	}
	return mats, nil
}

// ParseMTL parses MTL text into materials in file order. Malformed lines are
// logged and skipped; only read errors fail the parse.
func ParseMTL(r io.Reader, opts MTLOptions) ([]Material, error) {
	log := logger.Named("mtl")

	var mats []Material
	var cur *Material
	names := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}

		keyword, rest := splitKeyword(line)
		if keyword == "newmtl" {
			if names[rest] {
				log.Warn("duplicate material name", zap.Int("line", lineNo), zap.String("name", rest))
			}
			names[rest] = true
			mats = append(mats, NewMaterial(rest, opts))
			cur = &mats[len(mats)-1]
			continue
		}
		if cur == nil {
			log.Debug("attribute before newmtl", zap.Int("line", lineNo), zap.String("directive", keyword))
			continue
		}

		if err := applyMaterialLine(cur, keyword, rest, opts, log); err != nil {
			log.Warn("skipping MTL line", zap.Int("line", lineNo), zap.String("directive", keyword), zap.Error(err))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading MTL line %d: %w", lineNo, err)
	}

	return mats, nil
}

func applyMaterialLine(m *Material, keyword, rest string, opts MTLOptions, log *zap.Logger) error {
	switch keyword {
	case "Kd":
		return parseColor(&m.Diffuse, rest)
	case "Ka":
		return parseColor(&m.Ambient, rest)
	case "Ke":
		return parseColor(&m.Emissive, rest)
	case "Ks":
		return parseColor(&m.Specular, rest)
	case "Tf":
		return parseColor(&m.Transmission, rest)
	case "Tr":
		return parseScalar(&m.Transparency, rest, func(v float32) float32 { return v })
	case "d":
		return parseScalar(&m.Transparency, rest, func(v float32) float32 { return 1 - v })
	case "Ni":
		return parseScalar(&m.OpticalDensity, rest, nil)
	case "Ns":
		return parseScalar(&m.SpecularExponent, rest, nil)
	case "illum":
		v, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return err
		}
		m.Illum = int32(v)
		return nil
	}

	slot, ok := textureDirectives[strings.ToLower(keyword)]
	if !ok {
		log.Debug("ignoring directive", zap.String("directive", keyword))
		return nil
	}
	return parseTextureMap(m, slot, rest, opts, log)
}

// parseTextureMap reads "[options...] path". Only -bm is interpreted, and
// only for the bump slot.
func parseTextureMap(m *Material, slot TextureSlot, rest string, opts MTLOptions, log *zap.Logger) error {
	tokens := strings.Fields(rest)
	if len(tokens) == 0 {
		return fmt.Errorf("%s without a texture path", slot)
	}

	m.Textures[slot] = normalizeSlashes(tokens[len(tokens)-1])

	options := tokens[:len(tokens)-1]
	for i := 0; i < len(options); i++ {
		if options[i] != "-bm" {
			continue
		}
		if slot != TextureNormal {
			log.Debug("ignoring -bm on non-bump map", zap.Stringer("slot", slot))
			continue
		}
		m.BumpMultiplier = opts.DefaultBumpMultiplier
		if i+1 >= len(options) {
			log.Debug("-bm without a value, using default", zap.Float32("default", opts.DefaultBumpMultiplier))
			continue
		}
		v, err := strconv.ParseFloat(options[i+1], 32)
		if err != nil {
			log.Debug("malformed -bm value, using default", zap.String("value", options[i+1]))
			continue
		}
		m.BumpMultiplier = float32(v)
		i++
	}
	return nil
}

func parseColor(dst *[3]float32, rest string) error {
	v, err := parseFloats(rest, 3)
	if err != nil {
		return err
	}
	*dst = [3]float32{v[0], v[1], v[2]}
	return nil
}

func parseScalar(dst *float32, rest string, conv func(float32) float32) error {
	v, err := parseFloats(rest, 1)
	if err != nil {
		return err
	}
	if conv != nil {
		v[0] = conv(v[0])
	}
	*dst = v[0]
	return nil
}

// ResolveGroupMaterials fills raw.GroupMaterials by exact name match.
// Unmatched groups fall back to material 0 when any material exists and to
// -1 (no material) otherwise.
func ResolveGroupMaterials(raw *RawModel, mats []Material) {
	index := make(map[string]int, len(mats))
	for i := range mats {
		if _, dup := index[mats[i].Name]; !dup {
			index[mats[i].Name] = i
		}
	}

	raw.GroupMaterials = make([]int, raw.GroupCount())
	for g := range raw.GroupMaterials {
		idx, ok := index[raw.MaterialNames[g]]
		switch {
		case ok:
			raw.GroupMaterials[g] = idx
		case len(mats) > 0:
			raw.GroupMaterials[g] = 0
		default:
			raw.GroupMaterials[g] = -1
		}
	}
}
