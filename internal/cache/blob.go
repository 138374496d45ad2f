package cache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/Faultbox/meshcook/internal/mesh"
	"github.com/Faultbox/meshcook/pkg/formats"
)

// Blob format errors.
var (
	ErrInvalidMagic       = errors.New("invalid blob magic")
	ErrUnsupportedVersion = errors.New("unsupported blob version")
	ErrTruncatedBlob      = errors.New("truncated blob data")
)

const (
	meshMagic     = "CMSH"
	materialMagic = "CMTL"

	versionMajor uint16 = 1
	versionMinor uint16 = 0
)

// Version identifies the blob layout.
type Version struct {
	Major uint16
	Minor uint16
}

// String returns the version as "Major.Minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// CurrentVersion is the layout written by EncodeMesh and EncodeMaterials.
var CurrentVersion = Version{Major: versionMajor, Minor: versionMinor}

// vertexSize is the encoded size of one mesh.Vertex.
const vertexSize = (3 + 3 + 2 + 4) * 4

// EncodeMesh writes the vertex buffer, index buffer and group table of m.
func EncodeMesh(w io.Writer, m *mesh.Mesh) error {
	bw := &blobWriter{w: w}
	bw.header(meshMagic)

	bw.put(m.Bounds.Min)
	bw.put(m.Bounds.Max)
	bw.put(m.HasMaterials)
	bw.str(m.Source)

	bw.count(len(m.Vertices))
	bw.put(m.Vertices)
	bw.count(len(m.Indices))
	bw.put(m.Indices)

	bw.count(len(m.Groups))
	for _, g := range m.Groups {
		bw.put(g.StartIndex)
		bw.put(g.IndexCount)
		bw.str(g.Material)
	}
	return bw.err
}

// DecodeMesh reads a mesh blob. Materials are left empty; they live in the
// material blob.
func DecodeMesh(data []byte) (*mesh.Mesh, error) {
	br := newBlobReader(data)
	if err := br.header(meshMagic); err != nil {
		return nil, err
	}

	m := &mesh.Mesh{}
	br.get(&m.Bounds.Min)
	br.get(&m.Bounds.Max)
	br.get(&m.HasMaterials)
	m.Source = br.str()

	if n := br.count(vertexSize); n > 0 {
		m.Vertices = make([]mesh.Vertex, n)
		br.get(m.Vertices)
	}
	if n := br.count(4); n > 0 {
		m.Indices = make([]uint32, n)
		br.get(m.Indices)
	}

	if n := br.count(10); n > 0 {
		m.Groups = make([]mesh.Group, n)
		for i := range m.Groups {
			br.get(&m.Groups[i].StartIndex)
			br.get(&m.Groups[i].IndexCount)
			m.Groups[i].Material = br.str()
		}
	}

	if br.err != nil {
		return nil, fmt.Errorf("decoding mesh: %w", br.err)
	}
	return m, nil
}

// EncodeMaterials writes the material descriptor array.
func EncodeMaterials(w io.Writer, mats []formats.Material) error {
	bw := &blobWriter{w: w}
	bw.header(materialMagic)

	bw.count(len(mats))
	bw.put(uint8(formats.TextureSlotCount))
	for i := range mats {
		m := &mats[i]
		bw.str(m.Name)
		bw.put(m.Diffuse)
		bw.put(m.Ambient)
		bw.put(m.Emissive)
		bw.put(m.Specular)
		bw.put(m.Transmission)
		bw.put(m.Transparency)
		bw.put(m.OpticalDensity)
		bw.put(m.SpecularExponent)
		bw.put(m.Illum)
		bw.put(m.BumpMultiplier)
		for _, tex := range m.Textures {
			bw.str(tex)
		}
	}
	return bw.err
}

// DecodeMaterials reads a material blob.
func DecodeMaterials(data []byte) ([]formats.Material, error) {
	br := newBlobReader(data)
	if err := br.header(materialMagic); err != nil {
		return nil, err
	}

	n := br.count(2)
	var slots uint8
	br.get(&slots)
	if br.err == nil && int(slots) != int(formats.TextureSlotCount) {
		return nil, fmt.Errorf("%w: %d texture slots", ErrUnsupportedVersion, slots)
	}

	mats := make([]formats.Material, n)
	for i := range mats {
		m := &mats[i]
		m.Name = br.str()
		br.get(&m.Diffuse)
		br.get(&m.Ambient)
		br.get(&m.Emissive)
		br.get(&m.Specular)
		br.get(&m.Transmission)
		br.get(&m.Transparency)
		br.get(&m.OpticalDensity)
		br.get(&m.SpecularExponent)
		br.get(&m.Illum)
		br.get(&m.BumpMultiplier)
		for s := range m.Textures {
			m.Textures[s] = br.str()
		}
		if br.err != nil {
			break
		}
	}

	if br.err != nil {
		return nil, fmt.Errorf("decoding materials: %w", br.err)
	}
	return mats, nil
}

// blobWriter keeps the first write error so encoders stay linear.
type blobWriter struct {
	w   io.Writer
	err error
}

func (bw *blobWriter) put(v any) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, v)
}

func (bw *blobWriter) header(magic string) {
	if bw.err == nil {
		_, bw.err = io.WriteString(bw.w, magic)
	}
	bw.put(versionMajor)
	bw.put(versionMinor)
}

func (bw *blobWriter) count(n int) {
	if uint64(n) > math.MaxUint32 && bw.err == nil {
		bw.err = fmt.Errorf("count %d does not fit the blob layout", n)
		return
	}
	bw.put(uint32(n))
}

func (bw *blobWriter) str(s string) {
	if len(s) > math.MaxUint16 && bw.err == nil {
		bw.err = fmt.Errorf("string of %d bytes does not fit the blob layout", len(s))
		return
	}
	bw.put(uint16(len(s)))
	if bw.err == nil {
		_, bw.err = io.WriteString(bw.w, s)
	}
}

// blobReader keeps the first read error; later reads are no-ops.
type blobReader struct {
	r   *bytes.Reader
	err error
}

func newBlobReader(data []byte) *blobReader {
	return &blobReader{r: bytes.NewReader(data)}
}

func (br *blobReader) get(v any) {
	if br.err != nil {
		return
	}
	if err := binary.Read(br.r, binary.LittleEndian, v); err != nil {
		br.err = ErrTruncatedBlob
	}
}

func (br *blobReader) header(magic string) error {
	head := make([]byte, len(magic))
	if _, err := io.ReadFull(br.r, head); err != nil {
		return ErrTruncatedBlob
	}
	if string(head) != magic {
		return fmt.Errorf("%w: expected %q, got %q", ErrInvalidMagic, magic, head)
	}

	var v Version
	br.get(&v.Major)
	br.get(&v.Minor)
	if br.err != nil {
		return br.err
	}
	if v.Major != versionMajor {
		return fmt.Errorf("%w: %s", ErrUnsupportedVersion, v)
	}
	return nil
}

// count reads an element count and rejects counts that cannot fit in the
// remaining data given the minimum element size.
func (br *blobReader) count(minSize int) int {
	var n uint32
	br.get(&n)
	if br.err != nil {
		return 0
	}
	if uint64(n)*uint64(minSize) > uint64(br.r.Len()) {
		br.err = ErrTruncatedBlob
		return 0
	}
	return int(n)
}

func (br *blobReader) str() string {
	var n uint16
	br.get(&n)
	if br.err != nil {
		return ""
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(br.r, buf); err != nil {
		br.err = ErrTruncatedBlob
		return ""
	}
	return string(buf)
}
