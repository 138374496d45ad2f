package cache

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/meshcook/internal/mesh"
	"github.com/Faultbox/meshcook/pkg/formats"
)

func sampleMesh() *mesh.Mesh {
	return &mesh.Mesh{
		Vertices: []mesh.Vertex{
			{Position: [3]float32{0, 0, 0}, Normal: [3]float32{0, 0, 1}, TexCoord: [2]float32{0, 1}, Tangent: [4]float32{1, 0, 0, 1}},
			{Position: [3]float32{1, 0, 0}, Normal: [3]float32{0, 0, 1}, TexCoord: [2]float32{1, 1}, Tangent: [4]float32{1, 0, 0, -1}},
			{Position: [3]float32{0, 1, 0}, Normal: [3]float32{0, 0, 1}, TexCoord: [2]float32{0, 0}, Tangent: [4]float32{1, 0, 0, 1}},
		},
		Indices:      []uint32{0, 1, 2},
		Groups:       []mesh.Group{{StartIndex: 0, IndexCount: 3, Material: "Stone"}},
		Bounds:       mesh.Bounds{Max: [3]float32{1, 1, 0}},
		Source:       "props/rock.obj",
		HasMaterials: true,
	}
}

func TestMeshBlob(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeMesh(&buf, sampleMesh()))
	assert.Equal(t, "CMSH", buf.String()[:4])

	got, err := DecodeMesh(buf.Bytes())
	require.NoError(t, err)

	want := sampleMesh()
	assert.Equal(t, want.Vertices, got.Vertices)
	assert.Equal(t, want.Indices, got.Indices)
	assert.Equal(t, want.Groups, got.Groups)
	assert.Equal(t, want.Bounds, got.Bounds)
	assert.Equal(t, want.Source, got.Source)
	assert.True(t, got.HasMaterials)
	assert.Empty(t, got.Materials)
}

func TestMaterialBlob(t *testing.T) {
	stone := formats.NewMaterial("Stone", formats.DefaultMTLOptions())
	stone.Specular = [3]float32{0.1, 0.2, 0.3}
	stone.Illum = 2
	stone.Textures[formats.TextureDiffuse] = "props/stone.png"
	stone.Textures[formats.TextureEmissive] = "props/stone_glow.tga"
	mats := []formats.Material{stone, formats.NewMaterial("", formats.MTLOptions{})}

	var buf bytes.Buffer
	require.NoError(t, EncodeMaterials(&buf, mats))

	got, err := DecodeMaterials(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, mats, got)
}

func TestDecode_Errors(t *testing.T) {
	var good bytes.Buffer
	require.NoError(t, EncodeMesh(&good, sampleMesh()))
	data := good.Bytes()

	badVersion := append([]byte(nil), data...)
	binary.LittleEndian.PutUint16(badVersion[4:], 9)

	hugeCount := append([]byte(nil), data[:4+4+6*4+1]...)
	hugeCount = append(hugeCount, 0, 0) // empty source string
	hugeCount = binary.LittleEndian.AppendUint32(hugeCount, 1<<30)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrTruncatedBlob},
		{"wrong magic", []byte("CMTL\x01\x00\x00\x00"), ErrInvalidMagic},
		{"future major version", badVersion, ErrUnsupportedVersion},
		{"truncated body", data[:len(data)-3], ErrTruncatedBlob},
		{"count beyond data", hugeCount, ErrTruncatedBlob},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := DecodeMesh(tt.data)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, m)
		})
	}

	_, err := DecodeMaterials(data)
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestVersionString(t *testing.T) {
	assert.Equal(t, "1.0", CurrentVersion.String())
}
