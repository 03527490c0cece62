package turntable

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
)

const (
	glbMagic      = 0x46546C67 // "glTF"
	chunkTypeJSON = 0x4E4F534A
	chunkTypeBIN  = 0x004E4942

	componentFloat = 5126
)

// Mesh holds the vertex positions extracted from a binary glTF container.
// Triangles and materials are not needed for the point-cloud turntable.
type Mesh struct {
	Vertices [][3]float64
}

type gltfDocument struct {
	Meshes []struct {
		Primitives []struct {
			Attributes map[string]int `json:"attributes"`
		} `json:"primitives"`
	} `json:"meshes"`
	Accessors []struct {
		BufferView    int    `json:"bufferView"`
		ByteOffset    int    `json:"byteOffset"`
		ComponentType int    `json:"componentType"`
		Count         int    `json:"count"`
		Type          string `json:"type"`
	} `json:"accessors"`
	BufferViews []struct {
		Buffer     int `json:"buffer"`
		ByteOffset int `json:"byteOffset"`
		ByteLength int `json:"byteLength"`
		ByteStride int `json:"byteStride"`
	} `json:"bufferViews"`
}

// LoadMesh reads the GLB at path and collects every POSITION attribute
// across all mesh primitives.
func LoadMesh(path string) (*Mesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("turntable: read model: %w", err)
	}
	jsonChunk, binChunk, err := splitChunks(data)
	if err != nil {
		return nil, err
	}

	var doc gltfDocument
	if err := json.Unmarshal(jsonChunk, &doc); err != nil {
		return nil, fmt.Errorf("turntable: decode gltf json: %w", err)
	}

	mesh := &Mesh{}
	for _, m := range doc.Meshes {
		for _, prim := range m.Primitives {
			idx, ok := prim.Attributes["POSITION"]
			if !ok {
				continue
			}
			verts, err := readPositions(&doc, binChunk, idx)
			if err != nil {
				return nil, err
			}
			mesh.Vertices = append(mesh.Vertices, verts...)
		}
	}
	if len(mesh.Vertices) == 0 {
		return nil, fmt.Errorf("turntable: model has no position data")
	}
	return mesh, nil
}

func splitChunks(data []byte) (jsonChunk, binChunk []byte, err error) {
	if len(data) < 12 {
		return nil, nil, fmt.Errorf("turntable: truncated glb header")
	}
	if binary.LittleEndian.Uint32(data[0:4]) != glbMagic {
		return nil, nil, fmt.Errorf("turntable: not a glb file")
	}
	total := binary.LittleEndian.Uint32(data[8:12])
	if int(total) > len(data) {
		return nil, nil, fmt.Errorf("turntable: glb shorter than declared length")
	}

	offset := 12
	for offset+8 <= int(total) {
		length := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
		chunkType := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		offset += 8
		if offset+length > int(total) {
			return nil, nil, fmt.Errorf("turntable: truncated glb chunk")
		}
		chunk := data[offset : offset+length]
		switch chunkType {
		case chunkTypeJSON:
			jsonChunk = chunk
		case chunkTypeBIN:
			binChunk = chunk
		}
		offset += length
	}
	if jsonChunk == nil {
		return nil, nil, fmt.Errorf("turntable: glb missing json chunk")
	}
	return jsonChunk, binChunk, nil
}

func readPositions(doc *gltfDocument, bin []byte, accessorIdx int) ([][3]float64, error) {
	if accessorIdx < 0 || accessorIdx >= len(doc.Accessors) {
		return nil, fmt.Errorf("turntable: accessor %d out of range", accessorIdx)
	}
	acc := doc.Accessors[accessorIdx]
	if acc.ComponentType != componentFloat || acc.Type != "VEC3" {
		return nil, fmt.Errorf("turntable: unsupported position accessor (componentType=%d type=%s)", acc.ComponentType, acc.Type)
	}
	if acc.BufferView < 0 || acc.BufferView >= len(doc.BufferViews) {
		return nil, fmt.Errorf("turntable: buffer view %d out of range", acc.BufferView)
	}
	view := doc.BufferViews[acc.BufferView]
	stride := view.ByteStride
	if stride == 0 {
		stride = 12
	}

	verts := make([][3]float64, 0, acc.Count)
	base := view.ByteOffset + acc.ByteOffset
	for i := 0; i < acc.Count; i++ {
		off := base + i*stride
		if off+12 > len(bin) {
			return nil, fmt.Errorf("turntable: position data out of bounds at vertex %d", i)
		}
		verts = append(verts, [3]float64{
			float64(math.Float32frombits(binary.LittleEndian.Uint32(bin[off : off+4]))),
			float64(math.Float32frombits(binary.LittleEndian.Uint32(bin[off+4 : off+8]))),
			float64(math.Float32frombits(binary.LittleEndian.Uint32(bin[off+8 : off+12]))),
		})
	}
	return verts, nil
}
