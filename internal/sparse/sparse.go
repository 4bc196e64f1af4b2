// Package sparse reads and writes the Android sparse image format: a
// 28-byte file header followed by chunks, each a 12-byte header plus
// type-dependent data. All multi-byte fields are little-endian.
package sparse

import "encoding/binary"

// 4-byte magic constant at the start of each image, little-endian
const Magic uint32 = 0xed26ff3a

const (
	FileHeaderSize  = 28
	ChunkHeaderSize = 12

	// Block size used when generating images from raw input
	DefaultBlockSize uint32 = 4096
)

var le = binary.LittleEndian

// Chunk type
type ChunkType uint16

const (
	ChunkRaw      ChunkType = 0xcac1 // header followed by chunk_size * block_size data bytes
	ChunkFill     ChunkType = 0xcac2 // header followed by a 4-byte fill pattern
	ChunkDontCare ChunkType = 0xcac3 // header only, output blocks hold arbitrary content
	ChunkCrc32    ChunkType = 0xcac4 // header followed by a 4-byte crc32 of the expanded image
)

func (t ChunkType) String() string {
	switch t {
	case ChunkRaw:
		return "RAW"
	case ChunkFill:
		return "FILL"
	case ChunkDontCare:
		return "DONT_CARE"
	case ChunkCrc32:
		return "CRC32"
	default:
		return "UNKNOWN"
	}
}
