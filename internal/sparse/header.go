package sparse

import "fmt"

// File header common to every sparse image
type FileHeader struct {
	BlockSize uint32 // block size in bytes, a multiple of 4
	Blocks    uint32 // number of blocks in the expanded image
	Chunks    uint32 // number of chunks in the sparse image
	Checksum  uint32 // optional crc32 checksum of the expanded image
}

// UnmarshalFileHeader parses raw bytes into a FileHeader struct
func UnmarshalFileHeader(data []byte) (*FileHeader, error) {
	if len(data) < FileHeaderSize {
		return nil, ErrShortHeader
	}

	if le.Uint32(data[0:4]) != Magic {
		return nil, ErrUnknownMagic
	}

	if major := le.Uint16(data[4:6]); major != 1 {
		return nil, ErrUnsupportedVersion
	}
	if minor := le.Uint16(data[6:8]); minor != 0 {
		return nil, ErrUnsupportedVersion
	}

	if le.Uint16(data[8:10]) != FileHeaderSize {
		return nil, ErrHeaderSize
	}
	if le.Uint16(data[10:12]) != ChunkHeaderSize {
		return nil, ErrHeaderSize
	}

	var header FileHeader
	header.BlockSize = le.Uint32(data[12:16])
	header.Blocks = le.Uint32(data[16:20])
	header.Chunks = le.Uint32(data[20:24])
	header.Checksum = le.Uint32(data[24:28])

	return &header, nil
}

func (h *FileHeader) Marshal() []byte {
	buf := make([]byte, FileHeaderSize)

	le.PutUint32(buf[0:4], Magic)
	// Version 1.0
	le.PutUint16(buf[4:6], 1)
	le.PutUint16(buf[6:8], 0)
	le.PutUint16(buf[8:10], FileHeaderSize)
	le.PutUint16(buf[10:12], ChunkHeaderSize)
	le.PutUint32(buf[12:16], h.BlockSize)
	le.PutUint32(buf[16:20], h.Blocks)
	le.PutUint32(buf[20:24], h.Chunks)
	le.PutUint32(buf[24:28], h.Checksum)

	return buf
}

// TotalSize is the size of the expanded image in bytes
func (h *FileHeader) TotalSize() int64 {
	return int64(h.Blocks) * int64(h.BlockSize)
}

// Header of a single chunk
type ChunkHeader struct {
	Type      ChunkType // chunk type
	ChunkSize uint32    // output size of the chunk in blocks
	TotalSize uint32    // size of the chunk in the sparse image, header included
}

// NewRawChunk builds a raw chunk header covering blocks of block_size bytes.
// The chunk data follows the header in the image.
func NewRawChunk(blocks, blockSize uint32) ChunkHeader {
	return ChunkHeader{
		Type:      ChunkRaw,
		ChunkSize: blocks,
		TotalSize: ChunkHeaderSize + blocks*blockSize,
	}
}

// NewFillChunk builds a fill chunk header covering blocks. The 4-byte fill
// pattern follows the header in the image.
func NewFillChunk(blocks uint32) ChunkHeader {
	return ChunkHeader{
		Type:      ChunkFill,
		ChunkSize: blocks,
		TotalSize: ChunkHeaderSize + 4,
	}
}

// NewDontCareChunk builds a don't-care chunk header covering blocks. No data
// follows the header.
func NewDontCareChunk(blocks uint32) ChunkHeader {
	return ChunkHeader{
		Type:      ChunkDontCare,
		ChunkSize: blocks,
		TotalSize: ChunkHeaderSize,
	}
}

// UnmarshalChunkHeader parses raw bytes into a ChunkHeader struct
func UnmarshalChunkHeader(data []byte) (*ChunkHeader, error) {
	if len(data) < ChunkHeaderSize {
		return nil, ErrShortHeader
	}

	var header ChunkHeader

	header.Type = ChunkType(le.Uint16(data[0:2]))
	switch header.Type {
	case ChunkRaw, ChunkFill, ChunkDontCare, ChunkCrc32:
		// Supported chunk types
	default:
		return nil, ErrUnknownChunkType
	}

	// data[2:4] is reserved
	header.ChunkSize = le.Uint32(data[4:8])
	header.TotalSize = le.Uint32(data[8:12])

	return &header, nil
}

func (h *ChunkHeader) Marshal() ([]byte, error) {
	switch h.Type {
	case ChunkRaw, ChunkFill, ChunkDontCare, ChunkCrc32:
	default:
		return nil, ErrUnknownChunkType
	}

	buf := make([]byte, ChunkHeaderSize)
	le.PutUint16(buf[0:2], uint16(h.Type))
	le.PutUint16(buf[2:4], 0)
	le.PutUint32(buf[4:8], h.ChunkSize)
	le.PutUint32(buf[8:12], h.TotalSize)
	return buf, nil
}

// DataSize is the number of data bytes following the header in the image
func (h *ChunkHeader) DataSize() int64 {
	if h.TotalSize < ChunkHeaderSize {
		return 0
	}
	return int64(h.TotalSize) - ChunkHeaderSize
}

// OutSize is the size this chunk expands to in the output
func (h *ChunkHeader) OutSize(header *FileHeader) int64 {
	return int64(h.ChunkSize) * int64(header.BlockSize)
}

// Validate checks the data size against what the chunk type requires: raw
// chunks carry one block_size worth of data per block, fill and crc32 chunks
// carry exactly 4 bytes, don't-care chunks carry none.
func (h *ChunkHeader) Validate(blockSize uint32) error {
	if h.TotalSize < ChunkHeaderSize {
		return fmt.Errorf("%w: total size %d below header size", ErrChunkSize, h.TotalSize)
	}

	data := h.DataSize()
	var want int64
	switch h.Type {
	case ChunkRaw:
		want = int64(h.ChunkSize) * int64(blockSize)
	case ChunkFill, ChunkCrc32:
		want = 4
	case ChunkDontCare:
		want = 0
	default:
		return ErrUnknownChunkType
	}

	if data != want {
		return fmt.Errorf("%w: %s chunk carries %d data bytes, want %d", ErrChunkSize, h.Type, data, want)
	}
	return nil
}
