package sparse

import (
	"fmt"
	"io"
)

// SplitChunk is one chunk of a split image: the header to emit, followed by
// Size bytes copied from the source image starting at Offset.
type SplitChunk struct {
	Header ChunkHeader
	Offset int64 // offset of the chunk data in the source image
	Size   int64 // bytes to copy from the source image
}

// Split is one part of a split image: a file header and the chunks behind
// it. Each part after the first opens with a don't-care chunk seeking past
// the blocks earlier parts already covered.
type Split struct {
	Header FileHeader
	Chunks []SplitChunk
}

// SparseSize is the encoded size of this part in bytes
func (s *Split) SparseSize() int64 {
	size := int64(FileHeaderSize)
	for _, c := range s.Chunks {
		size += int64(c.Header.TotalSize)
	}
	return size
}

type splitBuilder struct {
	space     uint32
	blockSize uint32
	chunks    []SplitChunk
}

func newSplitBuilder(blockSize, space, blocksOffset uint32) *splitBuilder {
	space -= FileHeaderSize

	var chunks []SplitChunk
	if blocksOffset > 0 {
		// Seek to the offset first
		header := NewDontCareChunk(blocksOffset)
		space -= header.TotalSize
		chunks = []SplitChunk{{Header: header}}
	}

	return &splitBuilder{
		space:     space,
		blockSize: blockSize,
		chunks:    chunks,
	}
}

func (b *splitBuilder) tryAddChunk(header ChunkHeader, imageOffset int64) bool {
	if b.space <= header.TotalSize {
		return false
	}

	b.chunks = append(b.chunks, SplitChunk{
		Header: header,
		Offset: imageOffset,
		Size:   header.DataSize(),
	})
	b.space -= header.TotalSize
	return true
}

// addRaw adds as much raw data as fits, returning the blocks taken up
func (b *splitBuilder) addRaw(imageOffset int64, blocks uint32) uint32 {
	var left uint32
	if b.space > ChunkHeaderSize {
		left = b.space - ChunkHeaderSize
	}
	blocksLeft := left / b.blockSize
	if blocksLeft == 0 {
		return 0
	}

	if blocks > blocksLeft {
		blocks = blocksLeft
	}
	header := NewRawChunk(blocks, b.blockSize)
	b.space -= header.TotalSize

	b.chunks = append(b.chunks, SplitChunk{
		Header: header,
		Offset: imageOffset,
		Size:   header.DataSize(),
	})
	return blocks
}

func (b *splitBuilder) finish() Split {
	var blocks uint32
	for _, c := range b.chunks {
		blocks += c.Header.ChunkSize
	}

	return Split{
		Header: FileHeader{
			BlockSize: b.blockSize,
			Blocks:    blocks,
			Chunks:    uint32(len(b.chunks)),
		},
		Chunks: b.chunks,
	}
}

// The split size must at least fit a file header, a chunk header for the
// initial don't-care seek, and a chunk header plus one block of raw data.
func checkMinimalSize(size, blockSize uint32) error {
	if size < FileHeaderSize+2*ChunkHeaderSize+blockSize {
		return ErrSplitTooSmall
	}
	return nil
}

// SplitImage splits an existing sparse image, given its file header and
// chunk headers in order, into parts each encoding to at most size bytes.
// Chunk data offsets refer to the source sparse image.
func SplitImage(header *FileHeader, chunks []ChunkHeader, size uint32) ([]Split, error) {
	if err := checkMinimalSize(size, header.BlockSize); err != nil {
		return nil, err
	}

	var (
		blockOffset uint32 // output offset in blocks
		splits      []Split
	)
	// Start of the first data area, after the initial file and chunk header
	imageOffset := int64(FileHeaderSize + ChunkHeaderSize)
	builder := newSplitBuilder(header.BlockSize, size, 0)

	for _, chunk := range chunks {
		if !builder.tryAddChunk(chunk, imageOffset) {
			if chunk.Type == ChunkRaw {
				// Pack partial raw chunks until all blocks are placed
				var blocks uint32
				for {
					blocks += builder.addRaw(
						imageOffset+int64(blocks)*int64(header.BlockSize),
						chunk.ChunkSize-blocks,
					)
					if blocks >= chunk.ChunkSize {
						break
					}
					splits = append(splits, builder.finish())
					builder = newSplitBuilder(header.BlockSize, size, blockOffset+blocks)
				}
			} else {
				splits = append(splits, builder.finish())
				builder = newSplitBuilder(header.BlockSize, size, blockOffset)
				if !builder.tryAddChunk(chunk, imageOffset) {
					return nil, ErrSplitTooSmall
				}
			}
		}

		blockOffset += chunk.ChunkSize
		imageOffset += int64(chunk.TotalSize)
	}

	splits = append(splits, builder.finish())
	return splits, nil
}

// SplitRaw builds parts for a raw image of rawSize bytes, each encoding to
// at most size bytes. The raw size is rounded up to a multiple of
// DefaultBlockSize; WriteSplit pads reads past the end of the source with
// zeros accordingly.
func SplitRaw(rawSize int64, size uint32) ([]Split, error) {
	if err := checkMinimalSize(size, DefaultBlockSize); err != nil {
		return nil, err
	}
	rawBlocks := uint32((rawSize + int64(DefaultBlockSize) - 1) / int64(DefaultBlockSize))

	var (
		blockOffset uint32
		splits      []Split
	)
	for rawBlocks > blockOffset {
		builder := newSplitBuilder(DefaultBlockSize, size, blockOffset)
		blockOffset += builder.addRaw(
			int64(blockOffset)*int64(DefaultBlockSize),
			rawBlocks-blockOffset,
		)
		splits = append(splits, builder.finish())
	}
	return splits, nil
}

// WriteSplit encodes one part to w, copying chunk data from src. Reads past
// the end of src come back as zeros, which pads raw images that end short
// of a block boundary.
func WriteSplit(w io.Writer, src io.ReaderAt, s *Split) (int64, error) {
	cw := &countWriter{w: w}

	if _, err := cw.Write(s.Header.Marshal()); err != nil {
		return cw.n, err
	}

	var pad []byte
	for _, chunk := range s.Chunks {
		buf, err := chunk.Header.Marshal()
		if err != nil {
			return cw.n, err
		}
		if _, err := cw.Write(buf); err != nil {
			return cw.n, err
		}
		if chunk.Size == 0 {
			continue
		}

		sec := io.NewSectionReader(src, chunk.Offset, chunk.Size)
		n, err := io.Copy(cw, sec)
		if err != nil {
			return cw.n, fmt.Errorf("failed to copy chunk data: %w", err)
		}
		if n < chunk.Size {
			if pad == nil {
				pad = make([]byte, expandBufSize)
			}
			if _, err := writeRepeated(cw, pad, chunk.Size-n); err != nil {
				return cw.n, err
			}
		}
	}
	return cw.n, nil
}
