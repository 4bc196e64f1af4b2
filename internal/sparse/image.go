package sparse

import (
	"bytes"
	"fmt"
	"io"
)

// Chunk is one chunk of an in-memory image: its header plus the data bytes
// that follow it in the encoded form. Data is nil for don't-care chunks and
// holds the 4-byte pattern for fill chunks.
type Chunk struct {
	Header ChunkHeader
	Data   []byte
}

// Image is a sparse image held in memory
type Image struct {
	Header FileHeader
	Chunks []Chunk
}

// SparseSize is the encoded size of the image in bytes
func (img *Image) SparseSize() int64 {
	size := int64(FileHeaderSize)
	for _, c := range img.Chunks {
		size += int64(c.Header.TotalSize)
	}
	return size
}

// WriteTo encodes the image to w
func (img *Image) WriteTo(w io.Writer) (int64, error) {
	cw := &countWriter{w: w}

	enc, err := NewEncoder(cw, img.Header)
	if err != nil {
		return cw.n, err
	}
	for _, c := range img.Chunks {
		if err := enc.WriteChunk(c.Header, c.Data); err != nil {
			return cw.n, err
		}
	}
	return cw.n, enc.Close()
}

// FromRaw converts a raw image into a sparse one, turning maximal runs of
// zero blocks into don't-care chunks and maximal runs of blocks holding one
// repeating 4-byte pattern into fill chunks. Input that does not end on a
// block boundary is padded with zeros.
func FromRaw(raw []byte, blockSize uint32) (*Image, error) {
	if blockSize == 0 || blockSize%4 != 0 {
		return nil, ErrBlockSize
	}

	bs := int(blockSize)
	blocks := (len(raw) + bs - 1) / bs
	if len(raw) != blocks*bs {
		padded := make([]byte, blocks*bs)
		copy(padded, raw)
		raw = padded
	}

	img := &Image{
		Header: FileHeader{
			BlockSize: blockSize,
			Blocks:    uint32(blocks),
		},
	}

	for start := 0; start < blocks; {
		kind, pattern := classifyBlock(raw[start*bs : (start+1)*bs])

		// Extend the run while the block class (and fill pattern) match
		end := start + 1
		for end < blocks {
			k, p := classifyBlock(raw[end*bs : (end+1)*bs])
			if k != kind || (kind == ChunkFill && p != pattern) {
				break
			}
			end++
		}

		n := uint32(end - start)
		switch kind {
		case ChunkDontCare:
			img.Chunks = append(img.Chunks, Chunk{Header: NewDontCareChunk(n)})
		case ChunkFill:
			img.Chunks = append(img.Chunks, Chunk{
				Header: NewFillChunk(n),
				Data:   append([]byte(nil), pattern[:]...),
			})
		default:
			img.Chunks = append(img.Chunks, Chunk{
				Header: NewRawChunk(n, blockSize),
				Data:   raw[start*bs : end*bs],
			})
		}
		start = end
	}

	img.Header.Chunks = uint32(len(img.Chunks))
	return img, nil
}

// classifyBlock decides how one block encodes: all zeros becomes don't-care,
// one repeating 4-byte pattern becomes fill, anything else stays raw.
func classifyBlock(block []byte) (ChunkType, [4]byte) {
	var pattern [4]byte
	copy(pattern[:], block[0:4])

	fill := true
	for i := 4; i < len(block); i += 4 {
		if !bytes.Equal(block[i:i+4], pattern[:]) {
			fill = false
			break
		}
	}
	if !fill {
		return ChunkRaw, pattern
	}
	if pattern == [4]byte{} {
		return ChunkDontCare, pattern
	}
	return ChunkFill, pattern
}

type countWriter struct {
	w io.Writer
	n int64
}

func (cw *countWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	if err != nil {
		return n, fmt.Errorf("write failed: %w", err)
	}
	return n, nil
}
