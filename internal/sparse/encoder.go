package sparse

import (
	"fmt"
	"io"
)

// Encoder writes a sparse image to a stream. The file header is written up
// front, so chunk and block counts must be known before encoding starts.
// Chunks are written in call order.
type Encoder struct {
	w       io.Writer
	header  FileHeader
	written uint32 // chunks written so far
	blocks  uint32 // blocks covered so far
}

// NewEncoder writes the file header and returns an encoder for the chunks.
func NewEncoder(w io.Writer, header FileHeader) (*Encoder, error) {
	if _, err := w.Write(header.Marshal()); err != nil {
		return nil, fmt.Errorf("failed to write file header: %w", err)
	}
	return &Encoder{w: w, header: header}, nil
}

// WriteChunk writes one chunk header followed by its data. The data length
// must match what the chunk type requires.
func (e *Encoder) WriteChunk(header ChunkHeader, data []byte) error {
	if e.written == e.header.Chunks {
		return fmt.Errorf("%w: header announced %d chunks", ErrChunkCount, e.header.Chunks)
	}
	if err := header.Validate(e.header.BlockSize); err != nil {
		return err
	}
	if int64(len(data)) != header.DataSize() {
		return fmt.Errorf("%w: %s chunk got %d data bytes, want %d",
			ErrChunkSize, header.Type, len(data), header.DataSize())
	}

	buf, err := header.Marshal()
	if err != nil {
		return err
	}
	if _, err := e.w.Write(buf); err != nil {
		return fmt.Errorf("failed to write chunk header: %w", err)
	}
	if len(data) > 0 {
		if _, err := e.w.Write(data); err != nil {
			return fmt.Errorf("failed to write chunk data: %w", err)
		}
	}

	e.written++
	e.blocks += header.ChunkSize
	return nil
}

// Close verifies that the chunks written match the counts announced in the
// file header. It does not close the underlying writer.
func (e *Encoder) Close() error {
	if e.written != e.header.Chunks {
		return fmt.Errorf("%w: wrote %d chunks, header announced %d",
			ErrChunkCount, e.written, e.header.Chunks)
	}
	if e.blocks != e.header.Blocks {
		return fmt.Errorf("%w: chunks cover %d blocks, header announced %d",
			ErrChunkCount, e.blocks, e.header.Blocks)
	}
	return nil
}
