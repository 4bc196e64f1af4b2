package sparse

import (
	"errors"
	"fmt"
	"io"
)

const expandBufSize = 64 * 1024

// Expand writes the raw image a decoder's sparse input describes to w. Raw
// chunk data is copied through, fill chunks repeat their pattern, don't-care
// chunks come out as zeros and crc32 chunks are skipped. It consumes all
// chunks the decoder has left and returns the number of bytes written.
func Expand(d *Decoder, w io.Writer) (int64, error) {
	header := d.Header()
	buf := make([]byte, expandBufSize)
	var written int64

	for {
		chunk, err := d.Next()
		if errors.Is(err, io.EOF) {
			return written, nil
		}
		if err != nil {
			return written, err
		}

		switch chunk.Type {
		case ChunkRaw:
			n, err := io.Copy(w, d)
			written += n
			if err != nil {
				return written, fmt.Errorf("failed to expand raw chunk: %w", err)
			}

		case ChunkFill:
			var pattern [4]byte
			if _, err := io.ReadFull(d, pattern[:]); err != nil {
				return written, fmt.Errorf("failed to read fill pattern: %w", err)
			}
			for i := 0; i < len(buf); i += 4 {
				copy(buf[i:i+4], pattern[:])
			}
			n, err := writeRepeated(w, buf, chunk.OutSize(&header))
			written += n
			if err != nil {
				return written, fmt.Errorf("failed to expand fill chunk: %w", err)
			}

		case ChunkDontCare:
			clear(buf)
			n, err := writeRepeated(w, buf, chunk.OutSize(&header))
			written += n
			if err != nil {
				return written, fmt.Errorf("failed to expand don't-care chunk: %w", err)
			}

		case ChunkCrc32:
			// Checksums are not verified, skip the payload
			if _, err := io.CopyN(io.Discard, d, chunk.DataSize()); err != nil {
				return written, fmt.Errorf("failed to skip crc32 chunk: %w", err)
			}
		}
	}
}

// writeRepeated writes total bytes to w drawn from the prefilled buffer
func writeRepeated(w io.Writer, buf []byte, total int64) (int64, error) {
	var written int64
	for written < total {
		n := int64(len(buf))
		if total-written < n {
			n = total - written
		}
		m, err := w.Write(buf[:n])
		written += int64(m)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
