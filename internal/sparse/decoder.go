package sparse

import (
	"fmt"
	"io"
)

// Decoder reads a sparse image from a stream, one chunk at a time. Chunks
// are decoded strictly in order: Next advances to the following chunk
// header, discarding any data of the current chunk that was not consumed
// through Read. The decoder never seeks backwards.
type Decoder struct {
	r         io.Reader
	header    FileHeader
	remaining uint32 // chunks not yet decoded
	unread    int64  // data bytes of the current chunk not yet read
	offset    int64  // current position within the sparse image
}

// NewDecoder reads and validates the file header, leaving the cursor at the
// first chunk.
func NewDecoder(r io.Reader) (*Decoder, error) {
	buf := make([]byte, FileHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to read file header: %w", err)
	}

	header, err := UnmarshalFileHeader(buf)
	if err != nil {
		return nil, err
	}

	return &Decoder{
		r:         r,
		header:    *header,
		remaining: header.Chunks,
		offset:    FileHeaderSize,
	}, nil
}

func (d *Decoder) Header() FileHeader {
	return d.header
}

// Remaining is the number of chunks not yet decoded
func (d *Decoder) Remaining() uint32 {
	return d.remaining
}

// Offset is the current position within the sparse image in bytes. Directly
// after Next it is the position of the returned chunk's data.
func (d *Decoder) Offset() int64 {
	return d.offset
}

// Next decodes the next chunk header, validating its type and data size
// against the file header. It returns io.EOF once all chunks announced by
// the file header have been decoded.
func (d *Decoder) Next() (*ChunkHeader, error) {
	if d.remaining == 0 {
		return nil, io.EOF
	}

	if d.unread > 0 {
		n, err := io.CopyN(io.Discard, d.r, d.unread)
		d.offset += n
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		if err != nil {
			return nil, fmt.Errorf("failed to skip chunk data: %w", err)
		}
		d.unread = 0
	}

	buf := make([]byte, ChunkHeaderSize)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, fmt.Errorf("failed to read chunk header: %w", err)
	}
	d.offset += ChunkHeaderSize

	header, err := UnmarshalChunkHeader(buf)
	if err != nil {
		return nil, err
	}
	if err := header.Validate(d.header.BlockSize); err != nil {
		return nil, err
	}

	d.remaining--
	d.unread = header.DataSize()
	return header, nil
}

// Read reads data of the current chunk, returning io.EOF at the end of the
// chunk. Raw chunks carry the block content, fill and crc32 chunks their
// 4-byte payload, don't-care chunks nothing.
func (d *Decoder) Read(p []byte) (int, error) {
	if d.unread == 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > d.unread {
		p = p[:d.unread]
	}

	n, err := d.r.Read(p)
	d.unread -= int64(n)
	d.offset += int64(n)
	if err == io.EOF && d.unread > 0 {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}
