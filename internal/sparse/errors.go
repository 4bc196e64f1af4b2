package sparse

import "errors"

var (
	ErrShortHeader        = errors.New("short header")
	ErrUnknownMagic       = errors.New("unknown magic value")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrHeaderSize         = errors.New("unexpected header size field")
	ErrUnknownChunkType   = errors.New("unknown chunk type")
	ErrChunkSize          = errors.New("chunk size mismatch")
	ErrChunkCount         = errors.New("chunk count mismatch")
	ErrBlockSize          = errors.New("block size not a positive multiple of 4")
	ErrSplitTooSmall      = errors.New("split size too small to fit chunks")
)
