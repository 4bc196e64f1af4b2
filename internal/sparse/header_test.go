package sparse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnmarshalFileHeader(t *testing.T) {
	data := []byte{
		0x3a, 0xff, 0x26, 0xed, 0x01, 0x00, 0x00, 0x00, 0x1c, 0x00, 0x0c, 0x00, 0x00, 0x10,
		0x00, 0x00, 0x77, 0x39, 0x14, 0x00, 0xb1, 0x00, 0x00, 0x00, 0xaa, 0x00, 0x00, 0xcc,
	}

	h, err := UnmarshalFileHeader(data)
	require.NoError(t, err)
	require.Equal(t, &FileHeader{
		BlockSize: 4096,
		Blocks:    1325431,
		Chunks:    177,
		Checksum:  0xcc0000aa,
	}, h)
}

func TestUnmarshalFileHeaderRejects(t *testing.T) {
	good := (&FileHeader{BlockSize: 4096, Blocks: 1024, Chunks: 42, Checksum: 0xabcd}).Marshal()

	mutate := func(offset int, b byte) []byte {
		data := append([]byte(nil), good...)
		data[offset] = b
		return data
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"short buffer", good[:FileHeaderSize-1], ErrShortHeader},
		{"bad magic", mutate(0, 0x3b), ErrUnknownMagic},
		{"bad major version", mutate(4, 2), ErrUnsupportedVersion},
		{"bad minor version", mutate(6, 1), ErrUnsupportedVersion},
		{"bad header size", mutate(8, 0x1d), ErrHeaderSize},
		{"bad chunk header size", mutate(10, 0x0d), ErrHeaderSize},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := UnmarshalFileHeader(tc.data)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestFileHeaderRoundtrip(t *testing.T) {
	orig := FileHeader{
		BlockSize: 4096,
		Blocks:    1024,
		Chunks:    42,
		Checksum:  0xabcd,
	}

	echo, err := UnmarshalFileHeader(orig.Marshal())
	require.NoError(t, err)
	require.Equal(t, &orig, echo)
}

func TestUnmarshalChunkHeader(t *testing.T) {
	data := []byte{
		0xc3, 0xca, 0x00, 0x00, 0x1f, 0xf1, 0xaa, 0xbb, 0x0c, 0x00, 0x00, 0x00,
	}

	h, err := UnmarshalChunkHeader(data)
	require.NoError(t, err)
	require.Equal(t, &ChunkHeader{
		Type:      ChunkDontCare,
		ChunkSize: 0xbbaaf11f,
		TotalSize: ChunkHeaderSize,
	}, h)
}

func TestUnmarshalChunkHeaderRejects(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"short buffer", make([]byte, ChunkHeaderSize-1), ErrShortHeader},
		{"unknown type", []byte{0xc5, 0xca, 0, 0, 1, 0, 0, 0, 0x0c, 0, 0, 0}, ErrUnknownChunkType},
		{"zero type", make([]byte, ChunkHeaderSize), ErrUnknownChunkType},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := UnmarshalChunkHeader(tc.data)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestChunkHeaderRoundtrip(t *testing.T) {
	orig := ChunkHeader{
		Type:      ChunkFill,
		ChunkSize: 8,
		TotalSize: ChunkHeaderSize + 4,
	}

	buf, err := orig.Marshal()
	require.NoError(t, err)

	echo, err := UnmarshalChunkHeader(buf)
	require.NoError(t, err)
	require.Equal(t, &orig, echo)
}

func TestChunkHeaderValidate(t *testing.T) {
	const blockSize = 4096

	tests := []struct {
		name    string
		header  ChunkHeader
		wantErr error
	}{
		{"raw ok", NewRawChunk(3, blockSize), nil},
		{"fill ok", NewFillChunk(8), nil},
		{"dontcare ok", NewDontCareChunk(100), nil},
		{"crc32 ok", ChunkHeader{Type: ChunkCrc32, TotalSize: ChunkHeaderSize + 4}, nil},
		{
			"raw data short of block count",
			ChunkHeader{Type: ChunkRaw, ChunkSize: 2, TotalSize: ChunkHeaderSize + blockSize},
			ErrChunkSize,
		},
		{
			"fill with extra data",
			ChunkHeader{Type: ChunkFill, ChunkSize: 1, TotalSize: ChunkHeaderSize + 8},
			ErrChunkSize,
		},
		{
			"dontcare with data",
			ChunkHeader{Type: ChunkDontCare, ChunkSize: 1, TotalSize: ChunkHeaderSize + 1},
			ErrChunkSize,
		},
		{
			"crc32 without payload",
			ChunkHeader{Type: ChunkCrc32, TotalSize: ChunkHeaderSize},
			ErrChunkSize,
		},
		{
			"total size below header size",
			ChunkHeader{Type: ChunkDontCare, TotalSize: ChunkHeaderSize - 1},
			ErrChunkSize,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.header.Validate(blockSize)
			if tc.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestChunkTypeString(t *testing.T) {
	require.Equal(t, "RAW", ChunkRaw.String())
	require.Equal(t, "FILL", ChunkFill.String())
	require.Equal(t, "DONT_CARE", ChunkDontCare.String())
	require.Equal(t, "CRC32", ChunkCrc32.String())
	require.Equal(t, "UNKNOWN", ChunkType(0xcac5).String())
}
