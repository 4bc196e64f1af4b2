package sparse

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodeChunk(t *testing.T, header ChunkHeader, data []byte) []byte {
	t.Helper()
	buf, err := header.Marshal()
	require.NoError(t, err)
	return append(buf, data...)
}

// testImage builds a small image with one chunk of every type. Block size
// 16, six output blocks.
func testImage(t *testing.T) ([]byte, []byte) {
	t.Helper()

	rawData := make([]byte, 16)
	for i := range rawData {
		rawData[i] = byte(i)
	}

	header := FileHeader{BlockSize: 16, Blocks: 6, Chunks: 4}

	var img []byte
	img = append(img, header.Marshal()...)
	img = append(img, encodeChunk(t, NewRawChunk(1, 16), rawData)...)
	img = append(img, encodeChunk(t, NewFillChunk(2), []byte{0xde, 0xad, 0xbe, 0xef})...)
	img = append(img, encodeChunk(t, NewDontCareChunk(3), nil)...)
	img = append(img, encodeChunk(t,
		ChunkHeader{Type: ChunkCrc32, TotalSize: ChunkHeaderSize + 4},
		[]byte{0x01, 0x02, 0x03, 0x04})...)

	return img, rawData
}

func TestDecoder(t *testing.T) {
	img, rawData := testImage(t)

	d, err := NewDecoder(bytes.NewReader(img))
	require.NoError(t, err)
	require.Equal(t, FileHeader{BlockSize: 16, Blocks: 6, Chunks: 4}, d.Header())
	require.EqualValues(t, 4, d.Remaining())
	require.EqualValues(t, FileHeaderSize, d.Offset())

	// Raw chunk, data read in full
	chunk, err := d.Next()
	require.NoError(t, err)
	require.Equal(t, ChunkRaw, chunk.Type)
	require.EqualValues(t, FileHeaderSize+ChunkHeaderSize, d.Offset())

	data, err := io.ReadAll(d)
	require.NoError(t, err)
	require.Equal(t, rawData, data)

	// Fill chunk, data left unread and skipped by the next advance
	chunk, err = d.Next()
	require.NoError(t, err)
	require.Equal(t, ChunkFill, chunk.Type)
	require.EqualValues(t, 2, chunk.ChunkSize)

	// Don't-care chunk carries no data
	chunk, err = d.Next()
	require.NoError(t, err)
	require.Equal(t, ChunkDontCare, chunk.Type)
	require.EqualValues(t, 0, chunk.DataSize())

	// Crc32 chunk payload
	chunk, err = d.Next()
	require.NoError(t, err)
	require.Equal(t, ChunkCrc32, chunk.Type)

	data, err = io.ReadAll(d)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, data)

	require.EqualValues(t, len(img), d.Offset())

	_, err = d.Next()
	require.ErrorIs(t, err, io.EOF)
	require.EqualValues(t, 0, d.Remaining())
}

func TestDecoderMinimalImage(t *testing.T) {
	payload := bytes.Repeat([]byte{0x5a}, 4096)
	header := FileHeader{BlockSize: 4096, Blocks: 1, Chunks: 1}

	img := header.Marshal()
	img = append(img, encodeChunk(t, NewRawChunk(1, 4096), payload)...)

	d, err := NewDecoder(bytes.NewReader(img))
	require.NoError(t, err)

	chunk, err := d.Next()
	require.NoError(t, err)
	require.Equal(t, ChunkRaw, chunk.Type)
	require.EqualValues(t, ChunkHeaderSize+4096, chunk.TotalSize)

	data, err := io.ReadAll(d)
	require.NoError(t, err)
	require.Len(t, data, 4096)
	require.Equal(t, payload, data)

	_, err = d.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestDecoderRejectsHeader(t *testing.T) {
	img, _ := testImage(t)

	t.Run("bad magic", func(t *testing.T) {
		bad := append([]byte(nil), img...)
		bad[0] = 0x3b
		_, err := NewDecoder(bytes.NewReader(bad))
		require.ErrorIs(t, err, ErrUnknownMagic)
	})

	t.Run("truncated header", func(t *testing.T) {
		_, err := NewDecoder(bytes.NewReader(img[:20]))
		require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func TestDecoderRejectsChunks(t *testing.T) {
	header := FileHeader{BlockSize: 16, Blocks: 2, Chunks: 1}

	t.Run("unknown chunk type", func(t *testing.T) {
		img := header.Marshal()
		img = append(img, 0xc5, 0xca, 0, 0, 1, 0, 0, 0, 0x0c, 0, 0, 0)

		d, err := NewDecoder(bytes.NewReader(img))
		require.NoError(t, err)
		_, err = d.Next()
		require.ErrorIs(t, err, ErrUnknownChunkType)
	})

	t.Run("raw chunk size mismatch", func(t *testing.T) {
		// Claims two blocks but carries data for one
		bad := ChunkHeader{Type: ChunkRaw, ChunkSize: 2, TotalSize: ChunkHeaderSize + 16}

		img := header.Marshal()
		img = append(img, encodeChunk(t, bad, make([]byte, 16))...)

		d, err := NewDecoder(bytes.NewReader(img))
		require.NoError(t, err)
		_, err = d.Next()
		require.ErrorIs(t, err, ErrChunkSize)
	})

	t.Run("truncated chunk data", func(t *testing.T) {
		img, _ := testImage(t)

		d, err := NewDecoder(bytes.NewReader(img[:50]))
		require.NoError(t, err)
		_, err = d.Next()
		require.NoError(t, err)

		_, err = io.ReadAll(d)
		require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("truncated chunk data on skip", func(t *testing.T) {
		img, _ := testImage(t)

		d, err := NewDecoder(bytes.NewReader(img[:50]))
		require.NoError(t, err)
		_, err = d.Next()
		require.NoError(t, err)

		_, err = d.Next()
		require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}
