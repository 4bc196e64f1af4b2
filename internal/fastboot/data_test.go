package fastboot

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/calyptra/goflash/internal/transport"
	"github.com/calyptra/goflash/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestDownload(t *testing.T) {
	payload := bytes.Repeat([]byte{0xab}, 0x1000)
	conn := &fakeConn{replies: replyScript("DATA00001000", "OKAY")}
	client := NewClient(conn, ClientOpts{})

	err := client.Download(context.Background(), bytes.NewReader(payload), 0x1000)
	require.NoError(t, err)

	require.Len(t, conn.sent, 2)
	require.Equal(t, []byte("download:00001000"), conn.sent[0])
	require.Equal(t, payload, conn.sent[1])
	require.Equal(t, StateIdle, client.State())
}

func TestDownloadChunked(t *testing.T) {
	payload := make([]byte, 2500)
	for i := range payload {
		payload[i] = byte(i)
	}

	var progress []uint64
	conn := &fakeConn{replies: replyScript("DATA000009c4", "OKAY")}
	client := NewClient(conn, ClientOpts{
		ChunkSize: utils.Ptr(uint32(1024)),
		OnProgress: func(done, total uint64) {
			require.Equal(t, uint64(2500), total)
			progress = append(progress, done)
		},
	})

	require.NoError(t, client.Download(context.Background(), bytes.NewReader(payload), 2500))

	require.Len(t, conn.sent, 4) // command plus three chunks
	require.Equal(t, payload[:1024], conn.sent[1])
	require.Equal(t, payload[1024:2048], conn.sent[2])
	require.Equal(t, payload[2048:], conn.sent[3])
	require.Equal(t, []uint64{1024, 2048, 2500}, progress)
}

func TestDownloadSizeMismatch(t *testing.T) {
	conn := &fakeConn{replies: replyScript("DATA00000800")}
	client := NewClient(conn, ClientOpts{})

	err := client.Download(context.Background(), bytes.NewReader(make([]byte, 0x1000)), 0x1000)
	var mismatch *DataSizeError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, uint32(0x1000), mismatch.Requested)
	require.Equal(t, uint32(0x800), mismatch.Announced)

	// Only the command line went out, no payload moved.
	require.Len(t, conn.sent, 1)
	require.Equal(t, StateIdle, client.State())
}

func TestDownloadRefused(t *testing.T) {
	conn := &fakeConn{replies: replyScript("FAILdownload too large")}
	client := NewClient(conn, ClientOpts{})

	err := client.Download(context.Background(), bytes.NewReader(make([]byte, 16)), 16)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, "download too large", remote.Reason)
	require.Len(t, conn.sent, 1)
	require.Equal(t, StateIdle, client.State())
}

func TestDownloadOkayBeforeData(t *testing.T) {
	conn := &fakeConn{replies: replyScript("OKAY")}
	client := NewClient(conn, ClientOpts{})

	err := client.Download(context.Background(), bytes.NewReader(make([]byte, 16)), 16)
	require.ErrorIs(t, err, ErrUnexpectedReply)
	require.Len(t, conn.sent, 1)
}

func TestDownloadInfoBeforeData(t *testing.T) {
	var infos []string
	conn := &fakeConn{replies: replyScript("INFOpreparing buffer", "DATA00000004", "OKAY")}
	client := NewClient(conn, ClientOpts{
		OnInfo: func(m string) { infos = append(infos, m) },
	})

	err := client.Download(context.Background(), bytes.NewReader([]byte{1, 2, 3, 4}), 4)
	require.NoError(t, err)
	require.Equal(t, []string{"preparing buffer"}, infos)
	require.Equal(t, []byte{1, 2, 3, 4}, conn.sent[1])
}

func TestDownloadShortReader(t *testing.T) {
	conn := &fakeConn{replies: replyScript("DATA00001000")}
	client := NewClient(conn, ClientOpts{})

	err := client.Download(context.Background(), bytes.NewReader(make([]byte, 100)), 0x1000)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.Equal(t, StateBroken, client.State())

	// The device is still waiting for payload, the connection is done for.
	require.ErrorIs(t, client.Flash(context.Background(), "boot"), ErrUnusable)
}

func TestUpload(t *testing.T) {
	conn := &fakeConn{replies: [][]byte{
		[]byte("DATA00000008"),
		{1, 2, 3, 4, 5},
		{6, 7, 8},
		[]byte("OKAY"),
	}}
	client := NewClient(conn, ClientOpts{})

	var out bytes.Buffer
	n, err := client.Upload(context.Background(), &out)
	require.NoError(t, err)
	require.Equal(t, uint64(8), n)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, out.Bytes())
	require.Equal(t, [][]byte{[]byte("upload")}, conn.sent)
	require.Equal(t, StateIdle, client.State())
}

func TestUploadOverrun(t *testing.T) {
	// The device announces 8 bytes but tries to push 10.
	conn := &fakeConn{replies: [][]byte{
		[]byte("DATA00000008"),
		{1, 2, 3, 4, 5},
		{6, 7, 8, 9, 10},
	}}
	client := NewClient(conn, ClientOpts{})

	var out bytes.Buffer
	_, err := client.Upload(context.Background(), &out)
	require.ErrorIs(t, err, transport.ErrMessageSize)
	require.Equal(t, StateBroken, client.State())
}

func TestUploadRefused(t *testing.T) {
	conn := &fakeConn{replies: replyScript("FAILno data staged")}
	client := NewClient(conn, ClientOpts{})

	var out bytes.Buffer
	_, err := client.Upload(context.Background(), &out)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, "no data staged", remote.Reason)
	require.Zero(t, out.Len())
}
