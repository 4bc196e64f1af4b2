// Package flasher drives whole flashing sessions: it sizes images against
// the device's download buffer, splits what does not fit, and pushes the
// pieces through the fastboot client.
package flasher

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/calyptra/goflash/internal/fastboot"
	"github.com/calyptra/goflash/internal/sparse"
	"github.com/calyptra/goflash/internal/transport"
	"github.com/calyptra/goflash/internal/utils"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

const (
	// Fallback when the device does not advertise max-download-size
	DEFAULT_MAX_DOWNLOAD = 0x8000000 // 128 MiB
)

type FlasherOpts struct {
	MaxDownload *uint32 // overrides the device advertised buffer size
	ChunkSize   *uint32 // data phase transfer unit
	OnInfo      fastboot.InfoFunc
	OnProgress  fastboot.ProgressFunc
}

// Flasher owns one device connection for the duration of a flash session.
type Flasher struct {
	client      *fastboot.Client
	id          ulid.ULID
	maxDownload uint32
	stats       Stats
}

// NewFlasher opens a session over conn and sizes it against the device's
// advertised download buffer.
func NewFlasher(ctx context.Context, conn transport.Conn, opts FlasherOpts) (*Flasher, error) {
	id, err := utils.NewULID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	f := &Flasher{
		id: id,
		client: fastboot.NewClient(conn, fastboot.ClientOpts{
			ChunkSize:  opts.ChunkSize,
			OnInfo:     opts.OnInfo,
			OnProgress: opts.OnProgress,
		}),
	}

	max := utils.DefaultIfNil(opts.MaxDownload, 0)
	if max == 0 {
		value, err := f.client.GetVar(ctx, fastboot.VarMaxDownloadSize)
		var remote *fastboot.RemoteError
		switch {
		case errors.As(err, &remote):
			log.Warn().
				Str("session_id", id.String()).
				Msg("Device does not advertise max-download-size, using the default")
			max = DEFAULT_MAX_DOWNLOAD
		case err != nil:
			return nil, fmt.Errorf("failed to query max-download-size: %w", err)
		default:
			max, err = utils.ParseHex32(value)
			if err != nil {
				return nil, fmt.Errorf("failed to parse max-download-size %q: %w", value, err)
			}
		}
	}
	if max == 0 {
		log.Warn().Str("session_id", id.String()).Msg("Device reports a zero download buffer, using the default")
		max = DEFAULT_MAX_DOWNLOAD
	}
	f.maxDownload = max

	log.Debug().
		Str("session_id", id.String()).
		Str("max_download", utils.DisplayBi(uint64(max))).
		Msg("Flash session open")
	return f, nil
}

// Client exposes the underlying fastboot client for plain commands.
func (f *Flasher) Client() *fastboot.Client {
	return f.client
}

func (f *Flasher) SessionID() ulid.ULID {
	return f.id
}

// MaxDownload is the device's download buffer size for this session.
func (f *Flasher) MaxDownload() uint32 {
	return f.maxDownload
}

func (f *Flasher) Stats() *Stats {
	return &f.stats
}

// Close closes the session's connection.
func (f *Flasher) Close() error {
	return f.client.Close()
}

// FlashStream stages size bytes from r and writes them into a partition.
// The stream must fit the download buffer, FlashFile handles splitting.
func (f *Flasher) FlashStream(ctx context.Context, partition string, r io.Reader, size uint32) error {
	if size > f.maxDownload {
		return fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, size, f.maxDownload)
	}

	if err := f.client.Download(ctx, r, size); err != nil {
		return fmt.Errorf("failed to stage data for %s: %w", partition, err)
	}
	if err := f.client.Flash(ctx, partition); err != nil {
		return fmt.Errorf("failed to flash %s: %w", partition, err)
	}

	f.stats.AddBytesSent(uint64(size))
	f.stats.AddPart()
	return nil
}

// FlashFile flashes an image file, splitting it into device sized pieces
// when it exceeds the download buffer. Sparse images split along chunk
// boundaries, raw images are wrapped into sparse parts the bootloader
// reassembles by block offset.
func (f *Flasher) FlashFile(ctx context.Context, partition, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	fi, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat image: %w", err)
	}
	size := fi.Size()

	start := time.Now()
	sentBefore := f.stats.GetBytesSent()
	partsBefore := f.stats.GetParts()

	switch {
	case size <= int64(f.maxDownload):
		// Fits in one download, sparse or not
		err = f.FlashStream(ctx, partition, file, uint32(size))
	default:
		isSparse, serr := sniffSparse(file)
		if serr != nil {
			return fmt.Errorf("failed to read image: %w", serr)
		}
		if isSparse {
			err = f.flashSparseSplit(ctx, partition, file)
		} else {
			err = f.flashRawSplit(ctx, partition, file, size)
		}
	}
	if err != nil {
		return err
	}

	duration := time.Since(start)
	sent := f.stats.GetBytesSent() - sentBefore
	log.Info().
		Str("session_id", f.id.String()).
		Str("partition", partition).
		Uint32("parts", f.stats.GetParts()-partsBefore).
		Str("total", utils.DisplayB(sent)).
		Str("rate", utils.DisplayBPS(sent, duration)).
		Msg("Flash complete")
	return nil
}

// sniffSparse checks the image magic and rewinds.
func sniffSparse(file *os.File) (bool, error) {
	var buf [4]byte
	if _, err := file.ReadAt(buf[:], 0); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	return binary.LittleEndian.Uint32(buf[:]) == sparse.Magic, nil
}

// flashSparseSplit walks the image's chunk list, cuts it into parts that
// fit the download buffer, and flashes them one after another.
func (f *Flasher) flashSparseSplit(ctx context.Context, partition string, file *os.File) error {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind image: %w", err)
	}

	d, err := sparse.NewDecoder(file)
	if err != nil {
		return fmt.Errorf("failed to decode sparse image: %w", err)
	}

	var chunks []sparse.ChunkHeader
	for {
		chunk, err := d.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to walk sparse image: %w", err)
		}
		chunks = append(chunks, *chunk)
	}

	header := d.Header()
	splits, err := sparse.SplitImage(&header, chunks, f.maxDownload)
	if err != nil {
		return fmt.Errorf("failed to split sparse image: %w", err)
	}

	return f.flashSplits(ctx, partition, file, splits)
}

// flashRawSplit wraps an oversized raw image into sparse parts whose
// offsets point straight into the raw file.
func (f *Flasher) flashRawSplit(ctx context.Context, partition string, file *os.File, size int64) error {
	splits, err := sparse.SplitRaw(size, f.maxDownload)
	if err != nil {
		return fmt.Errorf("failed to split raw image: %w", err)
	}

	return f.flashSplits(ctx, partition, file, splits)
}

func (f *Flasher) flashSplits(ctx context.Context, partition string, src io.ReaderAt, splits []sparse.Split) error {
	log.Info().
		Str("session_id", f.id.String()).
		Str("partition", partition).
		Int("parts", len(splits)).
		Msg("Image exceeds the download buffer, splitting")

	for i, part := range splits {
		var buf bytes.Buffer
		if _, err := sparse.WriteSplit(&buf, src, &part); err != nil {
			return fmt.Errorf("failed to build part %d: %w", i+1, err)
		}

		log.Debug().
			Str("session_id", f.id.String()).
			Int("part", i+1).
			Int("size", buf.Len()).
			Msg("Flashing part")
		if err := f.FlashStream(ctx, partition, &buf, uint32(buf.Len())); err != nil {
			return fmt.Errorf("failed to flash part %d of %d: %w", i+1, len(splits), err)
		}
	}

	return nil
}

// Erase wipes a partition.
func (f *Flasher) Erase(ctx context.Context, partition string) error {
	if err := f.client.Erase(ctx, partition); err != nil {
		return err
	}

	log.Info().
		Str("session_id", f.id.String()).
		Str("partition", partition).
		Msg("Partition erased")
	return nil
}
