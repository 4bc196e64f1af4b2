package emulator

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/calyptra/goflash/internal/fastboot"
	"github.com/calyptra/goflash/internal/sparse"
	"github.com/calyptra/goflash/internal/transport"
	"github.com/rs/zerolog/log"
)

// the device drops the link right after acknowledging a reboot
var errDisconnect = errors.New("rebooting")

const uploadChunkSize = 64 * 1024

// session is one host connection together with its staged download.
type session struct {
	emu    *Emulator
	conn   *transport.ConnTCP
	staged []byte
}

func (e *Emulator) serve(ctx context.Context, conn net.Conn) error {
	c := transport.NewConnTCP(conn, e.timeout)
	defer c.Close()

	if err := c.Handshake(ctx); err != nil {
		return fmt.Errorf("failed to greet host: %w", err)
	}

	s := &session{emu: e, conn: c}
	for {
		data, err := c.Receive(ctx, fastboot.MaxCommandSize)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
				return nil // host went away
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				log.Debug().Msg("Host idle, dropping connection")
				return nil
			}
			return fmt.Errorf("failed to receive command: %w", err)
		}

		if err := s.dispatch(ctx, string(data)); err != nil {
			if errors.Is(err, errDisconnect) {
				return nil
			}
			return err
		}
	}
}

func (s *session) dispatch(ctx context.Context, line string) error {
	log.Debug().Str("command", line).Msg("Command received")

	switch {
	case strings.HasPrefix(line, "getvar:"):
		return s.getVar(ctx, strings.TrimPrefix(line, "getvar:"))
	case strings.HasPrefix(line, "download:"):
		return s.download(ctx, strings.TrimPrefix(line, "download:"))
	case strings.HasPrefix(line, "flash:"):
		return s.flash(ctx, strings.TrimPrefix(line, "flash:"))
	case strings.HasPrefix(line, "erase:"):
		return s.erase(ctx, strings.TrimPrefix(line, "erase:"))
	case line == string(fastboot.CmdUpload):
		return s.upload(ctx)
	case line == string(fastboot.CmdReboot), line == string(fastboot.CmdRebootBootloader):
		if err := s.okay(ctx, ""); err != nil {
			return err
		}
		return errDisconnect
	}

	return s.fail(ctx, "unknown command")
}

func (s *session) reply(ctx context.Context, resp fastboot.Response) error {
	data, err := resp.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}
	return s.conn.Send(ctx, data)
}

func (s *session) okay(ctx context.Context, text string) error {
	return s.reply(ctx, fastboot.Response{Kind: fastboot.ReplyOkay, Text: text})
}

func (s *session) fail(ctx context.Context, reason string) error {
	log.Debug().Str("reason", reason).Msg("Command refused")
	return s.reply(ctx, fastboot.Response{Kind: fastboot.ReplyFail, Text: reason})
}

func (s *session) info(ctx context.Context, text string) error {
	return s.reply(ctx, fastboot.Response{Kind: fastboot.ReplyInfo, Text: text})
}

func (s *session) data(ctx context.Context, size uint32) error {
	return s.reply(ctx, fastboot.Response{Kind: fastboot.ReplyData, Size: size})
}

func (s *session) getVar(ctx context.Context, name string) error {
	if name == fastboot.VarAll {
		return s.allVars(ctx)
	}

	s.emu.mu.Lock()
	value, ok := s.emu.vars[name]
	s.emu.mu.Unlock()

	if !ok {
		return s.fail(ctx, "GetVar Variable Not found")
	}
	return s.okay(ctx, value)
}

// allVars lists every variable as INFO lines before the terminal OKAY.
func (s *session) allVars(ctx context.Context) error {
	s.emu.mu.Lock()
	vars := make(map[string]string, len(s.emu.vars))
	for name, value := range s.emu.vars {
		vars[name] = value
	}
	s.emu.mu.Unlock()

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := s.info(ctx, name+": "+vars[name]); err != nil {
			return err
		}
	}
	return s.okay(ctx, "")
}

func (s *session) download(ctx context.Context, arg string) error {
	if len(arg) != 8 {
		return s.fail(ctx, "invalid download size")
	}
	size64, err := strconv.ParseUint(arg, 16, 32)
	if err != nil {
		return s.fail(ctx, "invalid download size")
	}

	size := uint32(size64)
	if size == 0 {
		return s.fail(ctx, "zero length download")
	}
	if size > s.emu.maxDownload {
		return s.fail(ctx, "data too large")
	}

	if err := s.data(ctx, size); err != nil {
		return err
	}

	buf := make([]byte, 0, size)
	for left := size; left > 0; {
		data, err := s.conn.Receive(ctx, int(left))
		if err != nil {
			return fmt.Errorf("failed to receive download data: %w", err)
		}
		if len(data) == 0 {
			return errors.New("empty download transfer")
		}
		buf = append(buf, data...)
		left -= uint32(len(data))
	}

	s.staged = buf
	log.Debug().Uint32("size", size).Msg("Download buffered")
	return s.okay(ctx, "")
}

func (s *session) flash(ctx context.Context, partition string) error {
	if len(s.staged) == 0 {
		return s.fail(ctx, "no data staged")
	}

	staged := s.staged
	s.staged = nil

	if len(staged) >= 4 && binary.LittleEndian.Uint32(staged) == sparse.Magic {
		if err := s.info(ctx, "writing sparse image"); err != nil {
			return err
		}
		if err := s.emu.applySparse(partition, staged); err != nil {
			log.Warn().Err(err).Str("partition", partition).Msg("Sparse write failed")
			return s.fail(ctx, "sparse image malformed")
		}
	} else {
		s.emu.writeRaw(partition, staged)
	}

	log.Info().Str("partition", partition).Int("size", len(staged)).Msg("Partition written")
	return s.okay(ctx, "")
}

func (s *session) erase(ctx context.Context, partition string) error {
	s.emu.mu.Lock()
	delete(s.emu.partitions, partition)
	s.emu.mu.Unlock()

	log.Info().Str("partition", partition).Msg("Partition erased")
	return s.okay(ctx, "")
}

func (s *session) upload(ctx context.Context) error {
	s.emu.mu.Lock()
	staged := append([]byte(nil), s.emu.upload...)
	s.emu.mu.Unlock()

	if len(staged) == 0 {
		return s.fail(ctx, "no data staged")
	}

	if err := s.data(ctx, uint32(len(staged))); err != nil {
		return err
	}

	for off := 0; off < len(staged); off += uploadChunkSize {
		end := off + uploadChunkSize
		if end > len(staged) {
			end = len(staged)
		}
		if err := s.conn.Send(ctx, staged[off:end]); err != nil {
			return fmt.Errorf("failed to send upload data: %w", err)
		}
	}

	return s.okay(ctx, "")
}

// applySparse writes a sparse image onto a partition the way a device
// does: raw and fill chunks land at their block offsets, don't-care chunks
// leave whatever the partition already holds. Split images rely on that to
// reassemble across several flash calls.
func (e *Emulator) applySparse(partition string, img []byte) error {
	d, err := sparse.NewDecoder(bytes.NewReader(img))
	if err != nil {
		return err
	}
	header := d.Header()

	e.mu.Lock()
	defer e.mu.Unlock()

	out := e.partitions[partition]
	ensure := func(n int64) {
		if n > int64(len(out)) {
			out = append(out, make([]byte, n-int64(len(out)))...)
		}
	}

	var offset int64
	for {
		chunk, err := d.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		span := chunk.OutSize(&header)
		switch chunk.Type {
		case sparse.ChunkRaw:
			ensure(offset + span)
			if _, err := io.ReadFull(d, out[offset:offset+span]); err != nil {
				return err
			}
		case sparse.ChunkFill:
			var pattern [4]byte
			if _, err := io.ReadFull(d, pattern[:]); err != nil {
				return err
			}
			ensure(offset + span)
			for i := int64(0); i < span; i++ {
				out[offset+i] = pattern[i%4]
			}
		case sparse.ChunkDontCare:
			// Seek, the existing bytes stay
		case sparse.ChunkCrc32:
			if _, err := io.CopyN(io.Discard, d, chunk.DataSize()); err != nil {
				return err
			}
		}

		offset += span
	}

	e.partitions[partition] = out
	return nil
}

func (e *Emulator) writeRaw(partition string, data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.partitions[partition] = append([]byte(nil), data...)
}
