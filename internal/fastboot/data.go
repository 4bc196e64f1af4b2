package fastboot

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
)

// Download stages size bytes from r in the device's download buffer. The
// device must accept exactly the requested size, otherwise the operation
// is aborted before any payload moves.
func (c *Client) Download(ctx context.Context, r io.Reader, size uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateBroken {
		return ErrUnusable
	}

	if err := c.send(ctx, CmdDownload(size)); err != nil {
		return err
	}

	announced, err := c.awaitData(ctx)
	if err != nil {
		return err
	}
	if announced != size {
		c.state = StateIdle
		return &DataSizeError{Requested: size, Announced: announced}
	}

	c.state = StateData
	if err := c.pump(ctx, r, size); err != nil {
		return err
	}

	c.state = StateAwaiting
	if _, err := c.finish(ctx); err != nil {
		return err
	}

	log.Debug().Uint32("size", size).Msg("Download staged")
	return nil
}

// awaitData consumes replies until the device acknowledges the data phase
// with DATA, returning the announced byte count.
func (c *Client) awaitData(ctx context.Context) (uint32, error) {
	for {
		resp, err := c.receive(ctx)
		if err != nil {
			return 0, err
		}

		switch resp.Kind {
		case ReplyInfo:
			c.info(resp)
		case ReplyData:
			return resp.Size, nil
		case ReplyFail:
			c.state = StateIdle
			return 0, &RemoteError{Reason: resp.Text}
		case ReplyOkay:
			c.state = StateIdle
			return 0, fmt.Errorf("%w: OKAY before the data phase", ErrUnexpectedReply)
		}
	}
}

// pump moves the payload in chunk sized transfers. Failing partway leaves
// the device waiting for bytes that will never arrive, so the connection
// is marked broken.
func (c *Client) pump(ctx context.Context, r io.Reader, size uint32) error {
	buf := make([]byte, c.opts.GetChunkSize())

	var sent uint64
	total := uint64(size)
	for sent < total {
		n := uint64(len(buf))
		if left := total - sent; left < n {
			n = left
		}

		if _, err := io.ReadFull(r, buf[:n]); err != nil {
			c.state = StateBroken
			return fmt.Errorf("failed to read payload: %w", err)
		}
		if err := c.conn.Send(ctx, buf[:n]); err != nil {
			c.state = StateBroken
			return fmt.Errorf("failed to send payload: %w", err)
		}

		sent += n
		if c.opts.OnProgress != nil {
			c.opts.OnProgress(sent, total)
		}
	}

	return nil
}

// Upload streams the device's staged data to w and returns the byte count.
// The device announces the size in its DATA reply.
func (c *Client) Upload(ctx context.Context, w io.Writer) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateBroken {
		return 0, ErrUnusable
	}

	if err := c.send(ctx, CmdUpload); err != nil {
		return 0, err
	}

	announced, err := c.awaitData(ctx)
	if err != nil {
		return 0, err
	}

	c.state = StateData
	chunk := c.opts.GetChunkSize()
	var received uint64
	total := uint64(announced)
	for received < total {
		max := uint64(chunk)
		if left := total - received; left < max {
			max = left
		}

		data, err := c.conn.Receive(ctx, int(max))
		if err != nil {
			c.state = StateBroken
			return received, fmt.Errorf("failed to receive payload: %w", err)
		}
		if len(data) == 0 {
			c.state = StateBroken
			return received, fmt.Errorf("%w: empty transfer during the data phase", ErrUnexpectedReply)
		}
		if _, err := w.Write(data); err != nil {
			c.state = StateBroken
			return received, fmt.Errorf("failed to write payload: %w", err)
		}

		received += uint64(len(data))
		if c.opts.OnProgress != nil {
			c.opts.OnProgress(received, total)
		}
	}

	c.state = StateAwaiting
	if _, err := c.finish(ctx); err != nil {
		return received, err
	}

	log.Debug().Uint64("size", received).Msg("Upload complete")
	return received, nil
}
