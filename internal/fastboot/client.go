package fastboot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/calyptra/goflash/internal/transport"
	"github.com/calyptra/goflash/internal/utils"
	"github.com/rs/zerolog/log"
)

const (
	DEFAULT_CHUNK_SIZE = 1024 * 1024 // data phase transfer unit
)

// State of the command/response exchange. A client leaves Idle only while
// an operation holds the lock and returns there once the exchange reaches
// a terminal reply. Broken means the transport failed mid exchange and the
// framing can no longer be trusted.
type State uint8

const (
	StateIdle     State = 0 // no operation in flight
	StateAwaiting State = 1 // command sent, reply pending
	StateInfo     State = 2 // INFO received, more replies follow
	StateData     State = 3 // payload moving
	StateBroken   State = 4 // transport failure, reopen the device
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaiting:
		return "awaiting-response"
	case StateInfo:
		return "receiving-info"
	case StateData:
		return "data-phase"
	case StateBroken:
		return "broken"
	default:
		return "unknown"
	}
}

// InfoFunc receives the text of each INFO reply as it arrives.
type InfoFunc func(message string)

// ProgressFunc receives data phase progress after each transfer.
type ProgressFunc func(transferred, total uint64)

type ClientOpts struct {
	ChunkSize  *uint32      // data phase transfer unit
	OnInfo     InfoFunc     // called for every INFO reply
	OnProgress ProgressFunc // called as data phase bytes move
}

func (o ClientOpts) GetChunkSize() uint32 {
	return utils.DefaultIfNil(o.ChunkSize, DEFAULT_CHUNK_SIZE)
}

// Client drives the command/response exchange over one device connection.
// Methods serialize on an internal lock so a single operation is in flight
// at a time. Nothing is ever retried: a failed exchange surfaces to the
// caller untouched.
type Client struct {
	mu    sync.Mutex
	conn  transport.Conn
	state State
	opts  ClientOpts
}

func NewClient(conn transport.Conn, opts ClientOpts) *Client {
	return &Client{conn: conn, opts: opts}
}

// State reports the exchange state left behind by the last operation.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// send puts one command line on the wire.
func (c *Client) send(ctx context.Context, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	c.state = StateAwaiting
	if err := c.conn.Send(ctx, []byte(cmd)); err != nil {
		c.state = StateBroken
		return fmt.Errorf("failed to send command: %w", err)
	}

	log.Trace().Str("command", string(cmd)).Msg("Command sent")
	return nil
}

// receive reads and parses one reply transfer. A malformed reply fails the
// operation but leaves the connection usable, the transfer itself arrived
// intact.
func (c *Client) receive(ctx context.Context) (*Response, error) {
	data, err := c.conn.Receive(ctx, MaxResponseSize)
	if err != nil {
		c.state = StateBroken
		return nil, fmt.Errorf("failed to receive reply: %w", err)
	}

	resp, err := UnmarshalResponse(data)
	if err != nil {
		c.state = StateIdle
		return nil, err
	}

	return resp, nil
}

// info surfaces one INFO reply and arms the client for the next one.
func (c *Client) info(resp *Response) {
	c.state = StateInfo
	log.Debug().Str("message", resp.Text).Msg("Device info")
	if c.opts.OnInfo != nil {
		c.opts.OnInfo(resp.Text)
	}
	c.state = StateAwaiting
}

// finish consumes replies until the exchange reaches a terminal one and
// returns the OKAY payload.
func (c *Client) finish(ctx context.Context) (string, error) {
	for {
		resp, err := c.receive(ctx)
		if err != nil {
			return "", err
		}

		switch resp.Kind {
		case ReplyInfo:
			c.info(resp)
		case ReplyOkay:
			c.state = StateIdle
			return resp.Text, nil
		case ReplyFail:
			c.state = StateIdle
			return "", &RemoteError{Reason: resp.Text}
		case ReplyData:
			c.state = StateIdle
			return "", fmt.Errorf("%w: DATA outside a download", ErrUnexpectedReply)
		}
	}
}

// execute runs one command through to its terminal reply.
func (c *Client) execute(ctx context.Context, cmd Command) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateBroken {
		return "", ErrUnusable
	}

	if err := c.send(ctx, cmd); err != nil {
		return "", err
	}
	return c.finish(ctx)
}

// GetVar queries a single bootloader variable.
func (c *Client) GetVar(ctx context.Context, name string) (string, error) {
	return c.execute(ctx, CmdGetVar(name))
}

// GetAllVars enumerates every variable the bootloader reports. The values
// arrive as INFO lines of the form "name: value"; lines that do not parse
// are skipped. Text on the terminal OKAY is ignored.
func (c *Client) GetAllVars(ctx context.Context) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateBroken {
		return nil, ErrUnusable
	}

	if err := c.send(ctx, CmdGetVar(VarAll)); err != nil {
		return nil, err
	}

	vars := make(map[string]string)
	for {
		resp, err := c.receive(ctx)
		if err != nil {
			return nil, err
		}

		switch resp.Kind {
		case ReplyInfo:
			c.state = StateInfo
			if name, value, ok := splitVar(resp.Text); ok {
				vars[name] = value
			} else {
				log.Warn().Str("line", resp.Text).Msg("Unparsable variable line")
			}
			if c.opts.OnInfo != nil {
				c.opts.OnInfo(resp.Text)
			}
			c.state = StateAwaiting
		case ReplyOkay:
			c.state = StateIdle
			return vars, nil
		case ReplyFail:
			c.state = StateIdle
			return nil, &RemoteError{Reason: resp.Text}
		case ReplyData:
			c.state = StateIdle
			return nil, fmt.Errorf("%w: DATA outside a download", ErrUnexpectedReply)
		}
	}
}

// splitVar splits a "name: value" line at the last colon so variable names
// that contain colons themselves, like partition-size:super, keep their
// full name.
func splitVar(line string) (string, string, bool) {
	idx := strings.LastIndex(line, ":")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

// Flash writes the staged download into a partition.
func (c *Client) Flash(ctx context.Context, partition string) error {
	value, err := c.execute(ctx, CmdFlash(partition))
	if err != nil {
		return err
	}

	log.Debug().Str("partition", partition).Str("value", value).Msg("Partition flashed")
	return nil
}

// Erase wipes a partition.
func (c *Client) Erase(ctx context.Context, partition string) error {
	value, err := c.execute(ctx, CmdErase(partition))
	if err != nil {
		return err
	}

	log.Debug().Str("partition", partition).Str("value", value).Msg("Partition erased")
	return nil
}

// Reboot restarts the device into the normal OS. The device drops the
// connection right after acknowledging.
func (c *Client) Reboot(ctx context.Context) error {
	_, err := c.execute(ctx, CmdReboot)
	return err
}

// RebootBootloader restarts the device back into the bootloader.
func (c *Client) RebootBootloader(ctx context.Context) error {
	_, err := c.execute(ctx, CmdRebootBootloader)
	return err
}

// Raw sends a free form command line, for oem extensions the typed API
// does not cover, and returns the OKAY payload.
func (c *Client) Raw(ctx context.Context, line string) (string, error) {
	return c.execute(ctx, Command(line))
}
