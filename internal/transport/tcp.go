package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Fastboot over TCP as the platform tools speak it: both ends exchange a
// 4-byte version greeting on connect, then every message is prefixed with
// an 8-byte big-endian length.
const (
	DefaultPortTCP = 5554

	greeting  = "FB01"
	prefixLen = 8

	defaultTimeout = 3 * time.Second
)

var be = binary.BigEndian

// ConnTCP frames fastboot messages over a TCP connection
type ConnTCP struct {
	conn    net.Conn
	r       *bufio.Reader
	w       *bufio.Writer
	timeout time.Duration
}

// NewConnTCP wraps an established connection. No greeting is exchanged; the
// device side wraps accepted connections with it and then calls Handshake.
func NewConnTCP(conn net.Conn, timeout time.Duration) *ConnTCP {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ConnTCP{
		conn:    conn,
		r:       bufio.NewReader(conn),
		w:       bufio.NewWriter(conn),
		timeout: timeout,
	}
}

// deadline bounds one I/O call by the configured timeout or the context
// deadline, whichever comes first
func (c *ConnTCP) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		d = cd
	}
	return d
}

// watch wakes blocked I/O when the context is canceled
func (c *ConnTCP) watch(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Unix(1, 0))
	})
}

func (c *ConnTCP) wireErr(ctx context.Context, err error, op string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// Handshake sends the version greeting and verifies the peer's. Both ends
// send eagerly, so the exchange works the same way for either role.
func (c *ConnTCP) Handshake(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer c.watch(ctx)()

	c.conn.SetDeadline(c.deadline(ctx))

	if _, err := c.w.WriteString(greeting); err != nil {
		return c.wireErr(ctx, err, "send greeting")
	}
	if err := c.w.Flush(); err != nil {
		return c.wireErr(ctx, err, "send greeting")
	}

	var buf [4]byte
	if _, err := io.ReadFull(c.r, buf[:]); err != nil {
		return c.wireErr(ctx, err, "read greeting")
	}

	if string(buf[0:2]) != "FB" {
		return fmt.Errorf("%w: unexpected greeting %q", ErrHandshake, string(buf[:]))
	}
	version, err := strconv.Atoi(string(buf[2:4]))
	if err != nil || version < 1 {
		return fmt.Errorf("%w: unsupported version %q", ErrHandshake, string(buf[2:4]))
	}

	log.Debug().Str("remote_addr", c.conn.RemoteAddr().String()).Msg("Handshake complete")
	return nil
}

func (c *ConnTCP) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer c.watch(ctx)()

	c.conn.SetWriteDeadline(c.deadline(ctx))

	var prefix [prefixLen]byte
	be.PutUint64(prefix[:], uint64(len(data)))

	if _, err := c.w.Write(prefix[:]); err != nil {
		return c.wireErr(ctx, err, "send message prefix")
	}
	if _, err := c.w.Write(data); err != nil {
		return c.wireErr(ctx, err, "send message")
	}
	if err := c.w.Flush(); err != nil {
		return c.wireErr(ctx, err, "flush message")
	}

	log.Trace().Int("len", len(data)).Msg("Message sent")
	return nil
}

func (c *ConnTCP) Receive(ctx context.Context, max int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer c.watch(ctx)()

	c.conn.SetReadDeadline(c.deadline(ctx))

	var prefix [prefixLen]byte
	if _, err := io.ReadFull(c.r, prefix[:]); err != nil {
		return nil, c.wireErr(ctx, err, "read message prefix")
	}

	size := be.Uint64(prefix[:])
	if max < 0 || size > uint64(max) {
		return nil, fmt.Errorf("%w: message of %d bytes, limit %d", ErrMessageSize, size, max)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, c.wireErr(ctx, err, "read message")
	}

	log.Trace().Int("len", len(buf)).Msg("Message received")
	return buf, nil
}

func (c *ConnTCP) Close() error {
	return c.conn.Close()
}

// DeviceTCP is a fastboot endpoint reachable over TCP
type DeviceTCP struct {
	addr    string
	timeout time.Duration
}

// NewDeviceTCP points at a fastboot TCP endpoint. The default port is
// appended when addr carries none.
func NewDeviceTCP(addr string, timeout time.Duration) *DeviceTCP {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, strconv.Itoa(DefaultPortTCP))
	}
	return &DeviceTCP{addr: addr, timeout: timeout}
}

func (d *DeviceTCP) ID() string {
	return "tcp:" + d.addr
}

func (d *DeviceTCP) Open(ctx context.Context) (Conn, error) {
	dialer := net.Dialer{Timeout: d.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device: %w", err)
	}

	c := NewConnTCP(conn, d.timeout)
	if err := c.Handshake(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	log.Debug().Str("device", d.ID()).Msg("Device opened")
	return c, nil
}

// EnumeratorTCP probes a fixed set of TCP endpoints and reports the ones
// that complete a handshake as attached
type EnumeratorTCP struct {
	Addrs   []string
	Timeout time.Duration
}

func (e *EnumeratorTCP) Devices(ctx context.Context) ([]Device, error) {
	var devices []Device
	for _, addr := range e.Addrs {
		device := NewDeviceTCP(addr, e.Timeout)

		conn, err := device.Open(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Trace().Str("device", device.ID()).Err(err).Msg("Probe failed")
			continue
		}
		conn.Close()

		devices = append(devices, device)
	}
	return devices, nil
}
