// Package emulator hosts a fastboot device behind the TCP transport. It
// backs the emulate command and lets the client stack be exercised end to
// end without hardware.
package emulator

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/calyptra/goflash/internal/utils"
	"github.com/rs/zerolog/log"
)

const (
	DEFAULT_TIMEOUT      = 60 * time.Second
	DEFAULT_MAX_DOWNLOAD = 0x10000000 // 256 MiB download buffer
)

type EmulatorOpts struct {
	Host        string
	Port        uint16 // 0 binds an ephemeral port
	Timeout     time.Duration
	MaxDownload uint32            // size of the download buffer
	Vars        map[string]string // extra bootloader variables
}

type Emulator struct {
	host        string
	port        uint16
	timeout     time.Duration
	maxDownload uint32
	listener    net.Listener

	mu         sync.Mutex
	vars       map[string]string
	partitions map[string][]byte
	upload     []byte
}

func NewEmulator(opts EmulatorOpts) *Emulator {
	if opts.Timeout == 0 {
		opts.Timeout = DEFAULT_TIMEOUT
	}
	if opts.MaxDownload == 0 {
		opts.MaxDownload = DEFAULT_MAX_DOWNLOAD
	}

	serial := "EMU00000000"
	if id, err := utils.NewULID(); err == nil {
		serial = id.String()
	}

	vars := map[string]string{
		"version":           "1.0",
		"product":           "goflash-emulator",
		"serialno":          serial,
		"max-download-size": fmt.Sprintf("0x%08x", opts.MaxDownload),
	}
	for name, value := range opts.Vars {
		vars[name] = value
	}

	return &Emulator{
		host:        opts.Host,
		port:        opts.Port,
		timeout:     opts.Timeout,
		maxDownload: opts.MaxDownload,
		vars:        vars,
		partitions:  make(map[string][]byte),
	}
}

// Listen binds the emulator port. Run calls it if it has not happened yet;
// tests call it first to learn the ephemeral address.
func (e *Emulator) Listen() error {
	if e.listener != nil {
		return nil
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", e.host, e.port))
	if err != nil {
		return fmt.Errorf("failed to start emulator: %w", err)
	}

	e.listener = listener
	log.Info().Str("addr", listener.Addr().String()).Msg("Emulator listening")
	return nil
}

// Addr returns the bound listen address.
func (e *Emulator) Addr() string {
	if e.listener == nil {
		return fmt.Sprintf("%s:%d", e.host, e.port)
	}
	return e.listener.Addr().String()
}

// Run accepts host connections until the context is canceled.
func (e *Emulator) Run(ctx context.Context) error {
	if err := e.Listen(); err != nil {
		return err
	}

	defer e.listener.Close()
	go func() {
		// Shut the listener down on context cancellation
		<-ctx.Done()
		e.listener.Close()
	}()

	for {
		conn, err := e.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil // emulator is shutting down
			}
			return fmt.Errorf("failed to accept connection: %w", err)
		}

		log.Debug().Str("remote_addr", conn.RemoteAddr().String()).Msg("Host connected")
		go func() {
			if err := e.serve(ctx, conn); err != nil {
				log.Error().Err(err).Msg("Session error")
			}
		}()
	}
}

// SetVar adds or replaces a bootloader variable.
func (e *Emulator) SetVar(name, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vars[name] = value
}

// StageUpload sets the data the upload command hands back to the host.
func (e *Emulator) StageUpload(data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.upload = append([]byte(nil), data...)
}

// Partition returns a copy of the named partition's current contents.
func (e *Emulator) Partition(name string) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, ok := e.partitions[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}
