// Package transport abstracts the bulk transfer channel a fastboot
// conversation runs over. Backends implement Conn for open connections and
// Device/Enumerator for discovery; the protocol layer stays unaware of
// whether bytes move over USB or TCP.
package transport

import "context"

// Conn is one open connection to a fastboot device. A single Send submits
// one outbound transfer, a single Receive completes one inbound transfer.
// Implementations bound the blocking time of each call by the context
// deadline plus their own configured timeout.
type Conn interface {
	// Send writes data as one transfer
	Send(ctx context.Context, data []byte) error

	// Receive reads one transfer of at most max bytes
	Receive(ctx context.Context, max int) ([]byte, error)

	Close() error
}

// Device is an attached device that can be opened for a fastboot session
type Device interface {
	// ID is a stable identifier, such as a serial number or address
	ID() string

	// Open claims the device and returns a connection to it. A device
	// already claimed by another host reports ErrBusy.
	Open(ctx context.Context) (Conn, error)
}

// Enumerator lists the currently attached devices
type Enumerator interface {
	Devices(ctx context.Context) ([]Device, error)
}

// EnumeratorFunc adapts a function to the Enumerator interface
type EnumeratorFunc func(ctx context.Context) ([]Device, error)

func (f EnumeratorFunc) Devices(ctx context.Context) ([]Device, error) {
	return f(ctx)
}
