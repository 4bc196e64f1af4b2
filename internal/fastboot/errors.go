package fastboot

import (
	"errors"
	"fmt"
)

var (
	ErrCommandSize       = errors.New("command exceeds the wire limit")
	ErrCommandFormat     = errors.New("command contains non-printable bytes")
	ErrResponseSize      = errors.New("invalid response size")
	ErrInvalidReply      = errors.New("unknown reply prefix")
	ErrInvalidDataLength = errors.New("malformed data length")
	ErrUnexpectedReply   = errors.New("unexpected reply")
	ErrUnusable          = errors.New("connection is unusable, reopen the device")
)

// RemoteError carries the reason text of a FAIL reply. The connection
// remains usable after one, the device simply refused the command.
type RemoteError struct {
	Reason string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("device reported failure: %s", e.Reason)
}

// DataSizeError indicates the device accepted a different data phase size
// than the host requested. No payload is sent when this happens.
type DataSizeError struct {
	Requested uint32
	Announced uint32
}

func (e *DataSizeError) Error() string {
	return fmt.Sprintf("device accepted %d bytes for a %d byte download",
		e.Announced, e.Requested)
}
