package transport

import "errors"

var (
	ErrNotFound    = errors.New("device not found")
	ErrBusy        = errors.New("device busy")
	ErrClosed      = errors.New("connection closed")
	ErrHandshake   = errors.New("handshake failed")
	ErrMessageSize = errors.New("message size exceeds limit")
)
