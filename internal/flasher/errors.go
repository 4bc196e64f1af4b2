package flasher

import "errors"

var (
	ErrTooLarge = errors.New("image exceeds the download buffer")
)
