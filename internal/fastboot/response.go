package fastboot

import (
	"fmt"
	"strconv"
)

// Response is one parsed device reply.
type Response struct {
	Kind ReplyKind
	Text string // OKAY, FAIL and INFO payload
	Size uint32 // DATA byte count
}

// UnmarshalResponse parses a single reply transfer received from the device.
func UnmarshalResponse(data []byte) (*Response, error) {
	if len(data) < replyPrefixSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrResponseSize, len(data))
	}

	rest := data[replyPrefixSize:]
	switch string(data[:replyPrefixSize]) {
	case "OKAY":
		return &Response{Kind: ReplyOkay, Text: string(rest)}, nil
	case "FAIL":
		return &Response{Kind: ReplyFail, Text: string(rest)}, nil
	case "INFO":
		return &Response{Kind: ReplyInfo, Text: string(rest)}, nil
	case "DATA":
		if len(rest) != dataLengthSize {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDataLength, rest)
		}
		size, err := strconv.ParseUint(string(rest), 16, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDataLength, rest)
		}
		return &Response{Kind: ReplyData, Size: uint32(size)}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrInvalidReply, data[:replyPrefixSize])
}

// Marshal renders the reply the way a device puts it on the wire.
func (r *Response) Marshal() ([]byte, error) {
	switch r.Kind {
	case ReplyOkay, ReplyFail, ReplyInfo:
		if len(r.Text) > MaxResponseSize-replyPrefixSize {
			return nil, fmt.Errorf("%w: %d bytes of text", ErrResponseSize, len(r.Text))
		}
		return []byte(r.Kind.String() + r.Text), nil
	case ReplyData:
		return []byte(fmt.Sprintf("DATA%08x", r.Size)), nil
	}
	return nil, fmt.Errorf("%w: kind %d", ErrInvalidReply, r.Kind)
}
