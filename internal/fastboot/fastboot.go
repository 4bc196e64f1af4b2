// Package fastboot implements the host side of the fastboot wire protocol.
//
// Commands are short ASCII lines and every reply starts with a four byte
// prefix that decides how the exchange continues. Bulk payloads move in a
// separate data phase negotiated through the DATA reply. The package talks
// to a device through a transport.Conn and never retries on its own: a
// failed exchange is reported to the caller as is.
package fastboot

// Wire limits for a single command or reply transfer.
const (
	MaxCommandSize  = 64 // longest command line a device accepts
	MaxResponseSize = 64 // reply prefix plus up to 60 bytes of text
)

const (
	replyPrefixSize = 4
	dataLengthSize  = 8 // hex digits following the DATA prefix
)

// Reply classification taken from the 4-byte prefix
type ReplyKind uint8

const (
	ReplyOkay ReplyKind = 1 // command finished, operation complete
	ReplyFail ReplyKind = 2 // command failed, reason in the text
	ReplyData ReplyKind = 3 // device ready for a data phase of Size bytes
	ReplyInfo ReplyKind = 4 // informative message, more replies follow
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyOkay:
		return "OKAY"
	case ReplyFail:
		return "FAIL"
	case ReplyData:
		return "DATA"
	case ReplyInfo:
		return "INFO"
	default:
		return "UNKNOWN"
	}
}
