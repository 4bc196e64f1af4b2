package fastboot

import "fmt"

// Well known bootloader variable names.
const (
	// VarAll makes getvar enumerate every variable the bootloader knows.
	VarAll = "all"
	// VarMaxDownloadSize advertises the device's download buffer size.
	VarMaxDownloadSize = "max-download-size"
)

// Command is a single host-to-device request line.
type Command string

const (
	CmdUpload           Command = "upload"
	CmdReboot           Command = "reboot"
	CmdRebootBootloader Command = "reboot-bootloader"
)

// CmdGetVar asks for the value of one bootloader variable.
func CmdGetVar(name string) Command {
	return Command("getvar:" + name)
}

// CmdDownload announces a data phase of size bytes. The size is rendered
// as exactly eight hex digits.
func CmdDownload(size uint32) Command {
	return Command(fmt.Sprintf("download:%08x", size))
}

// CmdFlash writes the staged download into the named partition.
func CmdFlash(partition string) Command {
	return Command("flash:" + partition)
}

// CmdErase wipes the named partition.
func CmdErase(partition string) Command {
	return Command("erase:" + partition)
}

// Validate checks the line against the wire limits before it is sent.
func (c Command) Validate() error {
	if len(c) == 0 || len(c) > MaxCommandSize {
		return fmt.Errorf("%w: %d bytes", ErrCommandSize, len(c))
	}
	for i := 0; i < len(c); i++ {
		if c[i] < 0x20 || c[i] > 0x7e {
			return fmt.Errorf("%w: 0x%02x at offset %d", ErrCommandFormat, c[i], i)
		}
	}
	return nil
}
