package main

import (
	"github.com/calyptra/goflash/internal/emulator"
	"github.com/calyptra/goflash/internal/transport"
	"github.com/spf13/cobra"
)

func emulateCmd() *cobra.Command {
	var (
		host        string
		port        uint16
		maxDownload uint32
		vars        map[string]string
	)

	cmd := &cobra.Command{
		Use:   "emulate",
		Short: "Run a fastboot device emulator",
		Long: `Run an in-process fastboot device on a TCP port.

The emulator answers getvar, stages downloads, and expands flashed
sparse images into in-memory partitions. It gives the other commands
a target when no hardware is around.

Examples:
  goflash emulate
  goflash emulate --port 5554 --var product=bench --var version-bootloader=0.4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			emu := emulator.NewEmulator(emulator.EmulatorOpts{
				Host:        host,
				Port:        port,
				MaxDownload: maxDownload,
				Vars:        vars,
			})
			return emu.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Interface to bind")
	cmd.Flags().Uint16Var(&port, "port", transport.DefaultPortTCP, "Port to listen on")
	cmd.Flags().Uint32Var(&maxDownload, "max-download", 0, "Download buffer size in bytes")
	cmd.Flags().StringToStringVar(&vars, "var", nil, "Seed a bootloader variable (name=value)")

	return cmd
}
