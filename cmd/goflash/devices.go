package main

import (
	"fmt"

	"github.com/calyptra/goflash/internal/transport"
	"github.com/spf13/cobra"
)

func devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices [addr...]",
		Short: "List reachable fastboot devices",
		Long: `Probe fastboot endpoints and list the ones that answer.

With no arguments the configured device address is probed. Each
reachable endpoint prints one line.

Examples:
  goflash devices
  goflash devices 10.0.0.17 10.0.0.18:5554`,
		RunE: func(cmd *cobra.Command, args []string) error {
			addrs := args
			if len(addrs) == 0 {
				addrs = []string{cfg.Addr}
			}

			enum := &transport.EnumeratorTCP{Addrs: addrs, Timeout: cfg.Timeout}
			devices, err := enum.Devices(cmd.Context())
			if err != nil {
				return err
			}

			for _, device := range devices {
				fmt.Printf("%s\tfastboot\n", device.ID())
			}
			return nil
		},
	}
}
