package main

import (
	"github.com/spf13/cobra"
)

func rebootCmd() *cobra.Command {
	var bootloader bool

	cmd := &cobra.Command{
		Use:   "reboot",
		Short: "Restart the device",
		Long: `Restart the device into the normal OS, or with --bootloader back
into fastboot mode. The device drops the connection right after
acknowledging.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			cli := newClient(conn)
			defer cli.Close()

			if bootloader {
				return cli.RebootBootloader(cmd.Context())
			}
			return cli.Reboot(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&bootloader, "bootloader", false, "Reboot back into the bootloader")

	return cmd
}
