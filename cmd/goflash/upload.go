package main

import (
	"fmt"
	"os"

	"github.com/calyptra/goflash/internal/utils"
	"github.com/spf13/cobra"
)

func uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Pull staged data from the device into a file",
		Long: `Receive the data the device has staged for upload and write it to
a file. What is staged depends on the bootloader, a previous oem
command usually sets it up.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			cli := newClient(conn)
			defer cli.Close()

			out, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer out.Close()

			received, err := cli.Upload(cmd.Context(), out)
			if err != nil {
				return err
			}

			fmt.Printf("Received %s into %s\n", utils.DisplayBi(received), args[0])
			return nil
		},
	}
}
