package main

import (
	"fmt"
	"os"
	"time"

	"github.com/calyptra/goflash/internal/flasher"
	"github.com/calyptra/goflash/internal/utils"
	"github.com/spf13/cobra"
)

func flashCmd() *cobra.Command {
	var maxDownload uint32

	cmd := &cobra.Command{
		Use:   "flash <partition> <image>",
		Short: "Write an image file to a partition",
		Long: `Write an image file to a partition.

Sparse images are recognized by their magic. Images larger than the
device download buffer are split into parts, sparse ones on chunk
boundaries and raw ones on 4096 byte block boundaries, and each part
is staged and flashed in turn.

Examples:
  goflash flash boot boot.img
  goflash flash super super.simg
  goflash flash --max-download 0x4000000 vendor vendor.img`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(cmd.Context())
			if err != nil {
				return err
			}

			opts := flasher.FlasherOpts{
				OnInfo: func(message string) {
					fmt.Fprintf(os.Stderr, "(bootloader) %s\n", message)
				},
				OnProgress: func(transferred, total uint64) {
					fmt.Fprintf(os.Stderr, "\r  %s / %s", utils.DisplayBi(transferred), utils.DisplayBi(total))
					if transferred >= total {
						fmt.Fprintln(os.Stderr)
					}
				},
			}
			if maxDownload > 0 {
				opts.MaxDownload = utils.Ptr(maxDownload)
			}
			if cfg.ChunkSize > 0 {
				opts.ChunkSize = utils.Ptr(cfg.ChunkSize)
			}

			f, err := flasher.NewFlasher(cmd.Context(), conn, opts)
			if err != nil {
				conn.Close()
				return err
			}
			defer f.Close()

			start := time.Now()
			if err := f.FlashFile(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}

			sent := f.Stats().GetBytesSent()
			elapsed := time.Since(start)
			fmt.Printf("Finished %s: %s in %s (%s)\n",
				args[0], utils.DisplayBi(sent), elapsed.Round(time.Millisecond), utils.DisplayBiPS(sent, elapsed))
			return nil
		},
	}

	cmd.Flags().Uint32Var(&maxDownload, "max-download", 0, "Override the device download buffer size in bytes")

	return cmd
}
