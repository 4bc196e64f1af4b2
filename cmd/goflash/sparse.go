package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/calyptra/goflash/internal/sparse"
	"github.com/calyptra/goflash/internal/utils"
	"github.com/spf13/cobra"
)

func sparseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sparse",
		Short: "Inspect and convert Android sparse images",
	}

	cmd.AddCommand(
		sparseInspectCmd(),
		sparseExpandCmd(),
		sparsePackCmd(),
	)

	return cmd
}

func sparseInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <image>",
		Short: "Print the header and chunk table of a sparse image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			d, err := sparse.NewDecoder(bufio.NewReader(file))
			if err != nil {
				return err
			}

			header := d.Header()
			fmt.Printf("block size: %d\n", header.BlockSize)
			fmt.Printf("blocks:     %d\n", header.Blocks)
			fmt.Printf("chunks:     %d\n", header.Chunks)
			fmt.Printf("expanded:   %s\n", utils.DisplayBi(uint64(header.TotalSize())))

			for i := 1; ; i++ {
				chunk, err := d.Next()
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Printf("%4d  %-9s  %6d blocks  %s\n",
					i, chunk.Type, chunk.ChunkSize, utils.DisplayBi(uint64(chunk.DataSize())))
			}
		},
	}
}

func sparseExpandCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expand <image> <output>",
		Short: "Expand a sparse image into a raw one",
		Long: `Expand a sparse image into the raw bytes it encodes. Don't-care
chunks come out as zeros.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			d, err := sparse.NewDecoder(bufio.NewReader(file))
			if err != nil {
				return err
			}

			out, err := os.Create(args[1])
			if err != nil {
				return err
			}
			defer out.Close()

			w := bufio.NewWriter(out)
			expanded, err := sparse.Expand(d, w)
			if err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Printf("Expanded %s into %s (%s)\n", args[0], args[1], utils.DisplayBi(uint64(expanded)))
			return nil
		},
	}
}

func sparsePackCmd() *cobra.Command {
	var blockSize uint32

	cmd := &cobra.Command{
		Use:   "pack <raw> <output>",
		Short: "Convert a raw image into a sparse one",
		Long: `Convert a raw image into a sparse one. Runs of zero blocks become
don't-care chunks and runs of blocks holding one repeating 4 byte
word become fill chunks. Input that ends short of a block boundary
is padded with zeros.

Examples:
  goflash sparse pack system.raw system.simg
  goflash sparse pack --block-size 512 boot.raw boot.simg`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			img, err := sparse.FromRaw(raw, blockSize)
			if err != nil {
				return err
			}

			out, err := os.Create(args[1])
			if err != nil {
				return err
			}
			defer out.Close()

			packed, err := img.WriteTo(out)
			if err != nil {
				return err
			}

			fmt.Printf("Packed %s: %s down to %s\n",
				args[1], utils.DisplayBi(uint64(len(raw))), utils.DisplayBi(uint64(packed)))
			return nil
		},
	}

	cmd.Flags().Uint32Var(&blockSize, "block-size", sparse.DefaultBlockSize, "Block size in bytes, a multiple of 4")

	return cmd
}
