package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func rawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "raw <command>...",
		Short: "Send a free form command line",
		Long: `Send a command line the typed commands do not cover, such as oem
extensions, and print the reply.

Examples:
  goflash raw oem device-info
  goflash raw "oem unlock"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			cli := newClient(conn)
			defer cli.Close()

			value, err := cli.Raw(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if value != "" {
				fmt.Println(value)
			}
			return nil
		},
	}
}
