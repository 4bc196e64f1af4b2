package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func eraseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "erase <partition>",
		Short: "Wipe a partition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			cli := newClient(conn)
			defer cli.Close()

			if err := cli.Erase(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Erased %s\n", args[0])
			return nil
		},
	}
}
