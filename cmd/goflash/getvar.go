package main

import (
	"fmt"
	"sort"

	"github.com/calyptra/goflash/internal/fastboot"
	"github.com/spf13/cobra"
)

func getvarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "getvar <name>",
		Short: "Read a bootloader variable",
		Long: `Read a bootloader variable and print its value.

The name all enumerates every variable the device reports, like the
getvars command.

Examples:
  goflash getvar version
  goflash getvar max-download-size
  goflash getvar all`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			cli := fastboot.NewClient(conn, fastboot.ClientOpts{})
			defer cli.Close()

			if args[0] == fastboot.VarAll {
				return listVars(cmd, cli)
			}

			value, err := cli.GetVar(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		},
	}
}

func getvarsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "getvars",
		Short: "List every bootloader variable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			cli := fastboot.NewClient(conn, fastboot.ClientOpts{})
			defer cli.Close()

			return listVars(cmd, cli)
		},
	}
}

// listVars prints the device's variables as sorted name: value lines
func listVars(cmd *cobra.Command, cli *fastboot.Client) error {
	vars, err := cli.GetAllVars(cmd.Context())
	if err != nil {
		return err
	}

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s: %s\n", name, vars[name])
	}
	return nil
}
