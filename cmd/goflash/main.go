package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calyptra/goflash/internal/fastboot"
	"github.com/calyptra/goflash/internal/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
}

var (
	cfg *Config

	flagAddr    string
	flagTimeout time.Duration
	flagWait    uint
	flagVerbose bool
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd := &cobra.Command{
		Use:   "goflash",
		Short: "Talk to fastboot devices over TCP",
		Long: `goflash drives devices that are sitting in fastboot mode.

It covers the everyday verbs (getvar, flash, erase, reboot), stages
large images through the download buffer in parts, and bundles a
sparse image toolbox. An emulated device is built in for working
without hardware.

Defaults come from GOFLASH_* environment variables; flags override
them per invocation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flagAddr, "addr", "a", "", "Device address, host[:port]")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 0, "Per transfer I/O timeout")
	rootCmd.PersistentFlags().UintVarP(&flagWait, "wait", "w", 0, "Poll for the device this many rounds before giving up")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(
		devicesCmd(),
		getvarCmd(),
		getvarsCmd(),
		flashCmd(),
		eraseCmd(),
		rebootCmd(),
		rawCmd(),
		uploadCmd(),
		sparseCmd(),
		emulateCmd(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// setup loads the environment config, folds in the persistent flags, and
// applies the log level before any command runs.
func setup(cmd *cobra.Command) error {
	var err error
	cfg, err = LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Root().PersistentFlags()
	if flags.Changed("addr") {
		cfg.Addr = flagAddr
	}
	if flags.Changed("timeout") {
		cfg.Timeout = flagTimeout
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}
	if flagVerbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Logger.Level(level)

	return nil
}

// connect opens the configured device, polling for it first when --wait
// asks for that.
func connect(ctx context.Context) (transport.Conn, error) {
	device := transport.NewDeviceTCP(cfg.Addr, cfg.Timeout)

	if flagWait > 0 {
		enum := &transport.EnumeratorTCP{Addrs: []string{cfg.Addr}, Timeout: cfg.Timeout}
		if _, err := transport.WaitDevice(ctx, enum, device.ID(), flagWait); err != nil {
			return nil, err
		}
	}

	return device.Open(ctx)
}

// newClient wires device INFO lines to stderr the way the platform tools
// render them
func newClient(conn transport.Conn) *fastboot.Client {
	return fastboot.NewClient(conn, fastboot.ClientOpts{
		OnInfo: func(message string) {
			fmt.Fprintf(os.Stderr, "(bootloader) %s\n", message)
		},
	})
}
