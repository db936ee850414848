/*
Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gmofishsauce/picload/pkg/link"
)

var (
	portName    string
	baudRate    int
	parityName  string
	readTimeout time.Duration
	debug       bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "picload",
	Short: "Intel HEX uploader for the byte-echo serial bootloader",
	Long: `Picload writes Intel HEX firmware into a microcontroller through a
small serial bootloader. The bootloader announces itself with a single
sync byte and then acknowledges every program byte it is sent, so the
upload is slow but never silently wrong.

The bootloader occupies the top of program memory. Picload refuses to
send anything at or above its first address (see --boundary on upload).

Besides upload there are commands to list an image (view), convert it
(convert), talk to the target (monitor) and find the serial port (ports).`,

	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logrus.SetOutput(os.Stderr)
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000000",
		})
		if debug {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&portName, "port", "p", link.DefaultDevice, "serial device")
	pf.IntVarP(&baudRate, "baud", "b", link.DefaultBaudRate, "baud rate")
	pf.StringVar(&parityName, "parity", "none", "parity: none, even or odd")
	pf.DurationVar(&readTimeout, "timeout", link.DefaultReadTimeout, "how long to wait for each byte from the target")
	pf.BoolVar(&debug, "debug", false, "log every byte on the serial line")
}

// linkConfig collects the serial flags.
func linkConfig() (link.Config, error) {
	parity, err := link.ParseParity(parityName)
	if err != nil {
		return link.Config{}, err
	}
	return link.Config{
		Device:      portName,
		BaudRate:    baudRate,
		Parity:      parity,
		ReadTimeout: readTimeout,
	}, nil
}

// interruptible returns a context that ends on ^C, so the deferred
// cleanup of the serial line still runs.
func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func logFor(cmd *cobra.Command) logrus.FieldLogger {
	return logrus.WithField("cmd", cmd.Name())
}
