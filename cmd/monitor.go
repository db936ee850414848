/*
Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/gmofishsauce/picload/pkg/link"
	"github.com/gmofishsauce/picload/pkg/monitor"
)

var detailed bool

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Serial line monitor",
	Long: `Monitor opens the serial port, raising DTR and RTS as an upload does,
and copies everything the target sends to the standard output. Lines
typed on the terminal are sent to the target. End the session with ^D
or ^C; the control lines are dropped before the port is closed.`,

	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := linkConfig()
		if err != nil {
			return err
		}
		ctx, stop := interruptible()
		defer stop()

		log := logFor(cmd)
		lk, err := link.Open(cfg, log)
		if err != nil {
			return err
		}
		defer lk.Close()
		defer lk.Release()

		input := monitor.NewInput(os.Stdin, log)
		return monitor.New(lk, os.Stdout, input, log).Detailed(detailed).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVarP(&detailed, "detailed", "d", false, "show every byte received in binary, hex and decimal")
}
