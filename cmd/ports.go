/*
Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gmofishsauce/picload/pkg/link"
)

var usbOnly bool

// portsCmd represents the ports command
var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long: `Ports lists the serial ports on this machine with the USB vendor and
product IDs of the adapters behind them, which is usually the quickest
way to find the --port to use.`,

	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := link.Ports()
		if err != nil {
			return err
		}
		n := 0
		for _, p := range ports {
			if usbOnly && !p.IsUSB {
				continue
			}
			fmt.Println(p)
			n++
		}
		if n == 0 {
			fmt.Println("no serial ports found")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().BoolVar(&usbOnly, "usb", false, "only list USB serial adapters")
}
