/*
Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

*/
package cmd

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/gmofishsauce/picload/pkg/ihex"
	"github.com/gmofishsauce/picload/pkg/loader"
	"github.com/gmofishsauce/picload/pkg/viewer"
)

var (
	viewBoundary uint32
	viewDump     bool
)

// viewCmd represents the view command
var viewCmd = &cobra.Command{
	Use:   "view hexFile",
	Short: "List the contents of an Intel HEX file",
	Long: `View prints one line per record of an Intel HEX file: address and
other non-data records as "===" lines, data as "::: From ... to ..."
lines with the unprogrammed gaps between them, and the target of every
PIC18 GOTO instruction found at the start of a record. Data that reaches
the protected boundary is marked.

With --dump the program image is printed as a memory table instead.`,

	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if viewDump {
			records, err := ihex.ParseFile(args[0])
			if err != nil {
				return err
			}
			chunks, err := ihex.Collect(ihex.NewSliceSource(records))
			if err != nil {
				return err
			}
			return viewer.Dump(os.Stdout, chunks, 0xFF)
		}

		f, err := os.Open(args[0])
		if err != nil {
			return errors.Wrap(err, "open hex file")
		}
		defer f.Close()

		v := viewer.New(os.Stdout)
		v.Boundary = viewBoundary
		return v.View(ihex.NewReader(f))
	},
}

func init() {
	rootCmd.AddCommand(viewCmd)
	viewCmd.Flags().Uint32Var(&viewBoundary, "boundary", loader.DefaultProtectedBoundary, "mark data at or above this address; 0 to disable")
	viewCmd.Flags().BoolVar(&viewDump, "dump", false, "print the program image as a memory table")
}
