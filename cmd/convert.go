/*
Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

*/
package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gmofishsauce/picload/pkg/ihex"
)

var (
	convertStart  uint32
	convertSize   uint32
	convertPad    uint8
	convertFormat string
	convertLine   uint8
)

// convertCmd represents the convert command
var convertCmd = &cobra.Command{
	Use:   "convert hexFile outFile",
	Short: "Convert an Intel HEX file to a raw binary or normalized HEX",
	Long: `Convert checks an Intel HEX file exactly as upload does and writes
the program image either as a raw binary, with gaps filled by --pad,
or as Intel HEX again with contiguous data merged into records of
--line bytes. The format follows the output file's extension (.bin or
.hex) unless --format is given.`,

	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		format := convertFormat
		if format == "" {
			format = strings.TrimPrefix(strings.ToLower(filepath.Ext(args[1])), ".")
		}
		if format != "bin" && format != "hex" {
			return fmt.Errorf("cannot tell the output format of %s; use --format bin or hex", args[1])
		}

		records, err := ihex.ParseFile(args[0])
		if err != nil {
			return err
		}
		chunks, err := ihex.Collect(ihex.NewSliceSource(records))
		if err != nil {
			return err
		}

		out, err := os.Create(args[1])
		if err != nil {
			return errors.Wrap(err, "create output")
		}
		w := bufio.NewWriter(out)
		if format == "bin" {
			err = ihex.WriteBinary(w, chunks, convertStart, convertSize, convertPad)
		} else {
			err = ihex.WriteHex(w, chunks, convertLine)
		}
		if err == nil {
			err = w.Flush()
		}
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(args[1])
			return err
		}
		logFor(cmd).WithFields(logrus.Fields{"records": len(records), "out": args[1]}).Info("converted")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)

	f := convertCmd.Flags()
	f.Uint32Var(&convertStart, "start", 0, "first address of a binary image")
	f.Uint32Var(&convertSize, "size", 0, "size of a binary image; 0 for up to the end of the data")
	f.Uint8Var(&convertPad, "pad", 0xFF, "value of unprogrammed bytes in a binary image")
	f.StringVar(&convertFormat, "format", "", "output format, bin or hex")
	f.Uint8Var(&convertLine, "line", ihex.DefaultLineLength, "data bytes per record of a hex image")
}
