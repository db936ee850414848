/*
Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gmofishsauce/picload/pkg/ihex"
	"github.com/gmofishsauce/picload/pkg/link"
	"github.com/gmofishsauce/picload/pkg/loader"
	"github.com/gmofishsauce/picload/pkg/monitor"
)

var (
	boundary     uint32
	blockSize    uint32
	filler       []byte
	maxSyncEcho  int
	noProgress   bool
	thenMonitor  bool
	monitorBytes bool
)

// uploadCmd represents the upload command
var uploadCmd = &cobra.Command{
	Use:   "upload hexFile",
	Short: "Upload an Intel HEX file through the serial bootloader",
	Long: `Upload parses and checks the whole file, then opens the serial port,
waits for the bootloader's sync byte and streams the program one
acknowledged byte at a time from address 0. Gaps are filled with the
filler pattern and the upload is padded to a whole block.

A file that does not parse is rejected before the port is opened. If the
upload stops part way the target holds a partial program; reset it into
the bootloader and upload again.

With --monitor the serial line stays open after a successful upload and
everything the new program prints is shown, as "picload monitor" would.`,

	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := linkConfig()
		if err != nil {
			return err
		}
		ctx, stop := interruptible()
		defer stop()

		log := logFor(cmd).WithField("file", args[0])
		opts := []loader.Option{
			loader.WithBoundary(boundary),
			loader.WithBlockSize(blockSize),
			loader.WithFiller(filler...),
			loader.WithMaxSyncEcho(maxSyncEcho),
			loader.WithReadTimeout(cfg.ReadTimeout),
			loader.WithLogger(log),
		}
		bar := newUploadBar()
		if bar != nil {
			opts = append(opts, loader.WithProgress(bar.update))
		}

		var rep *loader.Report
		if thenMonitor {
			rep, err = uploadThenMonitor(ctx, args[0], cfg, log, opts)
		} else {
			rep, err = loader.Upload(ctx, args[0], cfg, opts...)
		}
		if bar != nil {
			bar.finish()
		}
		return reportUpload(rep, err)
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)

	f := uploadCmd.Flags()
	f.Uint32Var(&boundary, "boundary", loader.DefaultProtectedBoundary, "first address of the bootloader; nothing at or above it is sent")
	f.Uint32Var(&blockSize, "block", loader.DefaultBlockSize, "pad the upload to a multiple of this many bytes")
	f.BytesHexVar(&filler, "filler", loader.DefaultFiller, "gap filler pattern in hex")
	f.IntVar(&maxSyncEcho, "max-echo", loader.DefaultMaxSyncEcho, "sync bytes tolerated before each acknowledgment")
	f.BoolVar(&noProgress, "no-progress", false, "do not show a progress bar")
	f.BoolVarP(&thenMonitor, "monitor", "m", false, "monitor the serial line after the upload")
	f.BoolVarP(&monitorBytes, "detailed", "d", false, "with --monitor, show every byte received")
}

// uploadThenMonitor keeps the link open after the upload and hands it to
// the monitor, so nothing the new program prints first is lost.
func uploadThenMonitor(ctx context.Context, path string, cfg link.Config, log logrus.FieldLogger, opts []loader.Option) (*loader.Report, error) {
	records, err := ihex.ParseFile(path)
	if err != nil {
		return nil, err
	}
	chunks, err := ihex.Collect(ihex.NewSliceSource(records))
	if err != nil {
		return nil, err
	}

	lk, err := link.Open(cfg, log)
	if err != nil {
		return nil, err
	}
	defer lk.Close()

	rep, err := loader.Run(ctx, lk, chunks, opts...)
	rep.Records = len(records)
	if err != nil {
		return rep, err
	}
	fmt.Fprintln(os.Stderr, rep)
	fmt.Fprintln(os.Stderr, "monitoring, ^D or ^C to stop")

	input := monitor.NewInput(os.Stdin, log)
	return rep, monitor.New(lk, os.Stdout, input, log).Detailed(monitorBytes).Run(ctx)
}

func reportUpload(rep *loader.Report, err error) error {
	var abort *loader.AbortError
	switch {
	case err == nil:
		if !thenMonitor {
			fmt.Fprintln(os.Stderr, rep)
			fmt.Fprintln(os.Stderr, "upload complete, you can reboot the target")
		}
		return nil
	case errors.As(err, &abort):
		if rep != nil {
			fmt.Fprintln(os.Stderr, rep)
		}
		if abort.IsSafety() {
			fmt.Fprintln(os.Stderr, "the image reaches into the bootloader; nothing was written there")
		}
		fmt.Fprintln(os.Stderr, "the target holds a partial program; upload again before running it")
	}
	return err
}

// uploadBar drives a progress bar from loader progress reports. The
// bar is created on the first report, which carries the expected size.
type uploadBar struct {
	bar *progressbar.ProgressBar
}

func newUploadBar() *uploadBar {
	if noProgress || debug || !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	return &uploadBar{}
}

func (u *uploadBar) update(p loader.Progress) {
	if u.bar == nil {
		u.bar = progressbar.NewOptions64(int64(p.Total),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("uploading"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowBytes(true),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
		)
	}
	u.bar.Set64(int64(p.Cursor))
}

func (u *uploadBar) finish() {
	if u.bar != nil {
		u.bar.Finish()
	}
}
