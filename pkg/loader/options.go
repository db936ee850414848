/*
Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package loader

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Protocol bytes.
const (
	SyncByte  byte = 'g' // sent by the target when it is ready
	HelloByte byte = 'r' // first byte sent by the host
)

// AckBytes are the acknowledgments, alternating starting with the first.
var AckBytes = [2]byte{'y', 'x'}

// DefaultFiller is written into gaps. It is the erased state of flash.
var DefaultFiller = []byte{0xFF, 0xFF}

const (
	DefaultBlockSize         = 64
	DefaultProtectedBoundary = 0x7C00
	DefaultReadTimeout       = time.Second
	DefaultMaxSyncEcho       = 1024
)

// Config holds the session configuration.
type Config struct {
	// Boundary is the first address of the bootloader. Nothing at or
	// above it is ever transmitted.
	Boundary uint32

	// Filler is repeated into gaps, indexed by the cursor.
	Filler []byte

	// BlockSize is the target's write block. The upload is padded to a
	// multiple of it.
	BlockSize uint32

	// ReadTimeout bounds every read from the target.
	ReadTimeout time.Duration

	// MaxSyncEcho bounds the sync bytes skipped while waiting for one
	// acknowledgment.
	MaxSyncEcho int

	Logger   logrus.FieldLogger
	Progress ProgressCallback
}

func defaultConfig() Config {
	return Config{
		Boundary:    DefaultProtectedBoundary,
		Filler:      DefaultFiller,
		BlockSize:   DefaultBlockSize,
		ReadTimeout: DefaultReadTimeout,
		MaxSyncEcho: DefaultMaxSyncEcho,
	}
}

func newConfig(opts []Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Filler) == 0 {
		cfg.Filler = DefaultFiller
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if cfg.MaxSyncEcho <= 0 {
		cfg.MaxSyncEcho = DefaultMaxSyncEcho
	}
	if cfg.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		cfg.Logger = l
	}
	return cfg
}

// Option is a functional option for configuring a Session.
type Option func(*Config)

// WithBoundary sets the first protected address.
func WithBoundary(addr uint32) Option {
	return func(c *Config) {
		c.Boundary = addr
	}
}

// WithFiller sets the gap filler pattern. An empty pattern means the default.
func WithFiller(pattern ...byte) Option {
	return func(c *Config) {
		c.Filler = append([]byte(nil), pattern...)
	}
}

// WithBlockSize sets the alignment of the final padding.
func WithBlockSize(n uint32) Option {
	return func(c *Config) {
		c.BlockSize = n
	}
}

// WithReadTimeout sets the timeout for each read from the target.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ReadTimeout = d
	}
}

// WithMaxSyncEcho bounds the sync bytes tolerated before an acknowledgment.
func WithMaxSyncEcho(n int) Option {
	return func(c *Config) {
		c.MaxSyncEcho = n
	}
}

// WithLogger sets the logger. Without one the session is silent.
//
// Example:
//
//	rep, err := loader.Run(ctx, lk, chunks,
//	    loader.WithLogger(logrus.WithField("file", path)))
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// WithProgress sets a callback that is called after every byte the target
// acknowledges.
func WithProgress(cb ProgressCallback) Option {
	return func(c *Config) {
		c.Progress = cb
	}
}

// Progress is passed to a ProgressCallback.
type Progress struct {
	// Phase is "connecting", "streaming", "padding" or "complete".
	Phase string

	Line    int    // source line of the chunk being sent, 0 while padding
	Cursor  uint32 // next address to be written
	Payload int    // program bytes acknowledged so far
	Filler  int    // filler bytes acknowledged so far

	// Total is the expected final cursor, or 0 if unknown.
	Total uint32

	Elapsed time.Duration
}

// ProgressCallback should return quickly; it runs between bytes.
type ProgressCallback func(Progress)
