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
	"context"
	"fmt"
	"time"

	"github.com/gmofishsauce/picload/pkg/ihex"
	"github.com/gmofishsauce/picload/pkg/link"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Report summarizes an upload. It is returned even when the upload
// aborts, in which case it says how far the target got.
type Report struct {
	Records int // 0 when the caller supplied chunks
	Chunks  int
	Payload int
	Filler  int
	Cursor  uint32
	State   State
	Elapsed time.Duration
}

func (r *Report) String() string {
	return fmt.Sprintf("%s: %d bytes of program and %d of filler written, cursor 0x%05X, %v",
		r.State, r.Payload, r.Filler, r.Cursor, r.Elapsed.Round(time.Millisecond))
}

// PlannedEnd returns the cursor an upload of chunks will finish at when
// nothing goes wrong: the end of the data streamed before the first
// non-data chunk, rounded up to a whole block.
func PlannedEnd(chunks []ihex.Chunk, blockSize uint32) uint32 {
	var end uint32
	for _, c := range chunks {
		if c.Kind != ihex.Data {
			break
		}
		if c.End() > end {
			end = c.End()
		}
	}
	if end == 0 || blockSize == 0 {
		return end
	}
	return alignUp(end, blockSize)
}

// Run uploads chunks over an already open channel. The control lines are
// released before Run returns, whatever happens; the channel itself is
// left open for the caller.
func Run(ctx context.Context, ch Channel, chunks []ihex.Chunk, opts ...Option) (rep *Report, err error) {
	s := NewSession(ch, opts...)
	s.total = PlannedEnd(chunks, s.config.BlockSize)
	start := time.Now()

	defer func() {
		if rerr := s.Close(); rerr != nil && err == nil {
			err = errors.Wrap(rerr, "release control lines")
		}
		rep = &Report{
			Chunks:  len(chunks),
			Payload: s.payload,
			Filler:  s.filler,
			Cursor:  s.cursor,
			State:   s.state,
			Elapsed: time.Since(start),
		}
	}()

	if err = s.Connect(); err != nil {
		return nil, err
	}
	src := ChunkSlice(chunks)
	err = s.SendCode(ctx, &src)
	return nil, err
}

// openChannel is replaced in tests.
var openChannel = func(cfg link.Config, log logrus.FieldLogger) (channelCloser, error) {
	return link.Open(cfg, log)
}

type channelCloser interface {
	Channel
	Close() error
}

// Upload parses the file at path, opens the serial line described by cfg
// and uploads the image. A file that does not parse is rejected before the
// line is opened. The read timeout of cfg applies unless an option
// overrides it.
func Upload(ctx context.Context, path string, cfg link.Config, opts ...Option) (*Report, error) {
	records, err := ihex.ParseFile(path)
	if err != nil {
		return nil, err
	}
	chunks, err := ihex.Collect(ihex.NewSliceSource(records))
	if err != nil {
		return nil, err
	}

	if cfg.ReadTimeout > 0 {
		opts = append([]Option{WithReadTimeout(cfg.ReadTimeout)}, opts...)
	}
	log := newConfig(opts).Logger
	log.WithFields(logrus.Fields{
		"file":    path,
		"records": len(records),
		"chunks":  len(chunks),
	}).Info("image loaded")

	ch, err := openChannel(cfg, log)
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	rep, err := Run(ctx, ch, chunks, opts...)
	rep.Records = len(records)
	return rep, err
}
