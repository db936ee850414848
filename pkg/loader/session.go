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

// Package loader drives the byte-echo bootloader protocol.
//
// The target announces itself with SyncByte. The host answers HelloByte and
// from then on writes program memory one byte at a time, starting at
// address 0 and never moving backwards. Every byte must be acknowledged
// before the next is sent, and the acknowledgments alternate between the
// two AckBytes so that a lost or duplicated byte is noticed immediately.
// Gaps in the image are filled, and the upload is padded to a whole block.
//
// Nothing at or above the protected boundary is ever transmitted: the
// bootloader lives there.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gmofishsauce/picload/pkg/ihex"
	"github.com/sirupsen/logrus"
)

// Channel is the serial line as the session sees it.
type Channel interface {
	// ReadFor reads one byte. When nothing arrives in time the error
	// must satisfy interface{ Timeout() bool } and report true.
	ReadFor(timeout time.Duration) (byte, error)
	Write(b byte) error
	// ResetInput discards anything received and not yet read.
	ResetInput() error
	// Release drops the control lines that hold the target in the
	// bootloader.
	Release() error
}

// ChunkSource yields chunks in file order and io.EOF at the end.
// *ihex.Image is one.
type ChunkSource interface {
	Next() (ihex.Chunk, error)
}

// ChunkSlice is a ChunkSource over a slice. It consumes itself.
type ChunkSlice []ihex.Chunk

func (s *ChunkSlice) Next() (ihex.Chunk, error) {
	if len(*s) == 0 {
		return ihex.Chunk{}, io.EOF
	}
	c := (*s)[0]
	*s = (*s)[1:]
	return c, nil
}

type State int

const (
	Disconnected State = iota
	Connected
	Streaming
	Finished
	Aborted
)

var stateNames = [...]string{"disconnected", "connected", "streaming", "finished", "aborted"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Finished || s == Aborted
}

// Parity selects the acknowledgment expected for the next byte.
type Parity uint8

// Next returns the parity for the byte after this one.
func (p Parity) Next() Parity {
	return p ^ 1
}

// Ack returns the acknowledgment byte for this parity.
func (p Parity) Ack() byte {
	return AckBytes[p&1]
}

// Session is one upload over one channel. It is not safe for concurrent use.
type Session struct {
	ch     Channel
	config Config
	log    logrus.FieldLogger

	state     State
	connected bool
	cursor    uint32
	parity    Parity
	abort     *AbortError
	released  bool

	line    int // chunk being streamed, 0 outside chunks
	phase   string
	payload int
	filler  int
	total   uint32
	started time.Time
}

func NewSession(ch Channel, opts ...Option) *Session {
	cfg := newConfig(opts)
	return &Session{
		ch:     ch,
		config: cfg,
		log:    cfg.Logger,
		phase:  "connecting",
	}
}

func (s *Session) State() State { return s.state }
func (s *Session) Connected() bool { return s.connected }
func (s *Session) Cursor() uint32 { return s.cursor }
func (s *Session) Parity() Parity { return s.parity }
func (s *Session) PayloadBytes() int { return s.payload }
func (s *Session) FillerBytes() int { return s.filler }
func (s *Session) Config() Config { return s.config }

// Err returns the abort that ended the session, or nil.
func (s *Session) Err() error {
	if s.abort == nil {
		return nil
	}
	return s.abort
}

// Connect waits for the target's sync byte, answers with the hello byte
// and discards whatever else the target sent while it was waiting.
func (s *Session) Connect() error {
	switch {
	case s.state.Terminal():
		return s.closed()
	case s.state != Disconnected:
		return ErrAlreadyConnected
	}
	s.started = time.Now()

	b, err := s.ch.ReadFor(s.config.ReadTimeout)
	if err != nil {
		if isTimeout(err) {
			return s.fail(&AbortError{Reason: SyncLost, Expected: SyncByte, NoReply: true})
		}
		return s.fail(&AbortError{Reason: ChannelError, Err: err})
	}
	if b != SyncByte {
		return s.fail(&AbortError{Reason: SyncLost, Expected: SyncByte, Received: b})
	}

	s.connected = true
	s.state = Connected
	s.log.Debug("target is in the bootloader")

	if err := s.SendByte(HelloByte, 0); err != nil {
		return err
	}
	if err := s.ch.ResetInput(); err != nil {
		return s.fail(&AbortError{Reason: ChannelError, Err: err})
	}
	s.log.Info("connected")
	return nil
}

// SendByte writes one byte destined for address and waits for its
// acknowledgment. Sync bytes the target repeats before acknowledging are
// skipped. Addresses at or above the boundary are refused before anything
// is written.
func (s *Session) SendByte(b byte, address uint32) error {
	if err := s.usable(); err != nil {
		return err
	}
	if address >= s.config.Boundary {
		return s.fail(&AbortError{Reason: ProtectedRegionViolation, Line: s.line, Address: address})
	}
	if err := s.ch.Write(b); err != nil {
		return s.fail(&AbortError{Reason: ChannelError, Line: s.line, Address: address, Err: err})
	}

	want := s.parity.Ack()
	for echoed := 0; ; echoed++ {
		got, err := s.ch.ReadFor(s.config.ReadTimeout)
		if err != nil {
			if isTimeout(err) {
				return s.fail(&AbortError{Reason: SyncBreak, Line: s.line, Address: address, Expected: want, NoReply: true})
			}
			return s.fail(&AbortError{Reason: ChannelError, Line: s.line, Address: address, Err: err})
		}
		if got == SyncByte {
			if echoed >= s.config.MaxSyncEcho {
				return s.fail(&AbortError{Reason: SyncBreak, Line: s.line, Address: address, Expected: want, Received: got})
			}
			continue
		}
		if got != want {
			return s.fail(&AbortError{Reason: SyncBreak, Line: s.line, Address: address, Expected: want, Received: got})
		}
		break
	}
	s.parity = s.parity.Next()
	return nil
}

// SendCode streams the chunks of src. The first chunk of a kind other than
// Data ends streaming; a kind outside the known set aborts. After the last
// chunk the upload is padded to a whole block unless nothing was written.
func (s *Session) SendCode(ctx context.Context, src ChunkSource) error {
	switch {
	case s.state.Terminal():
		return s.closed()
	case s.state != Connected:
		return ErrNotConnected
	}
	s.state = Streaming
	s.phase = "streaming"

	for {
		c, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return s.fail(&AbortError{Reason: InvalidImage, Address: s.cursor, Err: err})
		}
		s.line = c.Line

		if !c.Kind.Known() {
			return s.fail(&AbortError{Reason: UnknownRecordKind, Line: c.Line, Address: c.Address, Kind: c.Kind})
		}
		if c.Kind != ihex.Data {
			s.log.WithFields(logrus.Fields{"line": c.Line, "kind": c.Kind.String()}).Info("end of program data")
			break
		}
		if c.Address < s.cursor {
			return s.fail(&AbortError{Reason: AddressRegression, Line: c.Line, Address: c.Address, Cursor: s.cursor})
		}
		s.log.WithFields(logrus.Fields{"line": c.Line, "address": fmt.Sprintf("0x%05X", c.Address), "size": len(c.Data)}).Debug("chunk")

		if err := s.padTo(ctx, c.Address); err != nil {
			return err
		}
		for _, b := range c.Data {
			if err := s.put(ctx, b); err != nil {
				return err
			}
			s.payload++
			s.report()
		}
	}

	s.line = 0
	if s.cursor > 0 {
		s.phase = "padding"
		if err := s.padTo(ctx, alignUp(s.cursor, s.config.BlockSize)); err != nil {
			return err
		}
	}

	s.state = Finished
	s.phase = "complete"
	s.report()
	s.log.WithFields(logrus.Fields{
		"cursor":  fmt.Sprintf("0x%05X", s.cursor),
		"payload": s.payload,
		"filler":  s.filler,
	}).Info("upload complete")
	return nil
}

// Close releases the channel's control lines. It may be called more than
// once and in any state; only the first call touches the channel.
func (s *Session) Close() error {
	if s.released {
		return nil
	}
	s.released = true
	if err := s.ch.Release(); err != nil {
		s.log.WithError(err).Warn("release control lines")
		return err
	}
	return nil
}

// Implementation

func (s *Session) padTo(ctx context.Context, address uint32) error {
	for s.cursor < address {
		if err := s.put(ctx, s.config.Filler[s.cursor%uint32(len(s.config.Filler))]); err != nil {
			return err
		}
		s.filler++
		s.report()
	}
	return nil
}

// put sends one byte at the cursor and advances it.
func (s *Session) put(ctx context.Context, b byte) error {
	if err := ctx.Err(); err != nil {
		return s.fail(&AbortError{Reason: Cancelled, Line: s.line, Address: s.cursor, Err: err})
	}
	if err := s.SendByte(b, s.cursor); err != nil {
		return err
	}
	s.cursor++
	return nil
}

func (s *Session) usable() error {
	switch s.state {
	case Connected, Streaming:
		return nil
	case Disconnected:
		return ErrNotConnected
	}
	return s.closed()
}

func (s *Session) closed() error {
	if s.abort != nil {
		return s.abort
	}
	return ErrSessionClosed
}

func (s *Session) fail(e *AbortError) error {
	s.state = Aborted
	s.abort = e
	s.log.WithFields(logrus.Fields{"reason": e.Reason.String(), "cursor": fmt.Sprintf("0x%05X", s.cursor)}).Debug("session aborted")
	return e
}

func (s *Session) report() {
	if s.config.Progress == nil {
		return
	}
	s.config.Progress(Progress{
		Phase:   s.phase,
		Line:    s.line,
		Cursor:  s.cursor,
		Payload: s.payload,
		Filler:  s.filler,
		Total:   s.total,
		Elapsed: time.Since(s.started),
	})
}

func alignUp(n, block uint32) uint32 {
	if r := n % block; r != 0 {
		return n + block - r
	}
	return n
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
