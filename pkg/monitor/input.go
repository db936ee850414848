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

package monitor

import (
	"bufio"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// Input reads lines from the user without blocking the serial loop.
type Input struct {
	channel     chan string
	interactive bool
	log         logrus.FieldLogger
}

// NewInput starts reading r. Interactive is true when r is a terminal.
func NewInput(r io.Reader, log logrus.FieldLogger) *Input {
	interactive := false
	if f, ok := r.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	input := &Input{channel: make(chan string), interactive: interactive, log: log}
	go input.reader(r)
	return input
}

func (input *Input) Interactive() bool {
	return input.interactive
}

// Goroutine to consume the input and send it to a channel we later select
// upon. End of input closes the channel.
func (input *Input) reader(r io.Reader) {
	reader := bufio.NewReader(r)
	for {
		s, err := reader.ReadString('\n')
		if len(s) > 0 {
			input.channel <- s
		}
		if err != nil {
			if err != io.EOF {
				input.log.WithError(err).Warn("reading input")
			}
			close(input.channel)
			return
		}
	}
}

// get waits up to wait for a line. ok is false once the input has ended.
func (input *Input) get(wait time.Duration) (line string, ok bool) {
	select {
	case s, more := <-input.channel:
		return s, more
	case <-time.After(wait):
		return "", true
	}
}
