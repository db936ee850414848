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

// Package link provides a synchronous byte I/O interface to a serial
// bootloader. Everything happens on the caller's goroutine: a write of one
// byte, then a read of one byte with a timeout. The serial port object is
// not threadsafe, and the bootloader only ever answers what it was sent, so
// there is nothing to gain from a reader goroutine.
//
// Opening the port asserts DTR and RTS. Many boards wire one of those to
// reset or to a boot-mode strap, so Release must be called before Close on
// every path out of a session.
package link

import (
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

const (
	DefaultDevice      = "/dev/ttyUSB0"
	DefaultBaudRate    = 115200
	DefaultReadTimeout = time.Second
)

// Config describes the serial line. Data bits (8), stop bits (1) and flow
// control (none) are fixed by the bootloader.
type Config struct {
	Device      string
	BaudRate    int
	Parity      serial.Parity
	ReadTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Device:      DefaultDevice,
		BaudRate:    DefaultBaudRate,
		Parity:      serial.NoParity,
		ReadTimeout: DefaultReadTimeout,
	}
}

func (c Config) mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: 8,
		Parity:   c.Parity,
		StopBits: serial.OneStopBit,
	}
}

// ParseParity maps a flag value to a parity setting.
func ParseParity(s string) (serial.Parity, error) {
	switch strings.ToLower(s) {
	case "", "none", "n":
		return serial.NoParity, nil
	case "even", "e":
		return serial.EvenParity, nil
	case "odd", "o":
		return serial.OddParity, nil
	}
	return serial.NoParity, fmt.Errorf("unknown parity %q (want none, even or odd)", s)
}

// ParityName is the inverse of ParseParity.
func ParityName(p serial.Parity) string {
	switch p {
	case serial.NoParity:
		return "none"
	case serial.EvenParity:
		return "even"
	case serial.OddParity:
		return "odd"
	}
	return fmt.Sprintf("parity(%d)", int(p))
}

// NoResponseError is returned by ReadFor when nothing arrives in time.
type NoResponseError time.Duration

func (nre NoResponseError) Error() string {
	return fmt.Sprintf("read from target: no response after %v", time.Duration(nre))
}

func (nre NoResponseError) Timeout() bool {
	return true
}

// Link is an open serial line to the target.
type Link struct {
	port    serial.Port
	config  Config
	log     logrus.FieldLogger
	timeout time.Duration // last timeout handed to the port
}

// Open opens the device, raises DTR and RTS and throws away anything
// already sitting in either buffer.
func Open(cfg Config, log logrus.FieldLogger) (*Link, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	port, err := serial.Open(cfg.Device, cfg.mode())
	if err != nil {
		if !Exists(cfg.Device) {
			return nil, errors.Wrapf(err, "open %s (not a serial port on this host)", cfg.Device)
		}
		return nil, errors.Wrapf(err, "open %s", cfg.Device)
	}
	l := newLink(port, cfg, log)

	for _, step := range []struct {
		what string
		fn   func() error
	}{
		{"set DTR", func() error { return port.SetDTR(true) }},
		{"set RTS", func() error { return port.SetRTS(true) }},
		{"flush input", port.ResetInputBuffer},
		{"flush output", port.ResetOutputBuffer},
	} {
		if err := step.fn(); err != nil {
			port.Close()
			return nil, errors.Wrapf(err, "%s: %s", cfg.Device, step.what)
		}
	}

	l.log.WithFields(logrus.Fields{
		"baud":   cfg.BaudRate,
		"parity": ParityName(cfg.Parity),
	}).Debug("serial port is open")
	return l, nil
}

func newLink(port serial.Port, cfg Config, log logrus.FieldLogger) *Link {
	// -1 forces the first read to program the port's timeout.
	return &Link{port: port, config: cfg, log: log.WithField("device", cfg.Device), timeout: -1}
}

// Config returns the settings the link was opened with.
func (l *Link) Config() Config {
	return l.config
}

// ReadFor reads one byte, waiting at most timeout.
func (l *Link) ReadFor(timeout time.Duration) (byte, error) {
	return l.readByte(timeout)
}

// Read reads one byte using the configured read timeout.
func (l *Link) Read() (byte, error) {
	return l.readByte(l.config.ReadTimeout)
}

// Write writes one byte.
func (l *Link) Write(b byte) error {
	return l.writeByte(b)
}

// ResetInput discards bytes received but not yet read.
func (l *Link) ResetInput() error {
	if l.port == nil {
		return errors.New("flush input: port not open")
	}
	return errors.Wrap(l.port.ResetInputBuffer(), "flush input")
}

// Release drops DTR and RTS. Both are attempted even if the first fails.
func (l *Link) Release() error {
	if l.port == nil {
		return errors.New("release: port not open")
	}
	errDTR := l.port.SetDTR(false)
	errRTS := l.port.SetRTS(false)
	if errDTR != nil {
		return errors.Wrap(errDTR, "clear DTR")
	}
	if errRTS != nil {
		return errors.Wrap(errRTS, "clear RTS")
	}
	l.log.Debug("control lines released")
	return nil
}

// Close closes the port. It does not release the control lines.
func (l *Link) Close() error {
	return l.closeSerialPort()
}

// Implementation

// Errors at this level are serious and mean the protocol has broken down
// or is about to.
func (l *Link) readByte(readTimeout time.Duration) (byte, error) {
	if l.port == nil {
		return 0, errors.New("read: port not open")
	}
	if readTimeout != l.timeout {
		if err := l.port.SetReadTimeout(readTimeout); err != nil {
			return 0, errors.Wrap(err, "set read timeout")
		}
		l.timeout = readTimeout
	}

	b := make([]byte, 1)
	var n int
	var err error

	// The loop is solely to handle EINTR, which the Go runtime's
	// preemption signals cause constantly.
	for {
		n, err = l.port.Read(b)
		if !isRetryableSyscallError(err) {
			break
		}
		if n != 0 {
			panic("bytes returned despite EINTR")
		}
	}
	if err != nil {
		return 0, errors.Wrap(err, "read")
	}
	if n == 0 {
		return 0, NoResponseError(readTimeout)
	}
	l.log.Debugf("read 0x%02X", b[0])
	return b[0], nil
}

func (l *Link) writeByte(toWrite byte) error {
	if l.port == nil {
		return errors.New("write: port not open")
	}
	l.log.Debugf("write 0x%02X", toWrite)
	b := []byte{toWrite}
	var n int
	var err error

	for {
		n, err = l.port.Write(b)
		if !isRetryableSyscallError(err) {
			break
		}
		if n != 0 {
			panic("bytes written despite EINTR")
		}
	}
	if err != nil {
		return errors.Wrap(err, "write")
	}
	if n != 1 {
		return errors.New("write consumed 0 bytes")
	}
	return nil
}

func (l *Link) closeSerialPort() error {
	if l.port == nil {
		return errors.New("internal error: close(): port not open")
	}
	if err := l.port.Close(); err != nil {
		l.log.WithError(err).Warn("close serial port")
		return err
	}
	l.log.Debug("serial port closed")
	l.port = nil
	return nil
}

func isRetryableSyscallError(err error) bool {
	const eIntr = 4
	if errno, ok := err.(syscall.Errno); ok {
		return errno == eIntr
	}
	return false
}
