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
	"errors"
	"fmt"

	"github.com/gmofishsauce/picload/pkg/ihex"
)

// Reason says why a session aborted.
type Reason int

const (
	// SyncLost: the target's sync byte never arrived during Connect.
	SyncLost Reason = iota + 1
	// SyncBreak: an acknowledgment was missing or wrong.
	SyncBreak
	// ProtectedRegionViolation: a write at or above the boundary was
	// requested. Nothing was transmitted for it.
	ProtectedRegionViolation
	// UnknownRecordKind: a chunk carried a kind outside the known set.
	UnknownRecordKind
	// ChannelError: the serial channel itself failed.
	ChannelError
	// AddressRegression: a chunk starts below the cursor, which the
	// target cannot rewind.
	AddressRegression
	// InvalidImage: the chunk source failed while streaming.
	InvalidImage
	// Cancelled: the caller's context ended the session.
	Cancelled
)

// Sentinels for errors.Is. An *AbortError matches the one for its Reason.
var (
	ErrSyncLost                 = errors.New("sync lost")
	ErrSyncBreak                = errors.New("sync broken")
	ErrProtectedRegionViolation = errors.New("protected region violation")
	ErrUnknownRecordKind        = errors.New("unknown record kind")
	ErrChannel                  = errors.New("channel error")
	ErrAddressRegression        = errors.New("address regression")
	ErrInvalidImage             = errors.New("invalid image")
	ErrCancelled                = errors.New("cancelled")

	// ErrNotConnected is returned, without aborting, by operations that
	// need a connected session.
	ErrNotConnected = errors.New("session is not connected")
	// ErrAlreadyConnected is returned by a second Connect.
	ErrAlreadyConnected = errors.New("session is already connected")
	// ErrSessionClosed is returned by operations on a finished session.
	ErrSessionClosed = errors.New("session is closed")
)

var sentinels = map[Reason]error{
	SyncLost:                 ErrSyncLost,
	SyncBreak:                ErrSyncBreak,
	ProtectedRegionViolation: ErrProtectedRegionViolation,
	UnknownRecordKind:        ErrUnknownRecordKind,
	ChannelError:             ErrChannel,
	AddressRegression:        ErrAddressRegression,
	InvalidImage:             ErrInvalidImage,
	Cancelled:                ErrCancelled,
}

func (r Reason) String() string {
	if e, ok := sentinels[r]; ok {
		return e.Error()
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// AbortError ends a session. Line is the source line of the chunk being
// streamed, or 0 outside streaming (the handshake, the final padding).
type AbortError struct {
	Reason   Reason
	Line     int
	Address  uint32
	Cursor   uint32 // AddressRegression only
	Kind     ihex.RecordKind
	Expected byte
	Received byte
	NoReply  bool // the read timed out, Received is meaningless
	Err      error
}

func (e *AbortError) where() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d, address 0x%05X", e.Line, e.Address)
	}
	return fmt.Sprintf("address 0x%05X", e.Address)
}

func (e *AbortError) received() string {
	if e.NoReply {
		return "no response"
	}
	return fmt.Sprintf("0x%02X", e.Received)
}

func (e *AbortError) Error() string {
	switch e.Reason {
	case SyncLost:
		return fmt.Sprintf("sync lost: expected 0x%02X from target, got %s", e.Expected, e.received())
	case SyncBreak:
		return fmt.Sprintf("sync broken @ %s: expected ack 0x%02X, got %s", e.where(), e.Expected, e.received())
	case ProtectedRegionViolation:
		return fmt.Sprintf("refusing to write protected memory @ %s", e.where())
	case UnknownRecordKind:
		return fmt.Sprintf("unknown record kind 0x%02X @ %s", uint8(e.Kind), e.where())
	case AddressRegression:
		return fmt.Sprintf("chunk @ %s is below the write cursor 0x%05X", e.where(), e.Cursor)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s @ %s: %v", e.Reason, e.where(), e.Err)
	}
	return fmt.Sprintf("%s @ %s", e.Reason, e.where())
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

func (e *AbortError) Is(target error) bool {
	return target != nil && sentinels[e.Reason] == target
}

// IsSafety reports whether the abort was the protected region guard, as
// opposed to a protocol or channel failure.
func (e *AbortError) IsSafety() bool {
	return e.Reason == ProtectedRegionViolation
}
