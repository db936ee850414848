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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gmofishsauce/picload/pkg/ihex"
	"github.com/gmofishsauce/picload/pkg/link"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHex(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fw.hex")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func withChannel(t *testing.T, tgt *fakeTarget) *[]link.Config {
	t.Helper()
	var opened []link.Config
	saved := openChannel
	openChannel = func(cfg link.Config, _ logrus.FieldLogger) (channelCloser, error) {
		opened = append(opened, cfg)
		return tgt, nil
	}
	t.Cleanup(func() { openChannel = saved })
	return &opened
}

func TestUpload(t *testing.T) {
	tgt := newTarget()
	opened := withChannel(t, tgt)
	path := writeHex(t, ":020000040000FA\n:0300300002337A1E\n:00000001FF\n")

	cfg := link.DefaultConfig()
	cfg.ReadTimeout = 250 * time.Millisecond
	rep, err := Upload(context.Background(), path, cfg)
	require.NoError(t, err)

	require.Len(t, *opened, 1)
	assert.Equal(t, cfg, (*opened)[0])
	assert.Equal(t, 3, rep.Records)
	assert.Equal(t, 1, rep.Chunks)
	assert.Equal(t, uint32(64), rep.Cursor)
	assert.Equal(t, 1, tgt.releases)
	assert.True(t, tgt.closed)
	assert.Contains(t, rep.String(), "finished: 3 bytes of program and 61 of filler")
}

func TestUploadRejectsBadFileBeforeOpening(t *testing.T) {
	opened := withChannel(t, newTarget())
	path := writeHex(t, ":0300300002337A1E\n:0300300002337A1F\n")

	rep, err := Upload(context.Background(), path, link.DefaultConfig())
	assert.Nil(t, rep)
	var fe *ihex.FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 2, fe.Line)
	assert.Empty(t, *opened)
}

func TestUploadReleasesAndClosesOnAbort(t *testing.T) {
	tgt := newTarget()
	tgt.breakAt = 3
	withChannel(t, tgt)
	path := writeHex(t, ":0400000001020304F2\n:00000001FF\n")

	rep, err := Upload(context.Background(), path, link.DefaultConfig())
	requireAbort(t, err, SyncBreak)
	require.NotNil(t, rep)
	assert.Equal(t, Aborted, rep.State)
	assert.Equal(t, uint32(2), rep.Cursor)
	assert.Equal(t, 1, tgt.releases)
	assert.True(t, tgt.closed)
}

func TestUploadOpenFailure(t *testing.T) {
	boom := errors.New("no such device")
	saved := openChannel
	openChannel = func(link.Config, logrus.FieldLogger) (channelCloser, error) { return nil, boom }
	t.Cleanup(func() { openChannel = saved })

	_, err := Upload(context.Background(), writeHex(t, ":00000001FF\n"), link.DefaultConfig())
	assert.Equal(t, boom, err)
}
