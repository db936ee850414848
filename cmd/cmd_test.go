/*
Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

*/
package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/gmofishsauce/picload/pkg/ihex"
)

func writeInput(t *testing.T) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "fw.hex")
	text := ":020000040000FA\n:0300300002337A1E\n:00000001FF\n"
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return dir, path
}

func TestConvertToBinary(t *testing.T) {
	dir, in := writeInput(t)
	out := filepath.Join(dir, "fw.bin")

	rootCmd.SetArgs([]string{"convert", "--format", "bin", "--start", "0x2E", "--size", "0", "--pad", "0", in, out})
	require.NoError(t, rootCmd.Execute())

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0x02, 0x33, 0x7A}, got)
}

func TestConvertToHex(t *testing.T) {
	dir, in := writeInput(t)
	out := filepath.Join(dir, "fw.out")

	rootCmd.SetArgs([]string{"convert", "--format", "hex", in, out})
	require.NoError(t, rootCmd.Execute())

	records, err := ihex.ParseFile(out)
	require.NoError(t, err)
	chunks, err := ihex.Collect(ihex.NewSliceSource(records))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, uint32(0x30), chunks[0].Address)
	assert.Equal(t, []byte{0x02, 0x33, 0x7A}, chunks[0].Data)
	assert.Equal(t, ihex.EndOfFile, records[len(records)-1].Kind)
}

func TestConvertUnknownFormat(t *testing.T) {
	dir, in := writeInput(t)
	out := filepath.Join(dir, "fw.txt")

	rootCmd.SetArgs([]string{"convert", "--format", "", in, out})
	assert.Error(t, rootCmd.Execute())
	assert.NoFileExists(t, out)
}

func TestLinkConfig(t *testing.T) {
	portName, baudRate, parityName = "/dev/ttyACM0", 9600, "even"
	t.Cleanup(func() { parityName = "none" })

	cfg, err := linkConfig()
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", cfg.Device)
	assert.Equal(t, 9600, cfg.BaudRate)
	assert.Equal(t, serial.EvenParity, cfg.Parity)

	parityName = "space"
	_, err = linkConfig()
	assert.Error(t, err)
}
