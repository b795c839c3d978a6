package blockdev

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileDeviceCreateStartsErased(t *testing.T) {
	path := filepath.Join(t.TempDir(), "part.img")
	dev, err := CreateFile(path, 4, 256)
	require.NoError(t, err)
	defer dev.Close()

	assert.Equal(t, int64(1024), dev.Size())
	buf := make([]byte, 1024)
	require.NoError(t, dev.ReadAt(buf, 0))
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 1024), buf)
}

func TestFileDevicePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "part.img")
	dev, err := CreateFile(path, 4, 256)
	require.NoError(t, err)
	require.NoError(t, dev.WriteAt([]byte("hello"), 300))
	require.NoError(t, dev.Close())

	dev2, err := OpenFile(path, 256)
	require.NoError(t, err)
	defer dev2.Close()

	buf := make([]byte, 5)
	require.NoError(t, dev2.ReadAt(buf, 300))
	assert.Equal(t, []byte("hello"), buf)
}

func TestFileDeviceEraseAlignment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "part.img")
	dev, err := CreateFile(path, 4, 256)
	require.NoError(t, err)
	defer dev.Close()

	assert.ErrorIs(t, dev.EraseRange(1, 256), ErrUnaligned)
	assert.NoError(t, dev.EraseRange(256, 512))
}

func TestFileDeviceOpenRejectsRaggedImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "part.img")
	dev, err := CreateFile(path, 4, 256)
	require.NoError(t, err)
	require.NoError(t, dev.Close())

	_, err = OpenFile(path, 300)
	assert.Error(t, err, "image length must be a whole number of sectors")
}

func TestFileDeviceOpenMissing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "absent.img"), 256)
	assert.Error(t, err)
}
