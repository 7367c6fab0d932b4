package storage

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain", "boot.img", false},
		{"spaces", "my file.txt", false},
		{"unicode", "café.bin", false},
		{"empty", "", true},
		{"dot", ".", true},
		{"dotdot", "..", true},
		{"traversal", "../etc/passwd", true},
		{"embedded traversal", "a/../b", true},
		{"absolute", "/etc/passwd", true},
		{"subdirectory", "dir/file", true},
		{"backslash", `..\windows\win.ini`, true},
		{"windows drive", "C:boot.ini", true},
		{"nul", "a\x00b", true},
		{"hidden", ".secret", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeName(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFilename)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, got)
		})
	}
}

func TestDir_ReadMissing(t *testing.T) {
	d, err := NewDir(t.TempDir())
	require.NoError(t, err)

	_, err = d.OpenForRead("missing.bin")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = d.OpenForRead("../outside")
	assert.ErrorIs(t, err, ErrInvalidFilename)
}

func TestDir_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "srv", "files")
	d, err := NewDir(root)
	require.NoError(t, err)

	info, err := os.Stat(d.Root())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDir_CommitMakesFileVisible(t *testing.T) {
	root := t.TempDir()
	d, err := NewDir(root)
	require.NoError(t, err)

	sink, err := d.OpenForWrite("upload.bin")
	require.NoError(t, err)

	_, err = sink.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = sink.Write([]byte("world"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "upload.bin"))
	assert.True(t, os.IsNotExist(err), "file must not be visible before commit")

	require.NoError(t, sink.Commit())

	src, err := d.OpenForRead("upload.bin")
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, int64(11), src.Size())

	content, err := io.ReadAll(src)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(content))

	assertOnlyFiles(t, root, "upload.bin")
}

func TestDir_EmptyCommitCreatesEmptyFile(t *testing.T) {
	root := t.TempDir()
	d, err := NewDir(root)
	require.NoError(t, err)

	sink, err := d.OpenForWrite("empty.bin")
	require.NoError(t, err)
	require.NoError(t, sink.Commit())

	info, err := os.Stat(filepath.Join(root, "empty.bin"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())
}

func TestDir_AbortLeavesNothing(t *testing.T) {
	root := t.TempDir()
	d, err := NewDir(root)
	require.NoError(t, err)

	sink, err := d.OpenForWrite("partial.bin")
	require.NoError(t, err)
	_, err = sink.Write(make([]byte, 512))
	require.NoError(t, err)

	require.NoError(t, sink.Abort())
	require.NoError(t, sink.Abort(), "abort is idempotent")

	assertOnlyFiles(t, root)
}

func TestDir_SecondWriterIsRejected(t *testing.T) {
	d, err := NewDir(t.TempDir())
	require.NoError(t, err)

	first, err := d.OpenForWrite("same.bin")
	require.NoError(t, err)

	_, err = d.OpenForWrite("same.bin")
	assert.ErrorIs(t, err, ErrBusy)

	other, err := d.OpenForWrite("other.bin")
	require.NoError(t, err)
	require.NoError(t, other.Abort())

	require.NoError(t, first.Commit())

	again, err := d.OpenForWrite("same.bin")
	require.NoError(t, err, "name is free again after commit")
	require.NoError(t, again.Abort())
}

func TestDir_LockedByAnotherBackend(t *testing.T) {
	root := t.TempDir()
	a, err := NewDir(root)
	require.NoError(t, err)
	b, err := NewDir(root)
	require.NoError(t, err)

	sink, err := a.OpenForWrite("shared.bin")
	require.NoError(t, err)
	defer sink.Abort()

	_, err = b.OpenForWrite("shared.bin")
	assert.ErrorIs(t, err, ErrBusy, "file lock must be honoured across backends")
}

func TestMemory_Lifecycle(t *testing.T) {
	m := NewMemory()

	_, err := m.OpenForRead("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	sink, err := m.OpenForWrite("a.txt")
	require.NoError(t, err)
	_, err = m.OpenForWrite("a.txt")
	assert.ErrorIs(t, err, ErrBusy)

	_, err = sink.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, sink.Commit())

	got, ok := m.Get("a.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), got)

	src, err := m.OpenForRead("a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(3), src.Size())
	b, err := io.ReadAll(src)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(b))

	aborted, err := m.OpenForWrite("b.txt")
	require.NoError(t, err)
	_, _ = aborted.Write([]byte("zzz"))
	require.NoError(t, aborted.Abort())
	_, ok = m.Get("b.txt")
	assert.False(t, ok)
}

func assertOnlyFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var got []string
	for _, e := range entries {
		got = append(got, e.Name())
	}
	assert.ElementsMatch(t, names, got)
}
