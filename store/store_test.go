package store

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keystash-dev/keystash/pkg"
)

// faultyMedia wraps a MemMedia and fails selected operations.
type faultyMedia struct {
	*MemMedia
	formatErr error
	openErr   error // returned by every Open while set
	openCalls int
}

func (f *faultyMedia) Format() error {
	if f.formatErr != nil {
		return f.formatErr
	}
	return f.MemMedia.Format()
}

func (f *faultyMedia) Open() (billy.Filesystem, error) {
	f.openCalls++
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.MemMedia.Open()
}

func newMounted(t *testing.T, capacity int64) *Store {
	t.Helper()
	s, err := New(NewMemMedia(), "", capacity)
	require.NoError(t, err)
	require.NoError(t, s.MountOrFormat())
	return s
}

func dump(t *testing.T, s *Store) []byte {
	t.Helper()
	var buf bytes.Buffer
	n, err := s.Dump(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)
	return buf.Bytes()
}

func TestNew(t *testing.T) {
	_, err := New(nil, "", 0)
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)

	_, err = New(NewMemMedia(), "", -1)
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)

	s, err := New(NewMemMedia(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultLogName, s.Name())
	assert.False(t, s.Mounted())
}

func TestMountBlankMedia(t *testing.T) {
	s, err := New(NewMemMedia(), "", 0)
	require.NoError(t, err)

	err = s.Mount()
	require.ErrorIs(t, err, pkg.ErrStorage)
	require.ErrorIs(t, err, pkg.ErrNoFilesystem)
	assert.False(t, s.Mounted())
}

func TestMountOrFormatFreshMedia(t *testing.T) {
	s := newMounted(t, 0)
	assert.True(t, s.Mounted())
	assert.Empty(t, dump(t, s))
}

func TestMountOrFormatKeepsExistingLog(t *testing.T) {
	media := NewMemMedia()
	s, err := New(media, "", 0)
	require.NoError(t, err)
	require.NoError(t, s.MountOrFormat())
	require.NoError(t, s.Append([]byte("persist")))
	require.NoError(t, s.Unmount())

	again, err := New(media, "", 0)
	require.NoError(t, err)
	require.NoError(t, again.MountOrFormat())
	assert.Equal(t, []byte("persist"), dump(t, again))
}

func TestMountOrFormatFatal(t *testing.T) {
	t.Run("second mount fails", func(t *testing.T) {
		media := &faultyMedia{MemMedia: NewMemMedia(), openErr: errors.New("bad block")}
		s, err := New(media, "", 0)
		require.NoError(t, err)

		err = s.MountOrFormat()
		require.Error(t, err)
		assert.True(t, pkg.IsFatal(err))
		assert.Equal(t, 2, media.openCalls)
		assert.False(t, s.Mounted())
	})

	t.Run("format fails", func(t *testing.T) {
		media := &faultyMedia{MemMedia: NewMemMedia(), formatErr: errors.New("erase failed")}
		s, err := New(media, "", 0)
		require.NoError(t, err)

		err = s.MountOrFormat()
		require.Error(t, err)
		assert.True(t, pkg.IsFatal(err))
		assert.ErrorIs(t, err, pkg.ErrStorage)
	})
}

func TestAppendDump(t *testing.T) {
	s := newMounted(t, 0)

	var want []byte
	for _, chunk := range []string{"a", "bc", "", "def", string(make([]byte, 3*DumpChunkSize+5))} {
		require.NoError(t, s.Append([]byte(chunk)))
		want = append(want, chunk...)
	}
	assert.Equal(t, want, dump(t, s))

	size, err := s.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(len(want)), size)

	// Dump is restartable.
	assert.Equal(t, want, dump(t, s))
}

func TestReader(t *testing.T) {
	s := newMounted(t, 0)
	require.NoError(t, s.Append([]byte("hello ")))
	require.NoError(t, s.Append([]byte("world")))

	r, err := s.Reader()
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "hello world", string(data))
}

func TestReset(t *testing.T) {
	s := newMounted(t, 0)
	require.NoError(t, s.Append([]byte("before")))
	require.NoError(t, s.Reset())
	assert.Empty(t, dump(t, s))

	require.NoError(t, s.Append([]byte("after")))
	assert.Equal(t, []byte("after"), dump(t, s))
}

func TestFormatAndRemount(t *testing.T) {
	s := newMounted(t, 0)
	require.NoError(t, s.Append([]byte("doomed")))

	require.NoError(t, s.FormatAndRemount())
	assert.True(t, s.Mounted())
	assert.Empty(t, dump(t, s))
}

func TestFormatAndRemountFailure(t *testing.T) {
	media := &faultyMedia{MemMedia: NewMemMedia()}
	s, err := New(media, "", 0)
	require.NoError(t, err)
	require.NoError(t, s.MountOrFormat())

	media.formatErr = errors.New("erase failed")
	err = s.FormatAndRemount()
	require.ErrorIs(t, err, pkg.ErrStorage)
	assert.False(t, s.Mounted())

	// Storage stays unavailable until a later format succeeds.
	assert.ErrorIs(t, s.Append([]byte("x")), pkg.ErrNotMounted)
	_, err = s.Dump(io.Discard)
	assert.ErrorIs(t, err, pkg.ErrNotMounted)
	assert.ErrorIs(t, s.Reset(), pkg.ErrNotMounted)

	media.formatErr = nil
	require.NoError(t, s.FormatAndRemount())
	require.NoError(t, s.Append([]byte("x")))
	assert.Equal(t, []byte("x"), dump(t, s))
}

func TestFormatWhileMounted(t *testing.T) {
	s := newMounted(t, 0)
	err := s.Format()
	assert.ErrorIs(t, err, pkg.ErrMounted)
	assert.ErrorIs(t, err, pkg.ErrStorage)
}

func TestUnmountTwice(t *testing.T) {
	s := newMounted(t, 0)
	require.NoError(t, s.Unmount())
	assert.ErrorIs(t, s.Unmount(), pkg.ErrNotMounted)
}

func TestCapacity(t *testing.T) {
	s := newMounted(t, 8)
	require.NoError(t, s.Append([]byte("12345")))

	err := s.Append([]byte("6789"))
	require.ErrorIs(t, err, pkg.ErrNoSpace)
	require.ErrorIs(t, err, pkg.ErrStorage)

	require.NoError(t, s.Append([]byte("678")))
	assert.Equal(t, []byte("12345678"), dump(t, s))
}

func TestDirMedia(t *testing.T) {
	dir := t.TempDir()
	media := NewDirMedia(dir)
	assert.Equal(t, dir, media.Dir())

	_, err := media.Open()
	require.ErrorIs(t, err, pkg.ErrNoFilesystem)

	s, err := New(media, "keys", 0)
	require.NoError(t, err)
	require.NoError(t, s.MountOrFormat())
	require.NoError(t, s.Append([]byte("on disk")))
	require.NoError(t, s.Unmount())

	// A second store on the same directory sees the log.
	again, err := New(NewDirMedia(dir), "keys", 0)
	require.NoError(t, err)
	require.NoError(t, again.Mount())
	assert.Equal(t, []byte("on disk"), dump(t, again))

	require.NoError(t, again.FormatAndRemount())
	assert.Empty(t, dump(t, again))
}

func TestDirMediaRefusesForeignDir(t *testing.T) {
	dir := t.TempDir()
	foreign := filepath.Join(dir, "thesis.txt")
	require.NoError(t, os.WriteFile(foreign, []byte("draft"), 0o644))

	s, err := New(NewDirMedia(dir), DefaultLogName, 0)
	require.NoError(t, err)

	err = s.MountOrFormat()
	require.Error(t, err)
	assert.True(t, pkg.IsFatal(err))
	assert.ErrorIs(t, err, pkg.ErrNoFilesystem)
	assert.False(t, s.Mounted())

	content, err := os.ReadFile(foreign)
	require.NoError(t, err)
	assert.Equal(t, "draft", string(content))

	// An explicit format is refused the same way.
	assert.ErrorIs(t, s.FormatAndRemount(), pkg.ErrNoFilesystem)
	_, err = os.Stat(foreign)
	assert.NoError(t, err)
}

func TestDirMediaFormat(t *testing.T) {
	t.Run("missing dir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "a", "b")
		media := NewDirMedia(dir)
		require.NoError(t, media.Format())
		_, err := media.Open()
		assert.NoError(t, err)
	})

	t.Run("empty dir", func(t *testing.T) {
		media := NewDirMedia(t.TempDir())
		require.NoError(t, media.Format())
		_, err := media.Open()
		assert.NoError(t, err)
	})

	t.Run("formatted dir is erased", func(t *testing.T) {
		dir := t.TempDir()
		media := NewDirMedia(dir)
		require.NoError(t, media.Format())
		require.NoError(t, os.WriteFile(filepath.Join(dir, "strings"), []byte("old"), 0o644))
		require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

		require.NoError(t, media.Format())
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, superblock, entries[0].Name())
	})
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Op: "append", Path: "strings", Err: pkg.ErrNoSpace}
	assert.Equal(t, "store: append strings: no space left on media", err.Error())

	err = &Error{Op: "mount", Err: pkg.ErrNoFilesystem}
	assert.Equal(t, "store: mount: no filesystem on media", err.Error())
}
