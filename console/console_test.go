package console

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keystash-dev/keystash/pkg"
	"github.com/keystash-dev/keystash/store"
)

// failingLog fails every operation with err.
type failingLog struct{ err error }

func (f failingLog) Append([]byte) error           { return f.err }
func (f failingLog) Dump(io.Writer) (int64, error) { return 0, f.err }
func (f failingLog) Reset() error                  { return f.err }
func (f failingLog) FormatAndRemount() error       { return f.err }

func newConsole(t *testing.T, capacity int) (*Console, *store.Store, *bytes.Buffer) {
	t.Helper()
	s, err := store.New(store.NewMemMedia(), "", 0)
	require.NoError(t, err)
	require.NoError(t, s.MountOrFormat())

	var out bytes.Buffer
	c, err := New(s, &out, capacity)
	require.NoError(t, err)
	return c, s, &out
}

func logContent(t *testing.T, s *store.Store) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := s.Dump(&buf)
	require.NoError(t, err)
	return buf.String()
}

func TestNew(t *testing.T) {
	_, err := New(nil, io.Discard, 8)
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)
	_, err = New(failingLog{}, nil, 8)
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)
	_, err = New(failingLog{}, io.Discard, 0)
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)
}

func TestCommands(t *testing.T) {
	assert.Equal(t, []string{
		"help", "dumpstrings", "resetstrings", "teststring", "resetfilesystem",
	}, Commands())
}

func TestTestString(t *testing.T) {
	c, s, out := newConsole(t, DefaultLineCapacity)

	c.Feed([]byte("teststring\r"))
	assert.Equal(t, TestString, logContent(t, s))
	assert.Contains(t, out.String(), "String appended to strings file successfully\r\n")
}

func TestHelp(t *testing.T) {
	c, _, out := newConsole(t, DefaultLineCapacity)

	c.Feed([]byte("help\n"))
	for _, name := range Commands() {
		assert.Contains(t, out.String(), name)
	}
	assert.NotContains(t, out.String(), "Unknown command")
}

func TestUnknownCommand(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty CR", "\r"},
		{"empty LF", "\n"},
		{"wrong case", "HELP\r"},
		{"prefix", "dump\r"},
		{"suffix", "helpme\r"},
		{"garbage", "rm -rf /\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, s, out := newConsole(t, DefaultLineCapacity)
			c.Feed([]byte(tt.input))
			assert.Contains(t, out.String(), "Unknown command")
			assert.Contains(t, out.String(), strings.Join(Commands(), ", "))
			assert.Empty(t, logContent(t, s))
		})
	}
}

func TestDispatchReturnsUnknown(t *testing.T) {
	c, _, _ := newConsole(t, DefaultLineCapacity)
	assert.ErrorIs(t, c.Dispatch("nope"), pkg.ErrUnknownCommand)
	assert.NoError(t, c.Dispatch("help"))
}

func TestTrimmedMatch(t *testing.T) {
	c, s, _ := newConsole(t, DefaultLineCapacity)
	c.Feed([]byte("  teststring \t\r"))
	assert.Equal(t, TestString, logContent(t, s))
}

func TestChunkedLine(t *testing.T) {
	c, s, _ := newConsole(t, DefaultLineCapacity)
	for _, chunk := range []string{"te", "st", "", "str", "ing", "\r"} {
		c.Feed([]byte(chunk))
	}
	assert.Equal(t, TestString, logContent(t, s))
	assert.Zero(t, c.Pending())
}

func TestSeveralLinesInOneChunk(t *testing.T) {
	c, s, out := newConsole(t, DefaultLineCapacity)
	c.Feed([]byte("teststring\rteststring\nteststring\r\n"))
	assert.Equal(t, strings.Repeat(TestString, 3), logContent(t, s))
	assert.NotContains(t, out.String(), "Unknown command")
}

func TestCRLFSplitAcrossChunks(t *testing.T) {
	c, _, out := newConsole(t, DefaultLineCapacity)
	c.Feed([]byte("help\r"))
	c.Feed([]byte("\n"))
	assert.NotContains(t, out.String(), "Unknown command")

	// A second LF is an empty line of its own.
	c.Feed([]byte("\n"))
	assert.Contains(t, out.String(), "Unknown command")
}

func TestOverlongLine(t *testing.T) {
	c, s, out := newConsole(t, 16)

	// 20 bytes in 4-byte chunks, then the terminator.
	for i := 0; i < 5; i++ {
		c.Feed([]byte("xxxx"))
	}
	c.Feed([]byte("\r"))

	assert.Equal(t, 1, strings.Count(out.String(), "Line too long"))
	assert.NotContains(t, out.String(), "Unknown command")
	assert.Zero(t, c.Pending())

	// The next line is accumulated from scratch.
	out.Reset()
	c.Feed([]byte("teststring\r"))
	assert.Equal(t, TestString, logContent(t, s))
	assert.NotContains(t, out.String(), "Line too long")
}

func TestOverlongLineSingleChunk(t *testing.T) {
	c, s, out := newConsole(t, 16)
	c.Feed([]byte(strings.Repeat("y", 17) + "\rteststring\r"))

	assert.Contains(t, out.String(), "Line too long")
	assert.Equal(t, TestString, logContent(t, s))
}

func TestLineExactlyAtCapacity(t *testing.T) {
	c, s, out := newConsole(t, len("teststring"))
	c.Feed([]byte("teststring"))
	c.Feed([]byte("\r"))
	assert.NotContains(t, out.String(), "Line too long")
	assert.Equal(t, TestString, logContent(t, s))
}

func TestEmptyChunk(t *testing.T) {
	c, _, out := newConsole(t, DefaultLineCapacity)
	c.Feed(nil)
	c.Feed([]byte{})
	assert.Empty(t, out.String())
	assert.Zero(t, c.Pending())
}

func TestDumpStrings(t *testing.T) {
	c, s, out := newConsole(t, DefaultLineCapacity)
	require.NoError(t, s.Append([]byte("captured keys")))

	c.Feed([]byte("dumpstrings\r"))
	assert.Equal(t,
		"\r\nAccepted dump strings command\r\n"+
			"captured keys"+
			"\r\nStrings file read successfully\r\n",
		out.String())
}

func TestResetStrings(t *testing.T) {
	c, s, out := newConsole(t, DefaultLineCapacity)
	require.NoError(t, s.Append([]byte("old")))

	c.Feed([]byte("resetstrings\n"))
	assert.Empty(t, logContent(t, s))
	assert.Contains(t, out.String(), "Strings file reset successfully\r\n")
}

func TestResetFilesystemThenDump(t *testing.T) {
	c, s, out := newConsole(t, DefaultLineCapacity)
	require.NoError(t, s.Append([]byte("old")))

	c.Feed([]byte("resetfilesystem\n"))
	assert.Contains(t, out.String(), "Filesystem formatted and remounted successfully\r\n")

	out.Reset()
	c.Feed([]byte("dumpstrings\n"))
	assert.Equal(t,
		"\r\nAccepted dump strings command\r\n"+
			"\r\nStrings file read successfully\r\n",
		out.String())
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"dumpstrings", "Error reading strings file"},
		{"resetstrings", "Error resetting strings file"},
		{"teststring", "Error writing to strings file"},
		{"resetfilesystem", "Error formatting filesystem"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			var out bytes.Buffer
			c, err := New(failingLog{err: pkg.ErrNotMounted}, &out, DefaultLineCapacity)
			require.NoError(t, err)

			c.Feed([]byte(tt.line + "\r"))
			assert.Contains(t, out.String(), tt.want)
			assert.Contains(t, out.String(), pkg.ErrNotMounted.Error())
			assert.True(t, strings.HasSuffix(out.String(), "\r\n"))

			// The console keeps working after a failed command.
			out.Reset()
			c.Feed([]byte("help\r"))
			assert.Contains(t, out.String(), "Available commands")
		})
	}
}

func TestEcho(t *testing.T) {
	c, _, out := newConsole(t, 8)
	c.SetEcho(true)

	c.Feed([]byte("he"))
	c.Feed([]byte("lp"))
	assert.Equal(t, "help", out.String())

	out.Reset()
	c.Feed([]byte("123456789"))
	assert.NotContains(t, out.String(), "123456789")
	assert.Contains(t, out.String(), "Line too long")
}

// chunkReader returns one queued chunk per Read.
type chunkReader struct {
	chunks []string
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, r.err
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if r.chunks[0] == "" {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func TestService(t *testing.T) {
	c, s, _ := newConsole(t, DefaultLineCapacity)
	long := strings.Repeat("a", ReadChunkSize+8)
	r := &chunkReader{chunks: []string{"teststring\r", long, "\r"}}

	// Nothing pending is not an error.
	for i := 0; i < 6; i++ {
		require.NoError(t, c.Service(r))
	}
	assert.Equal(t, TestString, logContent(t, s))

	r.err = errors.New("link down")
	assert.Error(t, c.Service(r))
}

func TestReset(t *testing.T) {
	c, s, _ := newConsole(t, DefaultLineCapacity)
	c.Feed([]byte("garbage"))
	c.Reset()
	assert.Zero(t, c.Pending())

	c.Feed([]byte("teststring\r"))
	assert.Equal(t, TestString, logContent(t, s))
}
