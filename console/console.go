package console

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/keystash-dev/keystash/pkg"
)

// ReadChunkSize is the largest chunk read from the transport per service
// call.
const ReadChunkSize = 32

// TestString is the literal appended to the log by the teststring command.
const TestString = "DEBUG STRING "

// Log is the log store as driven by console commands.
type Log interface {
	Append(p []byte) error
	Dump(w io.Writer) (int64, error)
	Reset() error
	FormatAndRemount() error
}

// command is one entry of the fixed command vocabulary.
type command struct {
	name string
	help string
	run  func(c *Console) error
}

// commands is the recognized vocabulary, in help order.
var commands []command

func init() {
	// Assigned here because help refers back to the table.
	commands = []command{
		{"help", "list recognized commands", (*Console).help},
		{"dumpstrings", "print the contents of the log", (*Console).dumpStrings},
		{"resetstrings", "truncate the log", (*Console).resetStrings},
		{"teststring", "append a diagnostic string to the log", (*Console).testString},
		{"resetfilesystem", "format and remount the filesystem", (*Console).resetFilesystem},
	}
}

// Commands returns the names of the recognized commands.
func Commands() []string {
	names := make([]string, len(commands))
	for i, cmd := range commands {
		names[i] = cmd.name
	}
	return names
}

func lookup(name string) (command, bool) {
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd, true
		}
	}
	return command{}, false
}

// Console turns inbound transport bytes into command invocations and writes
// CR-LF terminated responses to the outbound writer.
//
// A Console is used from the run loop only and is not safe for concurrent
// use.
type Console struct {
	log  Log
	out  io.Writer
	line *LineBuffer
	echo bool

	// discarding is set after an overflow until the end of that line.
	discarding bool
	// lastCR is set when the most recent byte fed was a carriage return.
	lastCR bool

	rx [ReadChunkSize]byte
}

// New creates a console driving log and writing responses to out.
func New(log Log, out io.Writer, lineCapacity int) (*Console, error) {
	if log == nil || out == nil {
		return nil, fmt.Errorf("%w: nil log or output", pkg.ErrInvalidParameter)
	}
	line, err := NewLineBuffer(lineCapacity)
	if err != nil {
		return nil, err
	}
	return &Console{log: log, out: out, line: line}, nil
}

// SetEcho enables echoing accepted input bytes back to the operator.
func (c *Console) SetEcho(echo bool) {
	c.echo = echo
}

// Pending returns the number of bytes accumulated for the current line.
func (c *Console) Pending() int {
	return c.line.Len()
}

// Reset abandons the line being accumulated.
func (c *Console) Reset() {
	c.line.Reset()
	c.discarding = false
	c.lastCR = false
}

// Service reads at most one chunk from r and feeds it to the console.
// A reader with nothing pending must return 0 and a nil error.
func (c *Console) Service(r io.Reader) error {
	n, err := r.Read(c.rx[:])
	if n > 0 {
		c.Feed(c.rx[:n])
	}
	return err
}

// Feed processes one inbound chunk. A chunk may hold any number of line
// terminators; CR, LF and CR LF each end a line.
func (c *Console) Feed(chunk []byte) {
	for len(chunk) > 0 {
		i := bytes.IndexAny(chunk, "\r\n")
		if i < 0 {
			c.accumulate(chunk)
			c.lastCR = false
			return
		}
		term := chunk[i]
		if i == 0 && term == '\n' && c.lastCR {
			// LF completing a CR LF pair.
			c.lastCR = false
			chunk = chunk[1:]
			continue
		}
		if i > 0 {
			c.accumulate(chunk[:i])
		}
		c.lastCR = term == '\r'
		c.terminate()
		chunk = chunk[i+1:]
	}
}

func (c *Console) accumulate(seg []byte) {
	if c.discarding {
		return
	}
	if err := c.line.Push(seg); err != nil {
		pkg.LogWarn(pkg.ComponentConsole, "command line overflow",
			"capacity", c.line.Cap(),
			"pending", c.line.Len(),
			"chunk", len(seg))
		c.line.Reset()
		c.discarding = true
		c.printf("\r\nLine too long (max %d bytes), discarded\r\n", c.line.Cap())
		return
	}
	if c.echo {
		c.write(seg)
	}
}

func (c *Console) terminate() {
	if c.discarding {
		c.discarding = false
		c.line.Reset()
		return
	}
	line := string(bytes.TrimSpace(c.line.Bytes()))
	c.line.Reset()
	if err := c.Dispatch(line); err != nil {
		pkg.LogDebug(pkg.ComponentConsole, "command failed", "line", line, "error", err)
	}
}

// Dispatch runs the command named by line. The match is exact and
// case-sensitive. Results and errors are reported on the output; the
// returned error is informational.
func (c *Console) Dispatch(line string) error {
	cmd, ok := lookup(line)
	if !ok {
		c.printf("\r\nUnknown command %q; available: %s\r\n",
			line, strings.Join(Commands(), ", "))
		return fmt.Errorf("%w: %q", pkg.ErrUnknownCommand, line)
	}
	pkg.LogInfo(pkg.ComponentConsole, "command accepted", "command", cmd.name)
	return cmd.run(c)
}

func (c *Console) help() error {
	c.printf("\r\nAvailable commands:\r\n")
	for _, cmd := range commands {
		c.printf("  %-16s %s\r\n", cmd.name, cmd.help)
	}
	return nil
}

func (c *Console) dumpStrings() error {
	c.printf("\r\nAccepted dump strings command\r\n")
	if _, err := c.log.Dump(c.out); err != nil {
		c.printf("\r\nError reading strings file: %v\r\n", err)
		return err
	}
	c.printf("\r\nStrings file read successfully\r\n")
	return nil
}

func (c *Console) resetStrings() error {
	c.printf("\r\nAccepted reset strings command\r\n")
	if err := c.log.Reset(); err != nil {
		c.printf("Error resetting strings file: %v\r\n", err)
		return err
	}
	c.printf("Strings file reset successfully\r\n")
	return nil
}

func (c *Console) testString() error {
	c.printf("\r\nAccepted append string command\r\n")
	if err := c.log.Append([]byte(TestString)); err != nil {
		c.printf("Error writing to strings file: %v\r\n", err)
		return err
	}
	c.printf("String appended to strings file successfully\r\n")
	return nil
}

func (c *Console) resetFilesystem() error {
	c.printf("\r\nAccepted format filesystem command\r\n")
	if err := c.log.FormatAndRemount(); err != nil {
		c.printf("Error formatting filesystem: %v\r\n", err)
		return err
	}
	c.printf("Filesystem formatted and remounted successfully\r\n")
	return nil
}

func (c *Console) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(c.out, format, args...); err != nil {
		pkg.LogWarn(pkg.ComponentConsole, "console write failed", "error", err)
	}
}

func (c *Console) write(p []byte) {
	if _, err := c.out.Write(p); err != nil {
		pkg.LogWarn(pkg.ComponentConsole, "console write failed", "error", err)
	}
}
