package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-git/go-billy/v6"

	"github.com/keystash-dev/keystash/pkg"
)

// DefaultLogName is the name of the log file within the filesystem.
const DefaultLogName = "strings"

// DumpChunkSize is the size of the buffer used to stream the log.
const DumpChunkSize = 128

// Error records a failed storage operation.
// Every Error matches pkg.ErrStorage with errors.Is.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return "store: " + e.Op + ": " + e.Err.Error()
	}
	return "store: " + e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is pkg.ErrStorage.
func (e *Error) Is(target error) bool { return target == pkg.ErrStorage }

// Store is an append-only log kept in a single named file on a mounted
// filesystem. Operations are serialized; each one opens, uses and closes the
// file before returning.
type Store struct {
	media    Media
	name     string
	capacity int64

	fs    billy.Filesystem // nil while unmounted
	mutex sync.Mutex

	chunk [DumpChunkSize]byte
}

// New creates a store for the log file name on media. A capacity of zero
// leaves the log size bounded only by the media.
func New(media Media, name string, capacity int64) (*Store, error) {
	if media == nil {
		return nil, fmt.Errorf("%w: nil media", pkg.ErrInvalidParameter)
	}
	if capacity < 0 {
		return nil, fmt.Errorf("%w: negative capacity %d", pkg.ErrInvalidParameter, capacity)
	}
	if name == "" {
		name = DefaultLogName
	}
	return &Store{media: media, name: name, capacity: capacity}, nil
}

// Name returns the log file name.
func (s *Store) Name() string {
	return s.name
}

// Mounted returns true if the filesystem is mounted.
func (s *Store) Mounted() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.fs != nil
}

// Mount opens the filesystem on the media and creates the log file if it is
// absent. Mounting a mounted store is a no-op.
func (s *Store) Mount() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.mount()
}

func (s *Store) mount() error {
	if s.fs != nil {
		return nil
	}
	fs, err := s.media.Open()
	if err != nil {
		return &Error{Op: "mount", Err: err}
	}
	f, err := fs.OpenFile(s.name, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return &Error{Op: "mount", Path: s.name, Err: err}
	}
	if err := f.Close(); err != nil {
		return &Error{Op: "mount", Path: s.name, Err: err}
	}
	s.fs = fs
	pkg.LogDebug(pkg.ComponentStore, "filesystem mounted", "log", s.name)
	return nil
}

// Unmount detaches the filesystem.
func (s *Store) Unmount() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.unmount()
}

func (s *Store) unmount() error {
	if s.fs == nil {
		return &Error{Op: "unmount", Err: pkg.ErrNotMounted}
	}
	s.fs = nil
	pkg.LogDebug(pkg.ComponentStore, "filesystem unmounted")
	return nil
}

// Format erases the media. The store must be unmounted.
func (s *Store) Format() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.format()
}

func (s *Store) format() error {
	if s.fs != nil {
		return &Error{Op: "format", Err: pkg.ErrMounted}
	}
	if err := s.media.Format(); err != nil {
		return &Error{Op: "format", Err: err}
	}
	pkg.LogInfo(pkg.ComponentStore, "filesystem formatted")
	return nil
}

// MountOrFormat mounts the filesystem, formatting the media first if the
// initial mount fails. If the freshly formatted filesystem cannot be
// mounted the returned error wraps pkg.ErrFatal.
func (s *Store) MountOrFormat() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	err := s.mount()
	if err == nil {
		return nil
	}
	pkg.LogWarn(pkg.ComponentStore, "mount failed, formatting media", "error", err)

	if err := s.format(); err != nil {
		return fmt.Errorf("%w: %w", pkg.ErrFatal, err)
	}
	if err := s.mount(); err != nil {
		return fmt.Errorf("%w: mount formatted filesystem: %w", pkg.ErrFatal, err)
	}
	return nil
}

// FormatAndRemount unmounts the filesystem, erases the media and mounts the
// new empty filesystem. On failure the store is left unmounted and all log
// operations fail with pkg.ErrNotMounted until a later successful mount.
func (s *Store) FormatAndRemount() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.fs != nil {
		if err := s.unmount(); err != nil {
			return err
		}
	}
	if err := s.format(); err != nil {
		return err
	}
	return s.mount()
}

// Append writes p to the end of the log.
func (s *Store) Append(p []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.fs == nil {
		return &Error{Op: "append", Path: s.name, Err: pkg.ErrNotMounted}
	}
	if len(p) == 0 {
		return nil
	}
	if s.capacity > 0 {
		size, err := s.size()
		if err != nil {
			return &Error{Op: "append", Path: s.name, Err: err}
		}
		if size+int64(len(p)) > s.capacity {
			return &Error{Op: "append", Path: s.name, Err: pkg.ErrNoSpace}
		}
	}

	f, err := s.fs.OpenFile(s.name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return &Error{Op: "append", Path: s.name, Err: err}
	}
	_, err = f.Write(p)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &Error{Op: "append", Path: s.name, Err: err}
	}
	return nil
}

// Reader opens the log for reading. Each call starts from the beginning of
// the log; the caller must close the returned reader.
func (s *Store) Reader() (io.ReadCloser, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.fs == nil {
		return nil, &Error{Op: "open", Path: s.name, Err: pkg.ErrNotMounted}
	}
	f, err := s.fs.OpenFile(s.name, os.O_RDONLY, 0)
	if err != nil {
		return nil, &Error{Op: "open", Path: s.name, Err: err}
	}
	return f, nil
}

// Dump streams the whole log to w through a fixed-size buffer and returns
// the number of bytes written.
func (s *Store) Dump(w io.Writer) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.fs == nil {
		return 0, &Error{Op: "dump", Path: s.name, Err: pkg.ErrNotMounted}
	}
	f, err := s.fs.OpenFile(s.name, os.O_RDONLY, 0)
	if err != nil {
		return 0, &Error{Op: "dump", Path: s.name, Err: err}
	}
	defer f.Close()

	var total int64
	for {
		n, rerr := f.Read(s.chunk[:])
		if n > 0 {
			m, werr := w.Write(s.chunk[:n])
			total += int64(m)
			if werr != nil {
				return total, werr
			}
		}
		if errors.Is(rerr, io.EOF) {
			return total, nil
		}
		if rerr != nil {
			return total, &Error{Op: "dump", Path: s.name, Err: rerr}
		}
	}
}

// Reset truncates the log to empty.
func (s *Store) Reset() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.fs == nil {
		return &Error{Op: "reset", Path: s.name, Err: pkg.ErrNotMounted}
	}
	f, err := s.fs.OpenFile(s.name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return &Error{Op: "reset", Path: s.name, Err: err}
	}
	if err := f.Close(); err != nil {
		return &Error{Op: "reset", Path: s.name, Err: err}
	}
	return nil
}

// Size returns the current length of the log.
func (s *Store) Size() (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.fs == nil {
		return 0, &Error{Op: "stat", Path: s.name, Err: pkg.ErrNotMounted}
	}
	size, err := s.size()
	if err != nil {
		return 0, &Error{Op: "stat", Path: s.name, Err: err}
	}
	return size, nil
}

func (s *Store) size() (int64, error) {
	fi, err := s.fs.Stat(s.name)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
