package store

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/memfs"
	"github.com/go-git/go-billy/v6/osfs"

	"github.com/keystash-dev/keystash/pkg"
)

// Media is the raw storage region a filesystem is laid down on.
type Media interface {
	// Format erases the region and creates an empty filesystem on it.
	Format() error

	// Open returns the filesystem held by the region. It fails with
	// pkg.ErrNoFilesystem if the region was never formatted.
	Open() (billy.Filesystem, error)
}

// superblock marks a formatted region.
const superblock = ".keystash"

// superblockMagic is the content of the superblock file.
var superblockMagic = []byte("keystash-fs-v1\n")

// MemMedia is a volatile region backed by an in-memory filesystem.
// A new MemMedia is blank and must be formatted before it can be opened.
type MemMedia struct {
	fs    billy.Filesystem
	mutex sync.Mutex
}

// NewMemMedia creates a blank in-memory region.
func NewMemMedia() *MemMedia {
	return &MemMedia{}
}

// Format replaces the region content with an empty filesystem.
func (m *MemMedia) Format() error {
	fs := memfs.New()
	if err := writeSuperblock(fs); err != nil {
		return err
	}
	m.mutex.Lock()
	m.fs = fs
	m.mutex.Unlock()
	return nil
}

// Open returns the filesystem on the region.
func (m *MemMedia) Open() (billy.Filesystem, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.fs == nil {
		return nil, pkg.ErrNoFilesystem
	}
	return m.fs, nil
}

// DirMedia is a region backed by a host directory. It survives process
// restarts, which makes it the media of choice for simulation.
type DirMedia struct {
	dir string
}

// NewDirMedia creates a region rooted at dir. The directory is not touched
// until Format or Open.
func NewDirMedia(dir string) *DirMedia {
	return &DirMedia{dir: dir}
}

// Dir returns the backing directory.
func (d *DirMedia) Dir() string {
	return d.dir
}

// Format erases a region previously formatted by Format and writes a fresh
// superblock. A missing or empty directory is created and formatted. A
// directory holding anything without a superblock is not ours: Format
// refuses it with pkg.ErrNoFilesystem and leaves it untouched.
func (d *DirMedia) Format() error {
	entries, err := os.ReadDir(d.dir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(d.dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d.dir, err)
		}
	case err != nil:
		return fmt.Errorf("read %s: %w", d.dir, err)
	case len(entries) > 0:
		if err := checkSuperblock(osfs.New(d.dir)); err != nil {
			return fmt.Errorf("%w: %s holds foreign data, refusing to format",
				pkg.ErrNoFilesystem, d.dir)
		}
	}

	for _, e := range entries {
		path := filepath.Join(d.dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("erase %s: %w", path, err)
		}
	}
	return writeSuperblock(osfs.New(d.dir))
}

// Open returns the filesystem rooted at the backing directory.
func (d *DirMedia) Open() (billy.Filesystem, error) {
	fs := osfs.New(d.dir)
	if err := checkSuperblock(fs); err != nil {
		return nil, err
	}
	return fs, nil
}

func writeSuperblock(fs billy.Filesystem) error {
	f, err := fs.Create(superblock)
	if err != nil {
		return fmt.Errorf("write superblock: %w", err)
	}
	_, err = f.Write(superblockMagic)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write superblock: %w", err)
	}
	return nil
}

func checkSuperblock(fs billy.Filesystem) error {
	f, err := fs.Open(superblock)
	if err != nil {
		return pkg.ErrNoFilesystem
	}
	defer f.Close()

	var buf [32]byte
	n, err := io.ReadFull(f, buf[:len(superblockMagic)])
	if err != nil || !bytes.Equal(buf[:n], superblockMagic) {
		return pkg.ErrNoFilesystem
	}
	return nil
}

// Compile-time interface checks
var (
	_ Media = (*MemMedia)(nil)
	_ Media = (*DirMedia)(nil)
)
