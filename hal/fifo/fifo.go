//go:build unix

package fifo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/keystash-dev/keystash/hal"
	"github.com/keystash-dev/keystash/pkg"
)

// Connection signal bytes written to the connection pipe.
const (
	sigConnect    = 0x01
	sigDisconnect = 0x00
)

// Trigger levels accepted on the trigger pipe. Other bytes are ignored.
const (
	levelHigh = '1'
	levelLow  = '0'
)

// Pipe and file names inside the device directory.
const (
	fifoSerialIn   = "serial_in"
	fifoSerialOut  = "serial_out"
	fifoTrigger    = "trigger"
	fifoCapture    = "capture"
	fifoConnection = "connection"
	identityFile   = "identity.toml"
)

// CaptureChunkSize is the largest read taken from the capture pipe at once.
const CaptureChunkSize = 64

// pollInterval bounds how long the capture engine blocks before checking
// for cancellation.
const pollInterval = 100 * time.Millisecond

// writeTimeout bounds a Flush when nobody drains serial_out.
const writeTimeout = 10 * time.Millisecond

// HAL simulates the device hardware with named pipes (FIFOs).
// It implements hal.Transport, hal.Pin and hal.Engine.
//
// Each instance creates a unique subdirectory under the bus directory so
// several simulated devices can share one bus.
type HAL struct {
	busDir    string
	deviceDir string
	uuid      string

	serialIn   *os.File // operator console input
	serialOut  *os.File // operator console output
	trigger    *os.File // mode switch levels
	capture    *os.File // keystroke events
	connection *os.File // attach/detach signals

	connected atomic.Bool
	level     atomic.Bool
	identity  hal.Identity

	mutex    sync.Mutex
	initDone bool
	pending  []byte
}

// Compile-time interface checks.
var (
	_ hal.Transport = (*HAL)(nil)
	_ hal.Pin       = (*HAL)(nil)
	_ hal.Engine    = (*HAL)(nil)
)

// New creates a FIFO HAL rooted at busDir. Call Init before use.
func New(busDir string) *HAL {
	return &HAL{busDir: busDir}
}

// Init creates the device directory and its pipes.
func (h *HAL) Init() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.initDone {
		return pkg.ErrAlreadyRunning
	}

	h.uuid = uuid.NewString()
	h.deviceDir = filepath.Join(h.busDir, "device-"+h.uuid)

	if err := os.MkdirAll(h.deviceDir, 0o755); err != nil {
		return fmt.Errorf("create device dir: %w", err)
	}

	files := []struct {
		name string
		file **os.File
	}{
		{fifoSerialIn, &h.serialIn},
		{fifoSerialOut, &h.serialOut},
		{fifoTrigger, &h.trigger},
		{fifoCapture, &h.capture},
		{fifoConnection, &h.connection},
	}
	for _, f := range files {
		if err := h.createFIFO(f.name); err != nil {
			h.cleanup()
			return err
		}
		// O_RDWR keeps every pipe open without a peer.
		file, err := h.openFIFO(f.name, os.O_RDWR|unix.O_NONBLOCK)
		if err != nil {
			h.cleanup()
			return err
		}
		*f.file = file
	}

	h.initDone = true
	pkg.LogInfo(pkg.ComponentHAL, "fifo HAL initialized",
		"busDir", h.busDir,
		"deviceDir", h.deviceDir,
		"uuid", h.uuid)

	return nil
}

// Close detaches, closes every pipe and removes the device directory.
func (h *HAL) Close() error {
	if h.connected.Load() {
		h.Detach()
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if !h.initDone {
		return pkg.ErrNotRunning
	}
	h.cleanup()
	h.initDone = false
	pkg.LogInfo(pkg.ComponentHAL, "fifo HAL closed")
	return nil
}

// cleanup closes all pipes and removes the device directory.
func (h *HAL) cleanup() {
	for _, f := range []**os.File{&h.serialIn, &h.serialOut, &h.trigger, &h.capture, &h.connection} {
		if *f != nil {
			(*f).Close()
			*f = nil
		}
	}
	if h.deviceDir != "" {
		os.RemoveAll(h.deviceDir)
	}
	h.pending = h.pending[:0]
}

// DeviceDir returns the device subdirectory path.
func (h *HAL) DeviceDir() string {
	return h.deviceDir
}

// UUID returns the device UUID.
func (h *HAL) UUID() string {
	return h.uuid
}

// Attach publishes id to identity.toml and signals connection.
func (h *HAL) Attach(id hal.Identity) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if !h.initDone {
		return pkg.ErrNotConfigured
	}

	if err := h.writeIdentity(id); err != nil {
		return err
	}
	if _, err := h.connection.Write([]byte{sigConnect}); err != nil {
		pkg.LogWarn(pkg.ComponentHAL, "failed to signal connection", "error", err)
	}

	h.identity = id
	h.connected.Store(true)
	pkg.LogInfo(pkg.ComponentHAL, "attached",
		"vid", fmt.Sprintf("%04x", id.VendorID),
		"pid", fmt.Sprintf("%04x", id.ProductID),
		"product", id.Product,
		"console", id.Console)
	return nil
}

// Detach signals disconnection and withdraws the identity.
func (h *HAL) Detach() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if !h.initDone {
		return pkg.ErrNotConfigured
	}

	if _, err := h.connection.Write([]byte{sigDisconnect}); err != nil {
		pkg.LogWarn(pkg.ComponentHAL, "failed to signal disconnection", "error", err)
	}
	os.Remove(filepath.Join(h.deviceDir, identityFile))

	h.connected.Store(false)
	h.pending = h.pending[:0]
	pkg.LogInfo(pkg.ComponentHAL, "detached")
	return nil
}

// Connected reports whether an identity is attached.
func (h *HAL) Connected() bool {
	return h.connected.Load()
}

// Identity returns the identity most recently attached.
func (h *HAL) Identity() hal.Identity {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.identity
}

// Read copies pending console input into buf without blocking.
func (h *HAL) Read(buf []byte) (int, error) {
	h.mutex.Lock()
	f := h.serialIn
	h.mutex.Unlock()

	if f == nil {
		return 0, pkg.ErrNotConfigured
	}
	if !h.connected.Load() {
		return 0, pkg.ErrNotRunning
	}
	return readNow(f, buf)
}

// Write queues console output until the next Flush.
func (h *HAL) Write(data []byte) (int, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if !h.initDone {
		return 0, pkg.ErrNotConfigured
	}
	if !h.connected.Load() {
		return 0, pkg.ErrNotRunning
	}
	h.pending = append(h.pending, data...)
	return len(data), nil
}

// Flush writes queued console output to serial_out. Bytes the pipe cannot
// take stay queued for the next call.
func (h *HAL) Flush() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if !h.initDone {
		return pkg.ErrNotConfigured
	}
	if len(h.pending) == 0 {
		return nil
	}

	h.serialOut.SetWriteDeadline(time.Now().Add(writeTimeout))
	n, err := h.serialOut.Write(h.pending)
	h.pending = h.pending[:copy(h.pending, h.pending[n:])]
	if err != nil && !os.IsTimeout(err) {
		return fmt.Errorf("flush serial: %w", err)
	}
	if len(h.pending) > 0 {
		pkg.LogDebug(pkg.ComponentHAL, "serial output backlogged", "pending", len(h.pending))
	}
	return nil
}

// Task has no protocol work to service on a FIFO bus.
func (h *HAL) Task() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if !h.initDone {
		return pkg.ErrNotConfigured
	}
	return nil
}

// Get consumes one level byte from the trigger pipe, if any, and returns
// the current level. The level holds until the next byte arrives.
func (h *HAL) Get() bool {
	h.mutex.Lock()
	f := h.trigger
	h.mutex.Unlock()

	if f == nil {
		return h.level.Load()
	}

	var b [1]byte
	for {
		n, err := readNow(f, b[:])
		if err != nil {
			pkg.LogWarn(pkg.ComponentHAL, "trigger read failed", "error", err)
		}
		if n == 0 || err != nil {
			return h.level.Load()
		}
		switch b[0] {
		case levelHigh:
			h.level.Store(true)
			return true
		case levelLow:
			h.level.Store(false)
			return false
		}
	}
}

// Run reads keystroke events from the capture pipe into sink until ctx is
// cancelled.
func (h *HAL) Run(ctx context.Context, sink hal.Sink, ready func()) error {
	h.mutex.Lock()
	f := h.capture
	h.mutex.Unlock()

	if f == nil {
		return pkg.ErrNotConfigured
	}

	ready()
	pkg.LogDebug(pkg.ComponentHAL, "capture engine running")

	var buf [CaptureChunkSize]byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		f.SetReadDeadline(time.Now().Add(pollInterval))
		n, err := f.Read(buf[:])
		for _, b := range buf[:n] {
			if !sink.TryPush(b) {
				pkg.LogDebug(pkg.ComponentHAL, "capture event dropped", "event", b)
			}
		}
		if err != nil && !os.IsTimeout(err) {
			if errors.Is(err, os.ErrClosed) {
				return pkg.ErrCancelled
			}
			return fmt.Errorf("read capture: %w", err)
		}
	}
}

// writeIdentity publishes id for a simulated host to enumerate.
func (h *HAL) writeIdentity(id hal.Identity) error {
	path := filepath.Join(h.deviceDir, identityFile)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(id); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	return nil
}

// createFIFO creates a named pipe in the device directory.
func (h *HAL) createFIFO(name string) error {
	path := filepath.Join(h.deviceDir, name)
	os.Remove(path)
	if err := unix.Mkfifo(path, 0o666); err != nil {
		return fmt.Errorf("create fifo %s: %w", name, err)
	}
	return nil
}

// openFIFO opens a FIFO in the device directory.
func (h *HAL) openFIFO(name string, flag int) (*os.File, error) {
	path := filepath.Join(h.deviceDir, name)
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("open fifo %s: %w", name, err)
	}
	return f, nil
}

// readNow performs a single non-blocking read. It returns 0 and a nil
// error when the pipe is empty.
func readNow(f *os.File, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	rc, err := f.SyscallConn()
	if err != nil {
		return 0, err
	}

	var n int
	var rerr error
	err = rc.Read(func(fd uintptr) bool {
		n, rerr = unix.Read(int(fd), buf)
		return true
	})
	if err != nil {
		return 0, err
	}
	if rerr == unix.EAGAIN || rerr == unix.EINTR {
		return 0, nil
	}
	if rerr != nil {
		return 0, rerr
	}
	return n, nil
}
