package runloop

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/keystash-dev/keystash/console"
	"github.com/keystash-dev/keystash/hal"
	"github.com/keystash-dev/keystash/mode"
	"github.com/keystash-dev/keystash/pkg"
	"github.com/keystash-dev/keystash/queue"
	"github.com/keystash-dev/keystash/store"
)

// gate is the sink handed to the capture engine. Events offered before the
// queue exists are dropped and counted.
type gate struct {
	q       atomic.Pointer[queue.Queue[byte]]
	dropped atomic.Uint64
}

// TryPush forwards to the queue once it is initialized.
func (g *gate) TryPush(event byte) bool {
	q := g.q.Load()
	if q == nil {
		g.dropped.Add(1)
		return false
	}
	return q.TryPush(event)
}

// Dropped returns the number of events rejected before the queue existed.
func (g *gate) Dropped() uint64 {
	return g.dropped.Load()
}

// announcer re-attaches the transport under the identity of a mode.
type announcer struct {
	cfg       *Config
	transport hal.Transport
}

func (a announcer) Disconnect() error {
	return a.transport.Detach()
}

func (a announcer) Connect(m mode.Mode) error {
	return a.transport.Attach(a.cfg.Identity(m))
}

// Loop sequences startup and drives the steady-state service loop.
//
// Boot and Step must be called from one goroutine, which becomes the owner
// of the store, console, monitor and transport. The capture engine runs on
// a goroutine of its own and shares only the event queue.
type Loop struct {
	cfg       Config
	media     store.Media
	engine    hal.Engine
	transport hal.Transport
	pin       hal.Pin

	sink    gate
	queue   *queue.Queue[byte]
	store   *store.Store
	monitor *mode.Monitor
	console *console.Console

	// Engine supervision
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	ready  chan struct{}

	booted  bool
	dropped uint64 // queue drops already reported
	early   uint64 // gate drops already reported
	event   [1]byte
}

// New creates a loop. Nothing is started until Boot.
func New(cfg Config, media store.Media, engine hal.Engine, transport hal.Transport, pin hal.Pin) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if engine == nil || transport == nil || pin == nil {
		return nil, fmt.Errorf("%w: nil engine, transport or pin", pkg.ErrInvalidParameter)
	}
	cfg.assignSerials()
	return &Loop{
		cfg:       cfg,
		media:     media,
		engine:    engine,
		transport: transport,
		pin:       pin,
		ready:     make(chan struct{}),
	}, nil
}

// Boot brings the control plane up in order:
//
//  1. start the capture engine and wait for its readiness signal,
//  2. mount the log store, formatting blank media,
//  3. initialize the event queue,
//  4. attach the transport under the identity of the boot mode.
//
// Errors wrapping pkg.ErrFatal mean storage is unusable and the system must
// halt.
func (l *Loop) Boot(ctx context.Context) error {
	if l.booted {
		return pkg.ErrAlreadyRunning
	}
	l.booted = true

	if err := l.startEngine(ctx); err != nil {
		return err
	}

	st, err := store.New(l.media, l.cfg.LogName, l.cfg.StorageCapacity)
	if err != nil {
		return fmt.Errorf("%w: storage configuration: %w", pkg.ErrFatal, err)
	}
	if err := st.MountOrFormat(); err != nil {
		return err
	}
	l.store = st

	q, err := queue.New[byte](l.cfg.QueueCapacity)
	if err != nil {
		return err
	}
	l.queue = q
	l.sink.q.Store(q)

	con, err := console.New(st, l.transport, l.cfg.LineCapacity)
	if err != nil {
		return err
	}
	con.SetEcho(l.cfg.Echo)
	l.console = con

	l.monitor = mode.NewMonitor(l.pin, announcer{cfg: &l.cfg, transport: l.transport},
		l.cfg.Mode, l.cfg.Settle)
	l.monitor.SetOnChange(func(mode.Mode) { l.console.Reset() })

	if err := l.transport.Attach(l.cfg.Identity(l.cfg.Mode)); err != nil {
		pkg.LogError(pkg.ComponentRunLoop, "attach failed", "mode", l.cfg.Mode, "error", err)
	}

	pkg.LogInfo(pkg.ComponentRunLoop, "boot complete",
		"mode", l.cfg.Mode,
		"queue", q.Cap(),
		"log", st.Name())
	return nil
}

// startEngine launches the capture engine and blocks until it is ready.
func (l *Loop) startEngine(ctx context.Context) error {
	ctx, l.cancel = context.WithCancel(ctx)
	l.group, l.ctx = errgroup.WithContext(ctx)

	var once sync.Once
	signal := func() { once.Do(func() { close(l.ready) }) }
	l.group.Go(func() error {
		return l.engine.Run(l.ctx, &l.sink, signal)
	})

	var timeout <-chan time.Time
	if l.cfg.ReadyTimeout > 0 {
		t := time.NewTimer(l.cfg.ReadyTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case <-l.ready:
		pkg.LogDebug(pkg.ComponentRunLoop, "capture engine ready")
		return nil
	case <-l.ctx.Done():
		return fmt.Errorf("%w: %w", pkg.ErrEngineNotReady, context.Cause(l.ctx))
	case <-timeout:
		return fmt.Errorf("%w: no signal after %v", pkg.ErrEngineNotReady, l.cfg.ReadyTimeout)
	}
}

// Step runs one iteration of the service loop. No step blocks beyond a
// bounded time, except the settle wait of a mode change.
func (l *Loop) Step(ctx context.Context) {
	if ev, ok := l.queue.TryPop(); ok {
		l.event[0] = ev
		if err := l.store.Append(l.event[:]); err != nil {
			pkg.LogWarn(pkg.ComponentRunLoop, "event not persisted", "error", err)
		}
	}
	if d := l.queue.Dropped(); d != l.dropped {
		pkg.LogWarn(pkg.ComponentQueue, "events dropped, queue full",
			"dropped", d-l.dropped,
			"total", d)
		l.dropped = d
	}
	if d := l.sink.Dropped(); d != l.early {
		pkg.LogWarn(pkg.ComponentQueue, "events dropped before queue init",
			"dropped", d-l.early,
			"total", d)
		l.early = d
	}

	if _, err := l.monitor.Service(ctx); err != nil {
		pkg.LogWarn(pkg.ComponentRunLoop, "mode change incomplete", "error", err)
	}

	if l.transport.Connected() && l.cfg.Identity(l.monitor.Mode()).Console {
		if err := l.console.Service(l.transport); err != nil {
			pkg.LogWarn(pkg.ComponentRunLoop, "console read failed", "error", err)
		}
	}

	if err := l.transport.Task(); err != nil {
		pkg.LogWarn(pkg.ComponentRunLoop, "transport task failed", "error", err)
	}
	if err := l.transport.Flush(); err != nil {
		pkg.LogWarn(pkg.ComponentRunLoop, "transport flush failed", "error", err)
	}
}

// Run boots the control plane and services it until ctx is done or the
// capture engine fails. It returns nil on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.Boot(ctx); err != nil {
		if l.cancel != nil {
			l.cancel()
			l.group.Wait()
		}
		return err
	}
	defer l.transport.Detach()

	for {
		select {
		case <-l.ctx.Done():
			return l.Shutdown()
		default:
		}

		l.Step(l.ctx)

		if l.cfg.Yield > 0 {
			time.Sleep(l.cfg.Yield)
		} else {
			runtime.Gosched()
		}
	}
}

// Shutdown stops the capture engine and unmounts the store. It returns the
// engine's error, if it failed for a reason other than cancellation.
func (l *Loop) Shutdown() error {
	if l.cancel == nil {
		return pkg.ErrNotRunning
	}
	l.cancel()
	err := l.group.Wait()
	if l.store != nil && l.store.Mounted() {
		if uerr := l.store.Unmount(); uerr != nil {
			pkg.LogWarn(pkg.ComponentRunLoop, "unmount failed", "error", uerr)
		}
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Mode returns the current operating mode.
func (l *Loop) Mode() mode.Mode {
	if l.monitor == nil {
		return l.cfg.Mode
	}
	return l.monitor.Mode()
}

// Config returns the effective configuration.
func (l *Loop) Config() Config {
	return l.cfg
}

// Store returns the log store, or nil before Boot.
func (l *Loop) Store() *store.Store {
	return l.store
}

// Dropped returns the number of captured events lost, whether rejected by a
// full queue or offered before the queue existed.
func (l *Loop) Dropped() uint64 {
	d := l.sink.Dropped()
	if l.queue != nil {
		d += l.queue.Dropped()
	}
	return d
}

// Queue returns the event queue, or nil before Boot.
func (l *Loop) Queue() *queue.Queue[byte] {
	return l.queue
}
