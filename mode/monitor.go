package mode

import (
	"context"
	"time"

	"github.com/keystash-dev/keystash/hal"
	"github.com/keystash-dev/keystash/pkg"
)

// DefaultSettle is the delay between dropping the old identity and
// announcing the new one, long enough for the host to tear down the
// previous enumeration.
const DefaultSettle = 1500 * time.Millisecond

// Announcer re-announces the device identity after a mode change.
type Announcer interface {
	// Disconnect drops the current identity from the bus.
	Disconnect() error
	// Connect announces the identity for m.
	Connect(m Mode) error
}

// Monitor samples the trigger pin and applies the debounce state machine.
// It is driven from the run loop and is not safe for concurrent use.
type Monitor struct {
	pin       hal.Pin
	announcer Announcer
	settle    time.Duration
	state     State

	// onChange is invoked after each toggle, once the new identity is up.
	onChange func(Mode)
}

// NewMonitor creates a monitor starting Idle in the initial mode.
func NewMonitor(pin hal.Pin, announcer Announcer, initial Mode, settle time.Duration) *Monitor {
	return &Monitor{
		pin:       pin,
		announcer: announcer,
		settle:    settle,
		state:     State{Trigger: Idle, Mode: initial},
	}
}

// SetOnChange sets the callback invoked after a mode change.
func (m *Monitor) SetOnChange(cb func(Mode)) {
	m.onChange = cb
}

// Mode returns the current operating mode.
func (m *Monitor) Mode() Mode {
	return m.state.Mode
}

// State returns the current debounce state.
func (m *Monitor) State() State {
	return m.state
}

// Sample reads the trigger line. High is asserted.
func (m *Monitor) Sample() bool {
	return m.pin.Get()
}

// Update runs the state machine on one sample. On a toggle it disconnects,
// waits the settle interval and reconnects under the new mode. It returns
// true if the mode changed. A re-announce failure is returned but does not
// revert the mode, and the change callback runs either way.
func (m *Monitor) Update(ctx context.Context, asserted bool) (bool, error) {
	next, toggled := Step(m.state, asserted)
	if next.Trigger != m.state.Trigger {
		pkg.LogDebug(pkg.ComponentMode, "trigger transition",
			"from", m.state.Trigger,
			"to", next.Trigger)
	}
	m.state = next
	if !toggled {
		return false, nil
	}

	pkg.LogInfo(pkg.ComponentMode, "operating mode changed", "mode", next.Mode)
	err := m.reannounce(ctx, next.Mode)
	if m.onChange != nil {
		m.onChange(next.Mode)
	}
	return true, err
}

// Service samples the trigger and updates the state machine.
func (m *Monitor) Service(ctx context.Context) (bool, error) {
	return m.Update(ctx, m.Sample())
}

func (m *Monitor) reannounce(ctx context.Context, mode Mode) error {
	if m.announcer == nil {
		return nil
	}
	if err := m.announcer.Disconnect(); err != nil {
		pkg.LogWarn(pkg.ComponentMode, "disconnect failed", "error", err)
	}
	if err := sleep(ctx, m.settle); err != nil {
		return err
	}
	if err := m.announcer.Connect(mode); err != nil {
		pkg.LogError(pkg.ComponentMode, "reconnect failed", "mode", mode, "error", err)
		return err
	}
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
