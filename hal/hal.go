package hal

import (
	"context"
)

// Pin is a digital input line sampled by the run loop.
type Pin interface {
	// Get returns the current logical level (true = high).
	// It must not block.
	Get() bool
}

// Identity describes the USB device identity announced to the upstream host.
type Identity struct {
	VendorID     uint16 `toml:"vendor_id"`
	ProductID    uint16 `toml:"product_id"`
	Manufacturer string `toml:"manufacturer"`
	Product      string `toml:"product"`
	Serial       string `toml:"serial"`

	// Console selects whether the serial command console interface is
	// exposed alongside the keyboard interface.
	Console bool `toml:"console"`
}

// Transport is the USB device side of the link to the upstream host.
//
// The control plane calls every method from a single goroutine. Read,
// Write, Flush and Task must not block beyond a bounded amount of time.
type Transport interface {
	// Attach connects to the bus announcing the given identity.
	// The host enumerates the device after Attach returns.
	Attach(id Identity) error

	// Detach disconnects from the bus.
	Detach() error

	// Connected returns true while an identity is attached.
	Connected() bool

	// Read copies pending inbound console bytes into buf.
	// Returns 0 and a nil error when nothing is pending.
	Read(buf []byte) (int, error)

	// Write queues outbound console bytes.
	Write(data []byte) (int, error)

	// Flush sends any queued outbound bytes.
	Flush() error

	// Task services pending protocol work. It is called once per loop
	// iteration.
	Task() error
}

// Sink receives captured events. TryPush must not block; it returns false
// when the event was dropped.
type Sink interface {
	TryPush(event byte) bool
}

// Engine is the capture engine running on its own execution context.
type Engine interface {
	// Run captures events into sink until ctx is cancelled. It must call
	// ready exactly once, when capture is operational.
	Run(ctx context.Context, sink Sink, ready func()) error
}
