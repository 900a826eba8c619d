// Package hal defines the hardware abstraction consumed by the keystash
// control plane.
//
// The control plane never touches hardware directly. It interacts with
//
//   - a [Pin] for the physical mode trigger,
//   - a [Transport] for the USB device link (console bytes, attach/detach),
//   - an [Engine] producing captured events into a [Sink].
//
// Platform ports implement these interfaces. A named-pipe implementation for
// simulation and integration testing is available in
// [github.com/keystash-dev/keystash/hal/fifo].
package hal
