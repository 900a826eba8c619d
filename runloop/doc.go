// Package runloop sequences the control plane: it boots the capture engine,
// storage, event queue and USB identity in a fixed order, then services them
// cooperatively from a single goroutine.
//
// Each loop iteration:
//
//   - persists at most one captured event from the queue,
//   - samples the mode trigger and applies the debounce state machine,
//   - services the command console while the current identity exposes it,
//   - runs the transport task and flushes outbound data.
//
// A storage failure while persisting an event is logged and the loop goes
// on. Only storage failures during boot are fatal.
//
// # Configuration
//
// Settings come from [DefaultConfig], optionally overlaid by a TOML file:
//
//	mode = "covert"
//	queue_capacity = 512
//	settle = "1.5s"
//
//	[visible]
//	vendor_id = 0xCAFE
//	product_id = 0x4012
//	console = true
//
// See [LoadConfig].
package runloop
