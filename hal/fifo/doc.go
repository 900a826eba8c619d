// Package fifo implements the device hardware with named pipes (FIFOs).
//
// It stands in for the USB controller, the mode switch and the capture
// engine so the control plane can run on a workstation and be driven by
// ordinary shell tools.
//
// # Layout
//
// Each instance creates a unique subdirectory under a shared bus directory:
//
//	/tmp/keystash-bus/
//	└── device-{uuid}/
//	    ├── connection      # 0x01 on attach, 0x00 on detach
//	    ├── identity.toml   # identity announced while attached
//	    ├── serial_in       # operator console input
//	    ├── serial_out      # operator console output
//	    ├── trigger         # mode switch levels, '1' high and '0' low
//	    └── capture         # keystroke events, one byte each
//
// The trigger level holds until the next level byte arrives, so a press and
// release is written as "10".
//
// # Example
//
//	h := fifo.New("/tmp/keystash-bus")
//	if err := h.Init(); err != nil {
//		return err
//	}
//	defer h.Close()
//
//	loop, err := runloop.New(cfg, media, h, h, h)
//
// From a shell:
//
//	printf 'help\r' > /tmp/keystash-bus/device-*/serial_in
//	cat /tmp/keystash-bus/device-*/serial_out
//	printf '10' > /tmp/keystash-bus/device-*/trigger
package fifo
