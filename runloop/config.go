package runloop

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/keystash-dev/keystash/console"
	"github.com/keystash-dev/keystash/hal"
	"github.com/keystash-dev/keystash/mode"
	"github.com/keystash-dev/keystash/pkg"
	"github.com/keystash-dev/keystash/queue"
	"github.com/keystash-dev/keystash/store"
)

// DefaultStorageCapacity is the size of the storage region reserved for the
// log.
const DefaultStorageCapacity = 256 * 1024

// Config holds the control plane settings. The zero value is not usable;
// start from DefaultConfig.
type Config struct {
	// Mode is the operating mode at boot. It is not persisted.
	Mode mode.Mode `toml:"mode"`

	QueueCapacity int `toml:"queue_capacity"`
	LineCapacity  int `toml:"line_capacity"`

	// Settle is the wait between detaching and re-attaching on a mode change.
	Settle time.Duration `toml:"settle"`

	// ReadyTimeout bounds the wait for the capture engine. Zero waits until
	// the boot context is done.
	ReadyTimeout time.Duration `toml:"ready_timeout"`

	// Yield is slept between loop iterations. Zero only yields the processor.
	Yield time.Duration `toml:"yield"`

	LogName         string `toml:"log_name"`
	StorageCapacity int64  `toml:"storage_capacity"`

	// Echo sends accepted console input back to the operator.
	Echo bool `toml:"echo"`

	Visible hal.Identity `toml:"visible"`
	Covert  hal.Identity `toml:"covert"`
}

// DefaultConfig returns the factory settings.
func DefaultConfig() Config {
	return Config{
		Mode:            mode.Visible,
		QueueCapacity:   queue.DefaultCapacity,
		LineCapacity:    console.DefaultLineCapacity,
		Settle:          mode.DefaultSettle,
		Yield:           time.Millisecond,
		LogName:         store.DefaultLogName,
		StorageCapacity: DefaultStorageCapacity,
		Echo:            true,
		Visible: hal.Identity{
			VendorID:     0xCAFE,
			ProductID:    0x4012,
			Manufacturer: "keystash",
			Product:      "Keyboard with Console",
			Console:      true,
		},
		Covert: hal.Identity{
			VendorID:     0xCAFE,
			ProductID:    0x4002,
			Manufacturer: "keystash",
			Product:      "Keyboard",
		},
	}
}

// LoadConfig reads a TOML file over the factory settings. Keys absent from
// the file keep their defaults; unknown keys are logged and ignored.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		pkg.LogWarn(pkg.ComponentRunLoop, "unknown config key", "path", path, "key", key.String())
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings for consistency.
func (c *Config) Validate() error {
	switch {
	case c.Mode != mode.Visible && c.Mode != mode.Covert:
		return fmt.Errorf("%w: mode %v", pkg.ErrInvalidParameter, c.Mode)
	case c.QueueCapacity < queue.MinCapacity:
		return fmt.Errorf("%w: queue_capacity %d below %d",
			pkg.ErrInvalidParameter, c.QueueCapacity, queue.MinCapacity)
	case c.LineCapacity <= 0:
		return fmt.Errorf("%w: line_capacity %d", pkg.ErrInvalidParameter, c.LineCapacity)
	case c.Settle < 0:
		return fmt.Errorf("%w: settle %v", pkg.ErrInvalidParameter, c.Settle)
	case c.ReadyTimeout < 0:
		return fmt.Errorf("%w: ready_timeout %v", pkg.ErrInvalidParameter, c.ReadyTimeout)
	case c.Yield < 0:
		return fmt.Errorf("%w: yield %v", pkg.ErrInvalidParameter, c.Yield)
	case c.StorageCapacity < 0:
		return fmt.Errorf("%w: storage_capacity %d", pkg.ErrInvalidParameter, c.StorageCapacity)
	}
	return nil
}

// Identity returns the identity announced in mode m.
func (c *Config) Identity(m mode.Mode) hal.Identity {
	if m == mode.Covert {
		return c.Covert
	}
	return c.Visible
}

// assignSerials gives every identity without a serial number a random one.
// Both identities share the serial so the host sees one physical device.
func (c *Config) assignSerials() {
	if c.Visible.Serial != "" && c.Covert.Serial != "" {
		return
	}
	serial := uuid.NewString()[:8]
	if c.Visible.Serial == "" {
		c.Visible.Serial = serial
	}
	if c.Covert.Serial == "" {
		c.Covert.Serial = serial
	}
}
