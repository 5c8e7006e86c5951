// Package backend provides the hardware drivers behind the rig control
// task: an in-memory dummy rig, a Yaesu CAT driver for serial or TCP
// transports, and a receive-only SDR estimator. Drivers are selected by
// name through a Registry so daemons can pick one from configuration.
package backend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dougsko/rigd/pkg/rig"
)

// Config selects and parameterizes a backend.
type Config struct {
	// Model names the registered backend ("dummy", "ft817", "sdr").
	Model string `yaml:"model"`
	// Device is the serial device path for serial CAT transports.
	Device string `yaml:"device"`
	// BaudRate applies to serial devices. Zero means 4800, the CAT
	// default on Yaesu portables.
	BaudRate int `yaml:"baud_rate"`
	// Address is a host:port for CAT-over-TCP bridges. Device takes
	// precedence when both are set.
	Address string `yaml:"address"`
}

// Factory builds a backend from its configuration.
type Factory func(cfg Config) (rig.Backend, error)

// Registry maps backend names to factories. It is constructed
// explicitly and passed to whoever needs to build backends; there is no
// package-global registration.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a named factory. Registering a name twice is an error.
func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[name]; dup {
		return fmt.Errorf("backend %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Build constructs the backend named by cfg.Model.
func (r *Registry) Build(cfg Config) (rig.Backend, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Model]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown backend %q (have %v)", cfg.Model, r.Names())
	}
	b, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("building backend %q: %w", cfg.Model, err)
	}
	return b, nil
}

// Names lists the registered backends, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtin returns a registry with all compiled-in backends.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register("dummy", func(cfg Config) (rig.Backend, error) {
		return NewDummy(), nil
	})
	r.Register("ft817", func(cfg Config) (rig.Backend, error) {
		switch {
		case cfg.Device != "":
			baud := cfg.BaudRate
			if baud == 0 {
				baud = 4800
			}
			return OpenSerial(cfg.Device, baud)
		case cfg.Address != "":
			return DialTCP(cfg.Address)
		default:
			return nil, fmt.Errorf("ft817 backend needs a device or address")
		}
	})
	r.Register("sdr", func(cfg Config) (rig.Backend, error) {
		// Without a hardware IQ source the sdr backend runs on the
		// synthetic one, which is enough for demos and soak tests.
		return NewSDR(NewNoiseSource()), nil
	})
	return r
}
