package destinations

import (
	"fmt"
	"sync"

	"github.com/maccman/opentrack-sub000/pkg/config"
	"github.com/maccman/opentrack-sub000/pkg/errors"
)

// Factory builds a destination from configuration. Factories that return
// (nil, nil) signal the destination is disabled and should be skipped.
type Factory func(cfg *config.Config) (Destination, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	order      []string
)

// Register installs a destination factory under a unique name. It is called
// from init functions in the adapter packages; importing an adapter package
// is what makes its destination available.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("destinations: duplicate registration of %q", name))
	}
	factories[name] = factory
	order = append(order, name)
}

// Registered returns the names of all registered destinations in
// registration order.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, len(order))
	copy(names, order)
	return names
}

// Build constructs every enabled destination in registration order. The
// router indexes its outcomes by this order, so it is stable across calls.
func Build(cfg *config.Config) ([]Destination, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var dests []Destination
	for _, name := range order {
		d, err := factories[name](cfg)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig,
				fmt.Sprintf("building destination %q", name))
		}
		if d == nil {
			continue
		}
		dests = append(dests, d)
	}
	return dests, nil
}
