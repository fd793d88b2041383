package driver

import (
	"fmt"
	"slices"
	"sort"
	"sync"
)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// Priority order for Default: hardware first, CPU reference last.
	priority = []string{"gpu", "soft"}
)

// Register makes a driver factory available under name.
// Driver packages call it from init; a second registration replaces the first.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = f
}

// Unregister removes a driver. It is mostly useful in tests.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns the sorted names of registered drivers.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open creates a driver by name.
func Open(name string) (Driver, error) {
	registryMu.RLock()
	f, ok := factories[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("driver %q: %w", name, ErrNotSupported)
	}
	return f()
}

// OpenDefault tries the registered drivers in priority order and returns
// the first one that opens.
func OpenDefault() (Driver, error) {
	var firstErr error
	for _, name := range append(slices.Clone(priority), Available()...) {
		d, err := Open(name)
		if err == nil {
			return d, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = fmt.Errorf("no drivers registered: %w", ErrNotSupported)
	}
	return nil, firstErr
}
