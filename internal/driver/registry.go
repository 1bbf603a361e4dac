package driver

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	registryMu sync.RWMutex
	drivers    = make(map[string]Driver)
	aliases    = make(map[string]string)
)

// Register makes a driver available under its name and aliases.
// It panics if a name is registered twice.
func Register(d Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()

	name := strings.ToLower(d.Name())
	if _, dup := drivers[name]; dup {
		panic(fmt.Sprintf("driver: Register called twice for %q", name))
	}
	drivers[name] = d
	for _, a := range d.Aliases() {
		aliases[strings.ToLower(a)] = name
	}
}

// Get returns the driver registered under name or one of its aliases.
func Get(name string) (Driver, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	key := strings.ToLower(name)
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	d, ok := drivers[key]
	if !ok {
		return nil, fmt.Errorf("unsupported database type %q (available: %s)", name, strings.Join(availableLocked(), ", "))
	}
	return d, nil
}

// GetDialect returns the dialect for a database type, or nil if unknown.
func GetDialect(name string) Dialect {
	d, err := Get(name)
	if err != nil {
		return nil
	}
	return d.Dialect()
}

// Available returns the sorted primary names of all registered drivers.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return availableLocked()
}

func availableLocked() []string {
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
