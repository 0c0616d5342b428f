package adapter

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapvertica/pkg/core"
)

// Factory builds an unconnected adapter. A nil logger means discard.
type Factory func(*slog.Logger) Adapter

// ErrNoAdapterType is returned by NewAdapter when connection.type is empty.
var ErrNoAdapterType = errors.New("connection type is not set")

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a factory available under name. Adapter packages call it
// from init; registering a name twice replaces the earlier factory.
func Register(name string, factory Factory) {
	if name == "" || factory == nil {
		panic("adapter: Register needs a name and a factory")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Get returns the factory registered under name.
func Get(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// NewAdapter builds the adapter for cfg.Type.
func NewAdapter(cfg core.ConnectionConfig, logger *slog.Logger) (Adapter, error) {
	if cfg.Type == "" {
		return nil, ErrNoAdapterType
	}
	factory, ok := Get(cfg.Type)
	if !ok {
		return nil, &UnknownAdapterError{Type: cfg.Type, Available: ListAdapters()}
	}
	return factory(logger), nil
}

// ListAdapters returns the registered names in sorted order.
func ListAdapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return slices.Sorted(maps.Keys(registry))
}

// IsRegistered reports whether name has a factory.
func IsRegistered(name string) bool {
	_, ok := Get(name)
	return ok
}

// UnknownAdapterError is returned for a connection.type nothing registered.
type UnknownAdapterError struct {
	Type      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown connection type %q (available: %s)\n"+
		"Hint: set connection.type to one of them in leapvertica.yaml and pick the wire protocol with connection.transport (%s)",
		e.Type, strings.Join(e.Available, ", "),
		strings.Join([]string{core.TransportODBC, core.TransportVertica, core.TransportPgx, core.TransportDuckDB}, ", "))
}
