// factory.go implements the storage backend registry and the Manager that maps
// backend names (local, s3, azure, gcs) to constructed Storage instances.
package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/propaudit/propaudit/internal/config"
)

// Factory function type for creating storage backends
type FactoryFunc func(*config.Config) (Storage, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]FactoryFunc)
)

// Register registers a storage backend factory
func Register(name string, factory FactoryFunc) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// Registered returns the names of all registered backends, sorted
func Registered() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewStorage creates a new storage backend based on configuration
func NewStorage(cfg *config.Config) (Storage, error) {
	return build(cfg, cfg.Storage.DefaultBackend)
}

func build(cfg *config.Config, name string) (Storage, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage backend: %s (must be 'local', 'azure', 's3', or 'gcs')", name)
	}
	return factory(cfg)
}

// Manager hands out the default backend for new uploads and the backend
// named on an existing attachment for downloads and removals.
type Manager struct {
	cfg         *config.Config
	defaultName string

	mu       sync.Mutex
	backends map[string]Storage
}

// NewManager builds the default backend eagerly so misconfiguration fails at
// startup. Other backends are built on first use.
func NewManager(cfg *config.Config) (*Manager, error) {
	def, err := NewStorage(cfg)
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:         cfg,
		defaultName: cfg.Storage.DefaultBackend,
		backends:    map[string]Storage{cfg.Storage.DefaultBackend: def},
	}, nil
}

// NewStaticManager wraps already constructed backends. No backend outside
// the map can be resolved.
func NewStaticManager(defaultName string, backends map[string]Storage) *Manager {
	copied := make(map[string]Storage, len(backends))
	for k, v := range backends {
		copied[k] = v
	}
	return &Manager{defaultName: defaultName, backends: copied}
}

// Default returns the backend new uploads go to, with its name
func (m *Manager) Default() (string, Storage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaultName, m.backends[m.defaultName]
}

// Backend resolves a backend by name, building it on first use
func (m *Manager) Backend(name string) (Storage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.backends[name]; ok {
		return s, nil
	}
	if m.cfg == nil {
		return nil, fmt.Errorf("storage backend %q is not configured", name)
	}
	s, err := build(m.cfg, name)
	if err != nil {
		return nil, err
	}
	m.backends[name] = s
	return s, nil
}
