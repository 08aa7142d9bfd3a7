package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/fsalinas26/Guido/internal/logging"
)

// Manager starts registered components in dependency order and stops them in
// reverse. A component is only started after all of its dependencies have
// started successfully.
type Manager struct {
	mu         sync.Mutex
	components []Component
	deps       map[Component][]Component
	started    []Component
	registered map[Component]bool
	logger     *logging.Logger
}

// NewManager creates an empty lifecycle manager.
func NewManager() *Manager {
	return &Manager{
		deps:       make(map[Component][]Component),
		registered: make(map[Component]bool),
		logger:     logging.GetLogger("lifecycle"),
	}
}

// Register adds a component with optional dependencies. Dependencies must
// already be registered; duplicate registration is rejected.
func (m *Manager) Register(c Component, dependsOn ...Component) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c == nil {
		return fmt.Errorf("cannot register nil component")
	}
	if m.registered[c] {
		return fmt.Errorf("component %q already registered", c.Name())
	}
	for _, dep := range dependsOn {
		if !m.registered[dep] {
			return fmt.Errorf("component %q depends on unregistered component %q", c.Name(), dep.Name())
		}
	}
	m.components = append(m.components, c)
	m.deps[c] = dependsOn
	m.registered[c] = true
	return nil
}

// Start starts all components in registration order. Registration order is a
// valid topological order because dependencies must be registered first. On
// failure, components already started are stopped in reverse order.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.components {
		m.logger.Info("starting component %q", c.Name())
		if err := c.Start(ctx); err != nil {
			m.logger.Error("component %q failed to start: %v", c.Name(), err)
			m.stopStartedLocked(ctx)
			return fmt.Errorf("starting %q: %w", c.Name(), err)
		}
		m.started = append(m.started, c)
	}
	return nil
}

// Stop stops all started components in reverse start order. Errors are
// logged but do not prevent remaining components from stopping.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopStartedLocked(ctx)
}

func (m *Manager) stopStartedLocked(ctx context.Context) {
	for i := len(m.started) - 1; i >= 0; i-- {
		c := m.started[i]
		m.logger.Info("stopping component %q", c.Name())
		if err := c.Stop(ctx); err != nil {
			m.logger.Error("component %q failed to stop: %v", c.Name(), err)
		}
	}
	m.started = nil
}
