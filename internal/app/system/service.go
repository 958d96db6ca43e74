package system

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Service represents a lifecycle-managed component. All background modules
// must implement this interface so the manager can start and stop them
// deterministically.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Manager starts services in registration order and stops them in reverse.
type Manager struct {
	mu       sync.Mutex
	services []Service
	names    map[string]struct{}
	started  int
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{names: make(map[string]struct{})}
}

// Register adds a service. Names must be unique and registration is only
// allowed before Start.
func (m *Manager) Register(svc Service) error {
	if svc == nil {
		return errors.New("service is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started > 0 {
		return fmt.Errorf("cannot register %s: manager already started", svc.Name())
	}
	if _, exists := m.names[svc.Name()]; exists {
		return fmt.Errorf("service %s already registered", svc.Name())
	}
	m.names[svc.Name()] = struct{}{}
	m.services = append(m.services, svc)
	return nil
}

// Services returns the registered service names in start order.
func (m *Manager) Services() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, len(m.services))
	for i, svc := range m.services {
		names[i] = svc.Name()
	}
	return names
}

// Start starts every service. If one fails, the services already started are
// stopped again and the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := m.started; i < len(m.services); i++ {
		if err := m.services[i].Start(ctx); err != nil {
			startErr := fmt.Errorf("start %s: %w", m.services[i].Name(), err)
			for j := i - 1; j >= 0; j-- {
				_ = m.services[j].Stop(ctx)
			}
			m.started = 0
			return startErr
		}
		m.started = i + 1
	}
	return nil
}

// Stop stops started services in reverse order and returns the first error.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for i := m.started - 1; i >= 0; i-- {
		if err := m.services[i].Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop %s: %w", m.services[i].Name(), err)
		}
	}
	m.started = 0
	return firstErr
}
