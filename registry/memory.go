package registry

import (
	"context"
	"sync"
)

// MemoryRegistry is an in-process Registry for tests and single-process
// embedding. Entries live until deregistered; there are no leases.
type MemoryRegistry struct {
	mu       sync.RWMutex
	tools    map[string]map[string]ToolInfo // name -> instance ID -> info
	watchers map[string][]chan []ToolInfo
	closed   bool
}

// NewMemoryRegistry returns an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		tools:    make(map[string]map[string]ToolInfo),
		watchers: make(map[string][]chan []ToolInfo),
	}
}

func (m *MemoryRegistry) Register(_ context.Context, info ToolInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	instances, ok := m.tools[info.Name]
	if !ok {
		instances = make(map[string]ToolInfo)
		m.tools[info.Name] = instances
	}
	instances[info.InstanceID] = info
	m.notifyLocked(info.Name)
	return nil
}

func (m *MemoryRegistry) Deregister(_ context.Context, info ToolInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if instances, ok := m.tools[info.Name]; ok {
		delete(instances, info.InstanceID)
		if len(instances) == 0 {
			delete(m.tools, info.Name)
		}
		m.notifyLocked(info.Name)
	}
	return nil
}

func (m *MemoryRegistry) Discover(_ context.Context, name string) ([]ToolInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	return m.instancesLocked(name), nil
}

func (m *MemoryRegistry) DiscoverByCapability(_ context.Context, capability string) ([]ToolInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	var matched []ToolInfo
	for _, instances := range m.tools {
		for _, info := range instances {
			if info.HasCapability(capability) {
				matched = append(matched, info)
			}
		}
	}
	return matched, nil
}

func (m *MemoryRegistry) Watch(ctx context.Context, name string) (<-chan []ToolInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	ch := make(chan []ToolInfo, 8)
	ch <- m.instancesLocked(name)
	m.watchers[name] = append(m.watchers[name], ch)

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		m.removeWatcherLocked(name, ch)
	}()

	return ch, nil
}

func (m *MemoryRegistry) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for _, chans := range m.watchers {
		for _, ch := range chans {
			close(ch)
		}
	}
	m.watchers = make(map[string][]chan []ToolInfo)
	return nil
}

func (m *MemoryRegistry) instancesLocked(name string) []ToolInfo {
	instances := m.tools[name]
	out := make([]ToolInfo, 0, len(instances))
	for _, info := range instances {
		out = append(out, info)
	}
	return out
}

// notifyLocked pushes the current state to watchers of name, dropping
// the update for any watcher whose buffer is full.
func (m *MemoryRegistry) notifyLocked(name string) {
	if len(m.watchers[name]) == 0 {
		return
	}
	state := m.instancesLocked(name)
	for _, ch := range m.watchers[name] {
		select {
		case ch <- state:
		default:
		}
	}
}

func (m *MemoryRegistry) removeWatcherLocked(name string, ch chan []ToolInfo) {
	chans := m.watchers[name]
	for i, c := range chans {
		if c == ch {
			m.watchers[name] = append(chans[:i], chans[i+1:]...)
			close(c)
			return
		}
	}
}
