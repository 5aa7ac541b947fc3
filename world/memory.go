package world

import (
	"sort"
	"sync"

	scenebridge "github.com/wippyai/scene-bridge"
)

// Memory is an in-memory host world. Its zero value is not usable; use NewMemory.
type Memory struct {
	entities  map[scenebridge.EntityID]map[scenebridge.ComponentID]any
	appended  map[scenebridge.Key][]any
	observers map[uint64]Observer
	obsOrder  []uint64
	nextObs   uint64
	mu        sync.Mutex
	obsMu     sync.RWMutex
}

var _ World = (*Memory)(nil)

// NewMemory creates an empty world.
func NewMemory() *Memory {
	return &Memory{
		entities:  make(map[scenebridge.EntityID]map[scenebridge.ComponentID]any),
		appended:  make(map[scenebridge.Key][]any),
		observers: make(map[uint64]Observer),
	}
}

// Lock acquires the world's single-writer lock.
func (m *Memory) Lock() { m.mu.Lock() }

// Unlock releases the world's single-writer lock.
func (m *Memory) Unlock() { m.mu.Unlock() }

// Subscribe adds an observer for host-originated changes. Observers are
// called in subscription order. The returned function removes it.
func (m *Memory) Subscribe(o Observer) (unsubscribe func()) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = o
	m.obsOrder = append(m.obsOrder, id)
	return func() {
		m.obsMu.Lock()
		defer m.obsMu.Unlock()
		if _, ok := m.observers[id]; !ok {
			return
		}
		delete(m.observers, id)
		for i, v := range m.obsOrder {
			if v == id {
				m.obsOrder = append(m.obsOrder[:i], m.obsOrder[i+1:]...)
				break
			}
		}
	}
}

func (m *Memory) HasComponent(entity scenebridge.EntityID, component scenebridge.ComponentID) bool {
	_, ok := m.entities[entity][component]
	return ok
}

func (m *Memory) Component(entity scenebridge.EntityID, component scenebridge.ComponentID) (any, bool) {
	v, ok := m.entities[entity][component]
	return v, ok
}

func (m *Memory) EntityComponents(entity scenebridge.EntityID) map[scenebridge.ComponentID]any {
	comps := m.entities[entity]
	if comps == nil {
		return nil
	}
	out := make(map[scenebridge.ComponentID]any, len(comps))
	for c, v := range comps {
		out[c] = v
	}
	return out
}

func (m *Memory) AddComponent(entity scenebridge.EntityID, component scenebridge.ComponentID, value any) error {
	if m.HasComponent(entity, component) {
		return ErrComponentExists
	}
	m.set(entity, component, value)
	return nil
}

func (m *Memory) UpdateComponent(entity scenebridge.EntityID, component scenebridge.ComponentID, value any) error {
	if !m.HasComponent(entity, component) {
		return ErrComponentMissing
	}
	m.entities[entity][component] = value
	return nil
}

func (m *Memory) RemoveComponent(entity scenebridge.EntityID, component scenebridge.ComponentID) error {
	if !m.HasComponent(entity, component) {
		return ErrComponentMissing
	}
	m.remove(entity, component)
	return nil
}

func (m *Memory) DeleteEntity(entity scenebridge.EntityID) error {
	delete(m.entities, entity)
	return nil
}

func (m *Memory) AppendComponent(entity scenebridge.EntityID, component scenebridge.ComponentID, value any) error {
	k := scenebridge.Key{Entity: entity, Component: component}
	m.appended[k] = append(m.appended[k], value)
	return nil
}

// Set writes a component on behalf of a host system and notifies observers.
func (m *Memory) Set(entity scenebridge.EntityID, component scenebridge.ComponentID, value any) {
	m.set(entity, component, value)
	m.notify(Event{Type: EventSet, Entity: entity, Component: component, Value: value})
}

// Remove deletes a component on behalf of a host system and notifies observers.
// Removing an absent component does nothing.
func (m *Memory) Remove(entity scenebridge.EntityID, component scenebridge.ComponentID) {
	if !m.HasComponent(entity, component) {
		return
	}
	m.remove(entity, component)
	m.notify(Event{Type: EventRemoved, Entity: entity, Component: component})
}

// Destroy deletes an entity on behalf of a host system and notifies observers.
func (m *Memory) Destroy(entity scenebridge.EntityID) {
	delete(m.entities, entity)
	m.notify(Event{Type: EventEntityDestroyed, Entity: entity})
}

// Emit appends a transient value on behalf of a host system and notifies observers.
func (m *Memory) Emit(entity scenebridge.EntityID, component scenebridge.ComponentID, value any) {
	m.notify(Event{Type: EventAppended, Entity: entity, Component: component, Value: value})
}

// Entities returns every entity holding at least one component, ascending.
func (m *Memory) Entities() []scenebridge.EntityID {
	out := make([]scenebridge.EntityID, 0, len(m.entities))
	for e := range m.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of live components across all entities.
func (m *Memory) Len() int {
	n := 0
	for _, comps := range m.entities {
		n += len(comps)
	}
	return n
}

// DrainAppended returns and clears every value appended by the bridge.
func (m *Memory) DrainAppended() map[scenebridge.Key][]any {
	out := m.appended
	m.appended = make(map[scenebridge.Key][]any)
	return out
}

func (m *Memory) set(entity scenebridge.EntityID, component scenebridge.ComponentID, value any) {
	comps := m.entities[entity]
	if comps == nil {
		comps = make(map[scenebridge.ComponentID]any)
		m.entities[entity] = comps
	}
	comps[component] = value
}

func (m *Memory) remove(entity scenebridge.EntityID, component scenebridge.ComponentID) {
	comps := m.entities[entity]
	delete(comps, component)
	if len(comps) == 0 {
		delete(m.entities, entity)
	}
}

func (m *Memory) notify(e Event) {
	m.obsMu.RLock()
	defer m.obsMu.RUnlock()
	for _, id := range m.obsOrder {
		m.observers[id].OnWorldEvent(e)
	}
}
