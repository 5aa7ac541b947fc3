package component

import (
	"sort"
	"sync"

	scenebridge "github.com/wippyai/scene-bridge"
	"github.com/wippyai/scene-bridge/errors"
)

type registration struct {
	codec Codec
	name  string
}

// Registry maps component ids to codecs. Registration happens at startup;
// lookups are safe from any goroutine.
type Registry struct {
	codecs map[scenebridge.ComponentID]registration
	mu     sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		codecs: make(map[scenebridge.ComponentID]registration),
	}
}

// Register binds a codec to a component id. Ids can be registered once.
func (r *Registry) Register(id scenebridge.ComponentID, name string, c Codec) error {
	if c == nil {
		return errors.InvalidInput(errors.PhaseConfig, "codec cannot be nil")
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseConfig, "component name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.codecs[id]; ok {
		return errors.New(errors.PhaseConfig, errors.KindRegistration).
			Value(id).
			Detail("component %d already registered as %q", id, existing.name).
			Build()
	}
	r.codecs[id] = registration{codec: c, name: name}
	return nil
}

// Lookup returns the codec registered for id.
func (r *Registry) Lookup(id scenebridge.ComponentID) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.codecs[id]
	return reg.codec, ok
}

// Has reports whether id has a codec.
func (r *Registry) Has(id scenebridge.ComponentID) bool {
	_, ok := r.Lookup(id)
	return ok
}

// Name returns the registered name of id, or "" if unknown.
func (r *Registry) Name(id scenebridge.ComponentID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.codecs[id].name
}

// IDs returns every registered component id in ascending order.
func (r *Registry) IDs() []scenebridge.ComponentID {
	r.mu.RLock()
	ids := make([]scenebridge.ComponentID, 0, len(r.codecs))
	for id := range r.codecs {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Deserialize decodes a payload for key.Component.
func (r *Registry) Deserialize(key scenebridge.Key, data []byte) (any, error) {
	c, ok := r.Lookup(key.Component)
	if !ok {
		return nil, errors.UnknownComponent(errors.PhaseDeserialize, key)
	}
	v, err := c.Deserialize(data)
	if err != nil {
		return nil, errors.Deserialize(key, err)
	}
	return v, nil
}

// Serialize encodes a value for key.Component.
func (r *Registry) Serialize(key scenebridge.Key, v any) ([]byte, error) {
	c, ok := r.Lookup(key.Component)
	if !ok {
		return nil, errors.UnknownComponent(errors.PhaseSerialize, key)
	}
	data, err := c.Serialize(v)
	if err != nil {
		return nil, errors.Serialize(key, err)
	}
	return data, nil
}
