package observable

import (
	"sort"
	"sync"

	scenebridge "github.com/wippyai/scene-bridge"
)

// EventID names a derived event.
type EventID string

const (
	EventEnterScene       EventID = "onEnterScene"
	EventLeaveScene       EventID = "onLeaveScene"
	EventProfileChanged   EventID = "profileChanged"
	EventPlayerExpression EventID = "playerExpression"
	EventRealmChanged     EventID = "onRealmChanged"
	EventSceneReady       EventID = "onSceneReady"
)

// AllEvents lists every event the Deriver can emit.
var AllEvents = []EventID{
	EventEnterScene,
	EventLeaveScene,
	EventProfileChanged,
	EventPlayerExpression,
	EventRealmChanged,
	EventSceneReady,
}

// Event is a derived notification.
type Event struct {
	// Data is event specific: Identity for enter/leave, component.AvatarBase
	// for profile changes, component.AvatarEmoteCommand for expressions,
	// component.RealmInfo for realm changes, component.EngineInfo for ready.
	Data   any
	ID     EventID
	Entity scenebridge.EntityID
	// Address is the player's identity when the event concerns a player.
	Address string
}

// Identity is what the index knows about a player entity.
type Identity struct {
	Address string
	IsGuest bool
}

// Subscriptions tells the Deriver which events anyone listens to.
type Subscriptions interface {
	Subscribed(id EventID) bool
}

// Registry is a concurrency-safe Subscriptions set.
type Registry struct {
	ids map[EventID]struct{}
	mu  sync.RWMutex
}

var _ Subscriptions = (*Registry)(nil)

// NewRegistry creates a registry subscribed to ids.
func NewRegistry(ids ...EventID) *Registry {
	r := &Registry{ids: make(map[EventID]struct{}, len(ids))}
	for _, id := range ids {
		r.ids[id] = struct{}{}
	}
	return r
}

func (r *Registry) Subscribe(id EventID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[id] = struct{}{}
}

func (r *Registry) Unsubscribe(id EventID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ids, id)
}

func (r *Registry) Subscribed(id EventID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ids[id]
	return ok
}

// IDs returns the subscribed ids, sorted.
func (r *Registry) IDs() []EventID {
	r.mu.RLock()
	out := make([]EventID, 0, len(r.ids))
	for id := range r.ids {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// valueAs accepts a component value stored either as T or *T.
func valueAs[T any](v any) (T, bool) {
	switch t := v.(type) {
	case T:
		return t, true
	case *T:
		if t != nil {
			return *t, true
		}
	}
	var zero T
	return zero, false
}
