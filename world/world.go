package world

import (
	"errors"

	scenebridge "github.com/wippyai/scene-bridge"
)

var (
	// ErrComponentExists is returned when adding a component that is present.
	ErrComponentExists = errors.New("component already exists")
	// ErrComponentMissing is returned when updating or removing an absent component.
	ErrComponentMissing = errors.New("component does not exist")
)

// World is the host world as seen by the bridge. Implementations are not
// required to be safe for concurrent use; the gate serializes access.
type World interface {
	HasComponent(entity scenebridge.EntityID, component scenebridge.ComponentID) bool
	Component(entity scenebridge.EntityID, component scenebridge.ComponentID) (any, bool)
	// EntityComponents returns a copy of every component the entity holds.
	EntityComponents(entity scenebridge.EntityID) map[scenebridge.ComponentID]any

	AddComponent(entity scenebridge.EntityID, component scenebridge.ComponentID, value any) error
	UpdateComponent(entity scenebridge.EntityID, component scenebridge.ComponentID, value any) error
	RemoveComponent(entity scenebridge.EntityID, component scenebridge.ComponentID) error
	DeleteEntity(entity scenebridge.EntityID) error
	// AppendComponent delivers a transient value; appends never overwrite.
	AppendComponent(entity scenebridge.EntityID, component scenebridge.ComponentID, value any) error
}

// EventType identifies a host-originated change.
type EventType uint8

const (
	EventSet EventType = iota
	EventRemoved
	EventEntityDestroyed
	EventAppended
)

func (t EventType) String() string {
	switch t {
	case EventSet:
		return "set"
	case EventRemoved:
		return "removed"
	case EventEntityDestroyed:
		return "entity_destroyed"
	case EventAppended:
		return "appended"
	default:
		return "unknown"
	}
}

// Event describes a host-originated change.
type Event struct {
	Value     any
	Entity    scenebridge.EntityID
	Component scenebridge.ComponentID
	Type      EventType
}

// Observer receives host-originated changes.
type Observer interface {
	OnWorldEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnWorldEvent(e Event) { f(e) }
